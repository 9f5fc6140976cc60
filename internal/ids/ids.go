// Package ids implements the typed, prefix-tagged identifier scheme shared
// across Cinder's entities (spec.md §3/§4.2): a two-character prefix from
// the closed set {SN, LK, FL, US} followed by a non-empty body.
package ids

import (
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when a string does not parse as a well-formed Identifier.
var ErrInvalidID = errors.New("ids: invalid id")

// ErrNotGeneratable is returned when Generate is called for a prefix that
// must instead be externally provisioned (currently only User).
var ErrNotGeneratable = errors.New("ids: prefix is not generatable")

// Prefix is one of the four closed entity-kind tags.
type Prefix string

const (
	Session Prefix = "SN"
	Link    Prefix = "LK"
	File    Prefix = "FL"
	User    Prefix = "US"
)

func (p Prefix) valid() bool {
	switch p {
	case Session, Link, File, User:
		return true
	default:
		return false
	}
}

// Identifier is an immutable, prefix-tagged entity identifier. Equality is
// by value over both prefix and body (spec.md §9 Open Question 2: the
// source's reference-equality bug is not reproduced — Go values are
// naturally compared by value).
type Identifier struct {
	prefix Prefix
	body   string
}

// Prefix returns the identifier's entity-kind tag.
func (id Identifier) Prefix() Prefix { return id.prefix }

// Body returns the identifier's body (everything after the 2-char prefix).
func (id Identifier) Body() string { return id.body }

// String renders the identifier in wire format: prefix ++ body.
func (id Identifier) String() string {
	return string(id.prefix) + id.body
}

// Equal reports whether id and other denote the same identifier, comparing
// both prefix and body by value.
func (id Identifier) Equal(other Identifier) bool {
	return id.prefix == other.prefix && id.body == other.body
}

// Generate creates a fresh identifier for prefix, using an RFC-4122-v4 UUID
// string as the body. User IDs cannot be generated (spec.md §3): they are
// always externally provisioned via Parse.
func Generate(prefix Prefix) (Identifier, error) {
	switch prefix {
	case Session, Link, File:
		return Identifier{prefix: prefix, body: uuid.NewString()}, nil
	case User:
		return Identifier{}, ErrNotGeneratable
	default:
		return Identifier{}, ErrInvalidID
	}
}

// Parse reads the leading 2-character prefix from s and validates it against
// the closed set, then requires a non-empty body. parse(display(x)) == x for
// every generated id (spec.md §8).
func Parse(s string) (Identifier, error) {
	if len(s) < 3 {
		return Identifier{}, ErrInvalidID
	}
	prefix := Prefix(s[:2])
	if !prefix.valid() {
		return Identifier{}, ErrInvalidID
	}
	body := s[2:]
	if body == "" {
		return Identifier{}, ErrInvalidID
	}
	return Identifier{prefix: prefix, body: body}, nil
}

// SessionID, LinkID, FileID, and UserID are typed aliases used throughout
// the domain and orchestrator layers for self-documenting signatures. They
// all share the Identifier representation and prefix-validated construction.
type (
	SessionID = Identifier
	LinkID    = Identifier
	FileID    = Identifier
	UserID    = Identifier
)

// ParseAs parses s and additionally requires it to carry the given prefix.
func ParseAs(s string, want Prefix) (Identifier, error) {
	id, err := Parse(s)
	if err != nil {
		return Identifier{}, err
	}
	if id.prefix != want {
		return Identifier{}, ErrInvalidID
	}
	return id, nil
}
