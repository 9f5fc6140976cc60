package domain

import (
	"time"

	"github.com/cinderfile/cinder/internal/ids"
)

// GateVerifier is satisfied by a mode-specific verification gate ("gate
// box"): it decides whether a client-supplied access key proves knowledge of
// the out-of-band secret, without the server ever learning the secret
// itself (spec.md §9's "duck-typed ports" design note, mapped onto a Go
// generic interface instead of a parameterized-by-type-argument class).
type GateVerifier interface {
	// Verify reports whether accessKey satisfies the gate, in timing-safe
	// fashion. It must never return an error to signal "mismatch" — only
	// the boolean carries that information (mirrors CryptoPort.VerifyHmac's
	// contract in spec.md §4.4).
	Verify(accessKey []byte) bool
	// Kind identifies the concrete gate mode (e.g. "quiz", "password") so a
	// SecureFile's gate box can be round-tripped through storage.
	Kind() string
	// Encode serializes the gate box to bytes for persistence.
	Encode() []byte
}

// SecureFile is the durable record of an uploaded file, generic over the
// gate-box type V — the server-side verification predicate — per spec.md
// §9's "generic over gate-box type V and gate-context type C" design note.
// GateContext is the client-facing hint material (e.g. already-encrypted
// quiz questions); spec.md's own examples treat it as an opaque blob handed
// back to the client verbatim, so it is represented uniformly as bytes
// rather than as a second type parameter. Created on upload; never mutated;
// deleted on burn or cleanup.
type SecureFile[V GateVerifier] struct {
	ID             ids.FileID
	LinkID         ids.LinkID
	BlobPath       PathReference
	SealedEnvelope SealedBlob
	SealedSalt     SealedBlob
	GateBox        V
	GateContext    []byte
	FileSpecs      FileSpecs
	CreatedAt      time.Time
	ExpiryDate     time.Time
}

// Expired reports whether the file record is past its expiry at now.
func (f SecureFile[V]) Expired(now time.Time) bool {
	return !now.Before(f.ExpiryDate)
}
