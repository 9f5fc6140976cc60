package domain

import (
	"time"

	"github.com/cinderfile/cinder/internal/ids"
	"github.com/cinderfile/cinder/internal/safemem"
)

// Mode distinguishes an upload handshake session from a download one.
type Mode int

const (
	ModeUpload Mode = iota
	ModeDownload
)

// SessionSecret is a SafeBlob designated as an HMAC key (spec.md §3).
type SessionSecret struct {
	blob *safemem.SafeBlob
}

// NewSessionSecret takes ownership of key (wiping the caller's copy) and
// returns it wrapped as an HMAC key.
func NewSessionSecret(key []byte) (*SessionSecret, error) {
	b, err := safemem.New(key)
	if err != nil {
		return nil, err
	}
	return &SessionSecret{blob: b}, nil
}

// Bytes returns a borrowed view of the secret key material. Fails once Close
// has been called.
func (s *SessionSecret) Bytes() ([]byte, error) {
	if s == nil {
		return nil, safemem.ErrAlreadyResolved
	}
	return s.blob.GetBytes()
}

// Close wipes the underlying key material. Idempotent, safe on nil.
func (s *SessionSecret) Close() {
	if s == nil {
		return
	}
	s.blob.Close()
}

// Session is a short-lived server record binding an in-flight upload or
// download exchange (spec.md §3). Invariants: ExpiresAt > CreatedAt;
// Mode==ModeUpload implies LinkID is zero; Mode==ModeDownload implies LinkID
// is set.
type Session struct {
	ID        ids.SessionID
	Secret    *SessionSecret // may be nil in simplified (non-HMAC) download mode
	LinkID    ids.LinkID     // zero value when Mode == ModeUpload
	Mode      Mode
	CreatedAt time.Time
	ExpiresAt time.Time
}

// HasLinkID reports whether LinkID has been set (i.e. this is a download session).
func (s Session) HasLinkID() bool {
	return s.LinkID.Body() != ""
}

// Validate enforces Session's structural invariants.
func (s Session) Validate() error {
	if !s.ExpiresAt.After(s.CreatedAt) {
		return ErrInvalidInput
	}
	switch s.Mode {
	case ModeUpload:
		if s.HasLinkID() {
			return ErrInvalidInput
		}
	case ModeDownload:
		if !s.HasLinkID() {
			return ErrInvalidInput
		}
	default:
		return ErrInvalidInput
	}
	return nil
}

// Expired reports whether the session is past its expiry at instant now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CloseSecret wipes the session's secret, if any. Safe to call multiple times.
func (s *Session) CloseSecret() {
	if s == nil || s.Secret == nil {
		return
	}
	s.Secret.Close()
}
