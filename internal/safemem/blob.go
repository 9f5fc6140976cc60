package safemem

import "crypto/subtle"

// SizeConstraint describes an acceptable byte-length shape for a SafeBlob.
type SizeConstraint struct {
	Min   int // inclusive lower bound; 0 means unconstrained
	Max   int // inclusive upper bound; 0 means unconstrained
	Fixed int // if non-zero, length must equal exactly this
	Mod   int // if non-zero, length must be a multiple of this
}

func (c SizeConstraint) check(n int) error {
	if c.Fixed != 0 && n != c.Fixed {
		return ErrInvalidSize
	}
	if c.Min != 0 && n < c.Min {
		return ErrInvalidSize
	}
	if c.Max != 0 && n > c.Max {
		return ErrInvalidSize
	}
	if c.Mod != 0 && n%c.Mod != 0 {
		return ErrInvalidSize
	}
	return nil
}

// SafeBlob is an owned byte buffer that wipes itself on Close, hands its
// buffer out unwiped on Resolve, and refuses reads after either. Construction takes ownership of the input slice
// by copying it and then zeroing the caller's copy, so a caller can never
// accidentally retain and reuse a buffer handed to a SafeBlob.
type SafeBlob struct {
	buf      []byte
	resolved bool
}

// New constructs an owned SafeBlob from b. b must be non-empty; on return,
// b is zero-filled regardless of success or failure, per the move contract.
func New(b []byte) (*SafeBlob, error) {
	return NewSized(b, SizeConstraint{Min: 1})
}

// NewSized constructs a SafeBlob from b, enforcing constraint. b is always
// zeroed on return (the move happens even on constraint failure, since the
// caller's buffer must never be assumed safe to reuse after a failed call).
func NewSized(b []byte, constraint SizeConstraint) (*SafeBlob, error) {
	defer wipeBytes(b)
	if len(b) == 0 {
		return nil, ErrInvalidSize
	}
	if err := constraint.check(len(b)); err != nil {
		return nil, err
	}
	owned := make([]byte, len(b))
	copy(owned, b)
	return &SafeBlob{buf: owned}, nil
}

// GetBytes returns a borrowed view of the owned buffer. Fails if resolved.
func (s *SafeBlob) GetBytes() ([]byte, error) {
	if s == nil || s.resolved {
		return nil, ErrAlreadyResolved
	}
	return s.buf, nil
}

// Len reports the buffer length without requiring a read accessor.
// Returns -1 if resolved.
func (s *SafeBlob) Len() int {
	if s == nil || s.resolved {
		return -1
	}
	return len(s.buf)
}

// ToBase64 returns a freshly allocated SafeString holding the base64
// encoding of the buffer. Does not consume ownership of s.
func (s *SafeBlob) ToBase64() (*SafeString, error) {
	b, err := s.GetBytes()
	if err != nil {
		return nil, err
	}
	return newStringFromBytes(encodeBase64(b))
}

// Resolve transfers ownership of the underlying buffer to the caller exactly
// once; subsequent calls to any accessor (including a second Resolve) fail.
func (s *SafeBlob) Resolve() ([]byte, error) {
	if s == nil || s.resolved {
		return nil, ErrAlreadyResolved
	}
	out := s.buf
	s.buf = nil
	s.resolved = true
	return out, nil
}

// Close wipes the buffer and marks the blob resolved. Idempotent.
func (s *SafeBlob) Close() {
	if s == nil || s.resolved {
		return
	}
	wipeBytes(s.buf)
	s.buf = nil
	s.resolved = true
}

// wipeBytes overwrites b with zeroes in place.
func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// EqualBlobs performs a timing-safe comparison of two SafeBlobs' contents.
// Fails with ErrAlreadyResolved if either is resolved, and with
// ErrInvalidSize if either is empty or their lengths differ (mirrors spec.md
// §4.1's equals contract).
func EqualBlobs(a, b *SafeBlob) (bool, error) {
	av, err := a.GetBytes()
	if err != nil {
		return false, err
	}
	bv, err := b.GetBytes()
	if err != nil {
		return false, err
	}
	if len(av) == 0 || len(bv) == 0 {
		return false, ErrInvalidSize
	}
	if len(av) != len(bv) {
		return false, ErrInvalidSize
	}
	return subtle.ConstantTimeCompare(av, bv) == 1, nil
}

// EqualConstantTime compares two equal-length byte slices in constant time,
// for use by callers that already hold plain []byte (e.g. HMAC tags) rather
// than SafeBlobs. Returns false (not an error) on length mismatch, since a
// length mismatch in a MAC comparison is itself just "not equal".
func EqualConstantTime(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
