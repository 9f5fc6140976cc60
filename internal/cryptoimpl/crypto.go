// Package cryptoimpl implements the CryptoPort described in spec.md §4.4:
// CSPRNG random bytes and timing-safe HMAC-SHA-512 sign/verify. Grounded on
// the hmac.New + subtle.ConstantTimeCompare pairing used in
// darkprince558-JEND/receiver.go and Tomsons-go-srp/srp.go.
package cryptoimpl

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"io"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/safemem"
)

// Port is the CryptoPort contract the orchestrator depends on.
type Port interface {
	RandomBytes(n int) ([]byte, error)
	Sign(secret *domain.SessionSecret, data []byte) (domain.Hmac, error)
	Verify(secret *domain.SessionSecret, data []byte, expected domain.Hmac) (bool, error)
}

// Crypto is the default Port implementation backed by stdlib primitives.
type Crypto struct{}

// New returns a Crypto implementation.
func New() Crypto { return Crypto{} }

// RandomBytes returns n cryptographically random bytes.
func (Crypto) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, domain.ErrCryptoError
	}
	return b, nil
}

// Sign computes HMAC-SHA-512 over data under secret.
func (Crypto) Sign(secret *domain.SessionSecret, data []byte) (domain.Hmac, error) {
	key, err := secret.Bytes()
	if err != nil {
		return domain.Hmac{}, domain.ErrCryptoError
	}
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	sum := mac.Sum(nil)
	var out domain.Hmac
	copy(out[:], sum)
	return out, nil
}

// Verify recomputes the HMAC and compares it against expected in constant
// time. Returns (false, nil) on mismatch — it never uses an error to signal
// "doesn't match" (spec.md §4.4).
func (Crypto) Verify(secret *domain.SessionSecret, data []byte, expected domain.Hmac) (bool, error) {
	computed, err := (Crypto{}).Sign(secret, data)
	if err != nil {
		return false, err
	}
	return safemem.EqualConstantTime(computed[:], expected[:]), nil
}

var _ Port = Crypto{}
