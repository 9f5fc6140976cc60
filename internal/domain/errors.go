// Package domain holds Cinder's sensitive-memory value objects and the
// session/link/file state-machine records described in spec.md §3.
package domain

import "errors"

// Sentinel errors matching the taxonomy in spec.md §7. Cryptographic and
// session errors are intentionally generic; callers at the HTTP boundary
// must not leak which of HmacVerificationFailed / AccessVerificationFailed
// occurred (spec.md §7's indistinguishability requirement).
var (
	ErrInvalidInput           = errors.New("cinder: invalid input")
	ErrInvalidID              = errors.New("cinder: invalid id")
	ErrInvalidSize            = errors.New("cinder: invalid size")
	ErrAlreadyResolved        = errors.New("cinder: already resolved")
	ErrLinkNotFound           = errors.New("cinder: link not found")
	ErrLinkExpired            = errors.New("cinder: link expired")
	ErrFileNotFound           = errors.New("cinder: file not found")
	ErrInvalidSession         = errors.New("cinder: invalid session")
	ErrStaleRequest           = errors.New("cinder: stale request")
	ErrHmacVerificationFailed = errors.New("cinder: hmac verification failed")
	ErrAccessVerificationFail = errors.New("cinder: access verification failed")
	ErrMaxAttemptsExceeded    = errors.New("cinder: max attempts exceeded")
	ErrPepperUnavailable      = errors.New("cinder: pepper unavailable")
	ErrUnknownPepperVersion   = errors.New("cinder: unknown pepper version")
	ErrCryptoError            = errors.New("cinder: crypto error")
	ErrFileStorageError       = errors.New("cinder: file storage error")
	ErrInternal               = errors.New("cinder: internal error")
)
