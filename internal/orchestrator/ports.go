// Package orchestrator implements the flow orchestrator (C9, spec.md §4.8):
// the five use cases — upload, init download handshake, verify download
// access, acknowledge download, cleanup expired — composing the session
// cache, download-limit tracker, secure-file repository, pepper vault, and
// crypto port behind small local interfaces, in the hexagonal style of the
// teacher's internal/app package (haukened-gone): this package declares
// what the use cases need; concrete adapters (sessioncache, limittracker,
// filerepo, pepper, cryptoimpl, blobstore/*) satisfy these interfaces.
package orchestrator

import (
	"context"
	"io"
	"time"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
)

// ClockPort abstracts time so expiry/skew logic is deterministically
// testable.
type ClockPort interface {
	Now() time.Time
}

// FileStorePort stores and retrieves opaque ciphertext blobs keyed by
// link. Implemented by blobstore/filesystem and blobstore/s3.
type FileStorePort interface {
	Write(ctx context.Context, linkID ids.LinkID, r io.Reader) (domain.PathReference, error)
	Open(ctx context.Context, ref domain.PathReference) (io.ReadCloser, error)
	Delete(ctx context.Context, ref domain.PathReference) error
}

// SessionCachePort is the session cache port (C6). Implemented by
// sessioncache.Cache.
type SessionCachePort interface {
	Save(s domain.Session)
	Get(id ids.SessionID) (domain.Session, bool)
	Delete(id ids.SessionID)
	Take(id ids.SessionID) (domain.Session, bool)
}

// DownloadLimitPort is the download-limit tracker port (C7). Implemented by
// limittracker.Tracker.
type DownloadLimitPort interface {
	Create(ctx context.Context, dl domain.DownloadLimit) error
	Get(ctx context.Context, linkID ids.LinkID) (domain.DownloadLimit, error)
	DecrementAttempts(ctx context.Context, linkID ids.LinkID, now time.Time) (remaining uint16, err error)
	Delete(ctx context.Context, linkID ids.LinkID) error
	ExpireBefore(ctx context.Context, t time.Time) ([]ids.LinkID, error)
}

// ExpiredFile is the minimal projection SecureFileRepositoryPort returns for
// the cleanup sweep.
type ExpiredFile struct {
	LinkID   ids.LinkID
	BlobPath domain.PathReference
}

// SecureFileRepositoryPort is the secure-file repository port (C8).
// Implemented by filerepo.Repo.
type SecureFileRepositoryPort interface {
	Save(ctx context.Context, f domain.SecureFile[domain.GateVerifier]) error
	FindByLinkID(ctx context.Context, linkID ids.LinkID) (domain.SecureFile[domain.GateVerifier], error)
	DeleteByLinkID(ctx context.Context, linkID ids.LinkID) error
	ExpiredBefore(ctx context.Context, t time.Time) ([]ExpiredFile, error)
}

// CryptoPort is the crypto port (C5). Implemented by cryptoimpl.Crypto.
type CryptoPort interface {
	RandomBytes(n int) ([]byte, error)
	Sign(secret *domain.SessionSecret, data []byte) (domain.Hmac, error)
	Verify(secret *domain.SessionSecret, data []byte, expected domain.Hmac) (bool, error)
}

// PepperPort is the pepper vault port (C4). Implemented by pepper.Vault.
type PepperPort interface {
	Seal(data []byte) (domain.SealedBlob, error)
	Unseal(sb domain.SealedBlob) ([]byte, error)
}

// MetricsPort mirrors the teacher's minimal Metrics dependency (app.Metrics
// in haukened-gone): an optional counter/histogram sink the orchestrator may
// be constructed without. ObserveUpload and ObserveVerify record wall-clock
// duration per use case, labeled by outcome, so the /metrics endpoint can
// show latency distributions alongside the plain event counters.
type MetricsPort interface {
	Inc(name string, delta int64)
	ObserveUpload(d time.Duration, outcome string)
	ObserveVerify(d time.Duration, outcome string)
}
