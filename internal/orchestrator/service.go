package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
)

// BurnPolicy selects when a link is burned relative to a successful verify,
// resolving spec.md §9 Open Question 1. SplitBurn is the safer default
// against client crashes leaving a file verified-but-undownloaded; the
// alternative "alpha" ImmediateBurn policy is supported for deployments
// that would rather not track an acknowledgment session at all.
type BurnPolicy int

const (
	// SplitBurn defers the actual burn to a follow-up AcknowledgeDownload
	// call, re-inserting a short-lived AWAITING_ACK session after a
	// successful verify.
	SplitBurn BurnPolicy = iota
	// ImmediateBurn performs the full burn sequence inside
	// VerifyDownloadAccess itself.
	ImmediateBurn
)

// Service is the C9 flow orchestrator. It holds no sensitive material
// itself between requests; every SafeBlob/SessionSecret it touches is
// scoped to a single use-case call.
type Service struct {
	Clock       ClockPort
	FileStore   FileStorePort
	Sessions    SessionCachePort
	Limits      DownloadLimitPort
	Files       SecureFileRepositoryPort
	Crypto      CryptoPort
	Pepper      PepperPort
	Metrics     MetricsPort // optional; nil is safe
	BurnPolicy  BurnPolicy
	SessionTTL  time.Duration
	ClockSkew   time.Duration
	AckTimeout  time.Duration
	RequireHMAC bool // HMAC mode vs simplified mode (no per-session secret)
}

func (s *Service) incMetric(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name, 1)
	}
}

func (s *Service) observeUpload(d time.Duration, outcome string) {
	if s.Metrics != nil {
		s.Metrics.ObserveUpload(d, outcome)
	}
}

func (s *Service) observeVerify(d time.Duration, outcome string) {
	if s.Metrics != nil {
		s.Metrics.ObserveVerify(d, outcome)
	}
}

// checkSkew rejects requests whose timestamp drifts past the configured
// clock-skew window in either direction (spec.md §4.8a step 2, §8 scenario
// 6).
func (s *Service) checkSkew(ts time.Time) error {
	now := s.Clock.Now()
	delta := now.Sub(ts)
	if delta < 0 {
		delta = -delta
	}
	if delta > s.ClockSkew {
		return domain.ErrStaleRequest
	}
	return nil
}

// verifyHMAC checks req's HMAC against secret over the canonical payload.
// Per spec.md §7, a mismatch and a missing secret must be indistinguishable
// to the caller: both return ErrHmacVerificationFailed. A failure to compute
// the HMAC at all (Crypto.Verify returning an error) returns ErrCryptoError.
func (s *Service) verifyHMAC(secret *domain.SessionSecret, payload []byte, expected domain.Hmac) error {
	if secret == nil {
		return domain.ErrHmacVerificationFailed
	}
	ok, err := s.Crypto.Verify(secret, payload, expected)
	if err != nil {
		return domain.ErrCryptoError
	}
	if !ok {
		return domain.ErrHmacVerificationFailed
	}
	return nil
}

// Upload finalizes an upload session into a durable, burnable link
// (spec.md §4.8a).
func (s *Service) Upload(ctx context.Context, blob io.Reader, req UploadRequest) (result UploadResult, err error) {
	start := s.Clock.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.observeUpload(s.Clock.Now().Sub(start), outcome)
	}()

	session, ok := s.Sessions.Get(req.SessionID)
	if !ok {
		return UploadResult{}, domain.ErrInvalidSession
	}
	if session.Mode != domain.ModeUpload {
		return UploadResult{}, domain.ErrInvalidSession
	}

	payload := canonicalize(
		[]byte(req.SessionID.String()),
		req.Envelope,
		req.Salt,
		req.GateBox.Encode(),
		req.GateContext,
		fileSpecsBytes(req.FileSpecs),
		timestampBytes(req.Timestamp.Unix()),
	)
	if s.RequireHMAC {
		if err := s.verifyHMAC(session.Secret, payload, req.Hmac); err != nil {
			return UploadResult{}, err
		}
	}
	if err := s.checkSkew(req.Timestamp); err != nil {
		return UploadResult{}, err
	}
	if err := req.FileSpecs.Validate(); err != nil {
		return UploadResult{}, domain.ErrInvalidInput
	}

	fileID, err := ids.Generate(ids.File)
	if err != nil {
		return UploadResult{}, domain.ErrInternal
	}
	linkID, err := ids.Generate(ids.Link)
	if err != nil {
		return UploadResult{}, domain.ErrInternal
	}

	blobPath, err := s.FileStore.Write(ctx, linkID, blob)
	if err != nil {
		return UploadResult{}, domain.ErrFileStorageError
	}
	rollbackBlob := func() { _ = s.FileStore.Delete(ctx, blobPath) }

	sealedEnvelope, err := s.Pepper.Seal(req.Envelope)
	if err != nil {
		rollbackBlob()
		return UploadResult{}, err
	}
	sealedSalt, err := s.Pepper.Seal(req.Salt)
	if err != nil {
		rollbackBlob()
		return UploadResult{}, err
	}

	now := s.Clock.Now()
	expiryDate := now.Add(time.Duration(req.FileSpecs.ExpirySeconds) * time.Second)

	file := domain.SecureFile[domain.GateVerifier]{
		ID:             fileID,
		LinkID:         linkID,
		BlobPath:       blobPath,
		SealedEnvelope: sealedEnvelope,
		SealedSalt:     sealedSalt,
		GateBox:        req.GateBox,
		GateContext:    req.GateContext,
		FileSpecs:      req.FileSpecs,
		CreatedAt:      now,
		ExpiryDate:     expiryDate,
	}
	if err := s.Files.Save(ctx, file); err != nil {
		rollbackBlob()
		return UploadResult{}, domain.ErrInternal
	}

	limit := domain.DownloadLimit{
		LinkID:            linkID,
		RemainingAttempts: req.FileSpecs.MaxAttempts,
		ExpiryDate:        expiryDate,
	}
	if err := s.Limits.Create(ctx, limit); err != nil {
		_ = s.Files.DeleteByLinkID(ctx, linkID)
		rollbackBlob()
		return UploadResult{}, domain.ErrInternal
	}

	s.Sessions.Delete(req.SessionID)
	s.incMetric("cinder_uploads_total")
	return UploadResult{LinkID: linkID, ExpiryDate: expiryDate}, nil
}

// InitDownloadHandshake begins a download exchange for an existing link
// (spec.md §4.8b).
func (s *Service) InitDownloadHandshake(ctx context.Context, linkID ids.LinkID) (InitDownloadResult, error) {
	file, err := s.Files.FindByLinkID(ctx, linkID)
	if err != nil {
		return InitDownloadResult{}, domain.ErrLinkNotFound
	}
	now := s.Clock.Now()
	if !now.Before(file.ExpiryDate) {
		return InitDownloadResult{}, domain.ErrLinkExpired
	}

	sessionID, err := ids.Generate(ids.Session)
	if err != nil {
		return InitDownloadResult{}, domain.ErrInternal
	}

	var secret *domain.SessionSecret
	if s.RequireHMAC {
		raw, rerr := s.Crypto.RandomBytes(32)
		if rerr != nil {
			return InitDownloadResult{}, domain.ErrCryptoError
		}
		secret, err = domain.NewSessionSecret(raw)
		if err != nil {
			return InitDownloadResult{}, domain.ErrInternal
		}
	}

	session := domain.Session{
		ID:        sessionID,
		Secret:    secret,
		LinkID:    linkID,
		Mode:      domain.ModeDownload,
		CreatedAt: now,
		ExpiresAt: now.Add(s.SessionTTL),
	}
	s.Sessions.Save(session)

	s.incMetric("cinder_init_download_total")
	return InitDownloadResult{SessionID: sessionID, Secret: secret, GateContext: file.GateContext}, nil
}

// VerifyDownloadAccess consumes one download attempt and, on success,
// returns the ciphertext blob plus sealed-then-unsealed envelope/salt
// (spec.md §4.8c).
func (s *Service) VerifyDownloadAccess(ctx context.Context, req VerifyDownloadRequest) (result VerifyDownloadResult, err error) {
	start := s.Clock.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.observeVerify(s.Clock.Now().Sub(start), outcome)
	}()

	session, ok := s.Sessions.Take(req.SessionID)
	if !ok {
		return VerifyDownloadResult{}, domain.ErrInvalidSession
	}
	if session.Mode != domain.ModeDownload || !session.HasLinkID() {
		return VerifyDownloadResult{}, domain.ErrInvalidSession
	}
	// Take already removed this session from the cache, so it is single-use
	// regardless of outcome: the secret's only job was signing this request.
	defer session.CloseSecret()

	payload := canonicalize(
		[]byte(req.SessionID.String()),
		req.AccessKey,
		timestampBytes(req.Timestamp.Unix()),
	)
	if s.RequireHMAC {
		if err := s.verifyHMAC(session.Secret, payload, req.Hmac); err != nil {
			return VerifyDownloadResult{}, err
		}
	}
	if err := s.checkSkew(req.Timestamp); err != nil {
		return VerifyDownloadResult{}, err
	}

	linkID := session.LinkID
	file, err := s.Files.FindByLinkID(ctx, linkID)
	if err != nil {
		return VerifyDownloadResult{}, domain.ErrLinkNotFound
	}

	now := s.Clock.Now()
	if _, err := s.Limits.DecrementAttempts(ctx, linkID, now); err != nil {
		if errors.Is(err, domain.ErrMaxAttemptsExceeded) {
			_ = s.burn(ctx, linkID, file.BlobPath)
		}
		return VerifyDownloadResult{}, err
	}

	// The decrement above already counted this attempt; a gate mismatch
	// still fails the call, per spec.md §4.8c step 5.
	if !file.GateBox.Verify(req.AccessKey) {
		return VerifyDownloadResult{}, domain.ErrAccessVerificationFail
	}

	envelope, err := s.Pepper.Unseal(file.SealedEnvelope)
	if err != nil {
		return VerifyDownloadResult{}, err
	}
	salt, err := s.Pepper.Unseal(file.SealedSalt)
	if err != nil {
		return VerifyDownloadResult{}, err
	}

	rc, err := s.FileStore.Open(ctx, file.BlobPath)
	if err != nil {
		return VerifyDownloadResult{}, domain.ErrFileStorageError
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return VerifyDownloadResult{}, domain.ErrFileStorageError
	}

	result = VerifyDownloadResult{Blob: buf.Bytes(), Envelope: envelope, Salt: salt}

	switch s.BurnPolicy {
	case ImmediateBurn:
		if err := s.burn(ctx, linkID, file.BlobPath); err != nil {
			return VerifyDownloadResult{}, err
		}
	default: // SplitBurn
		ackID, err := ids.Generate(ids.Session)
		if err != nil {
			return VerifyDownloadResult{}, domain.ErrInternal
		}
		ack := domain.Session{
			ID:        ackID,
			LinkID:    linkID,
			Mode:      domain.ModeDownload,
			CreatedAt: now,
			ExpiresAt: now.Add(s.AckTimeout),
		}
		s.Sessions.Save(ack)
		result.AckSessionID = ackID
	}

	s.incMetric("cinder_verify_download_total")
	return result, nil
}

// AcknowledgeDownload completes the burn for a link named by a session
// previously issued in split-burn mode (spec.md §4.8d).
func (s *Service) AcknowledgeDownload(ctx context.Context, sessionID ids.SessionID) error {
	session, ok := s.Sessions.Take(sessionID)
	if !ok {
		return domain.ErrInvalidSession
	}
	if !session.HasLinkID() {
		return domain.ErrInvalidSession
	}
	file, err := s.Files.FindByLinkID(ctx, session.LinkID)
	if err != nil {
		// Already burned or never existed; acknowledge is idempotent.
		return nil
	}
	if err := s.burn(ctx, session.LinkID, file.BlobPath); err != nil {
		return err
	}
	s.incMetric("cinder_acknowledge_download_total")
	return nil
}

// CleanupExpired sweeps every expired SecureFile and burns it (spec.md
// §4.8e). It is idempotent and safe to run concurrently with an in-flight
// verify on the same link: whichever mutating step (limit decrement or
// this sweep's file-repo delete) runs first wins.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	now := s.Clock.Now()
	expired, err := s.Files.ExpiredBefore(ctx, now)
	if err != nil {
		return 0, domain.ErrInternal
	}
	count := 0
	for _, ef := range expired {
		if err := s.burn(ctx, ef.LinkID, ef.BlobPath); err == nil {
			count++
		}
	}

	// burn deletes the SecureFile row before the DownloadLimit row; a
	// crash in between leaves an orphan limit row with no SecureFile to
	// ever surface it via ExpiredBefore above. Sweep download_limits by
	// its own expiry to catch that case.
	if stale, serr := s.Limits.ExpireBefore(ctx, now); serr == nil {
		count += len(stale)
	}

	s.incMetric("cinder_cleanup_expired_total")
	return count, nil
}

// burn removes the file record, blob bytes, and limit record for linkID, in
// that order, tolerating already-gone errors on everything but the file
// record itself (spec.md glossary: "Burn"). It does not touch sessions: its
// callers VerifyDownloadAccess and AcknowledgeDownload have already removed
// theirs from the cache via Sessions.Take.
func (s *Service) burn(ctx context.Context, linkID ids.LinkID, blobPath domain.PathReference) error {
	if err := s.Files.DeleteByLinkID(ctx, linkID); err != nil {
		return domain.ErrInternal
	}
	_ = s.FileStore.Delete(ctx, blobPath)
	_ = s.Limits.Delete(ctx, linkID)
	return nil
}
