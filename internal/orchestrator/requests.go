package orchestrator

import (
	"time"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
)

// UploadRequest carries everything needed to finalize an upload against an
// already-established UPLOAD-mode session (spec.md §4.8a). The ciphertext is
// not a field here: Upload takes it as a separate io.Reader and streams it
// to the FileStorePort;
// Envelope and Salt are small plaintext metadata values the orchestrator
// pepper-seals before persisting — never the file content itself.
type UploadRequest struct {
	SessionID   ids.SessionID
	Envelope    []byte
	Salt        []byte
	GateBox     domain.GateVerifier
	GateContext []byte
	FileSpecs   domain.FileSpecs
	Timestamp   time.Time
	Hmac        domain.Hmac
}

// UploadResult is returned by Upload on success.
type UploadResult struct {
	LinkID     ids.LinkID
	ExpiryDate time.Time
}

// InitDownloadResult is returned by InitDownloadHandshake on success.
// Secret is non-nil only when the deployment runs in HMAC mode
// (Service.RequireHMAC).
type InitDownloadResult struct {
	SessionID   ids.SessionID
	Secret      *domain.SessionSecret
	GateContext []byte
}

// VerifyDownloadRequest carries the client's proof-of-knowledge attempt
// (spec.md §4.8c).
type VerifyDownloadRequest struct {
	SessionID ids.SessionID
	AccessKey []byte
	Timestamp time.Time
	Hmac      domain.Hmac
}

// VerifyDownloadResult is returned by VerifyDownloadAccess on success. In
// split-burn mode, AckSessionID names the follow-up session the client
// must present to AcknowledgeDownload; in immediate-burn mode it is the
// zero value because burn has already happened.
type VerifyDownloadResult struct {
	Blob         []byte
	Envelope     []byte
	Salt         []byte
	AckSessionID ids.SessionID
}
