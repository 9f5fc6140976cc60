package httpx_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/cinderfile/cinder/internal/cryptoimpl"
	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/gate"
	"github.com/cinderfile/cinder/internal/httpx"
	"github.com/cinderfile/cinder/internal/ids"
	"github.com/cinderfile/cinder/internal/orchestrator"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

type memFileStore struct {
	blobs map[ids.Identifier][]byte
}

func newMemFileStore() *memFileStore { return &memFileStore{blobs: map[ids.Identifier][]byte{}} }

func (m *memFileStore) Write(_ context.Context, linkID ids.LinkID, r io.Reader) (domain.PathReference, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.blobs[linkID] = data
	return domain.PathReference(linkID.String() + ".blob"), nil
}

func (m *memFileStore) Open(_ context.Context, ref domain.PathReference) (io.ReadCloser, error) {
	for id, data := range m.blobs {
		if domain.PathReference(id.String()+".blob") == ref {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	return nil, domain.ErrFileNotFound
}

func (m *memFileStore) Delete(_ context.Context, ref domain.PathReference) error {
	for id := range m.blobs {
		if domain.PathReference(id.String()+".blob") == ref {
			delete(m.blobs, id)
		}
	}
	return nil
}

type memSessions struct {
	sessions map[ids.Identifier]domain.Session
}

func newMemSessions() *memSessions { return &memSessions{sessions: map[ids.Identifier]domain.Session{}} }

func (m *memSessions) Save(s domain.Session) { m.sessions[s.ID] = s }
func (m *memSessions) Get(id ids.SessionID) (domain.Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}
func (m *memSessions) Delete(id ids.SessionID) { delete(m.sessions, id) }
func (m *memSessions) Take(id ids.SessionID) (domain.Session, bool) {
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return s, ok
}

type memLimits struct {
	limits map[ids.Identifier]domain.DownloadLimit
}

func newMemLimits() *memLimits { return &memLimits{limits: map[ids.Identifier]domain.DownloadLimit{}} }

func (m *memLimits) Create(_ context.Context, dl domain.DownloadLimit) error {
	m.limits[dl.LinkID] = dl
	return nil
}
func (m *memLimits) Get(_ context.Context, linkID ids.LinkID) (domain.DownloadLimit, error) {
	dl, ok := m.limits[linkID]
	if !ok {
		return domain.DownloadLimit{}, domain.ErrLinkNotFound
	}
	return dl, nil
}
func (m *memLimits) DecrementAttempts(_ context.Context, linkID ids.LinkID, now time.Time) (uint16, error) {
	dl, ok := m.limits[linkID]
	if !ok {
		return 0, domain.ErrLinkNotFound
	}
	if dl.RemainingAttempts == 0 {
		return 0, domain.ErrMaxAttemptsExceeded
	}
	dl.RemainingAttempts--
	dl.LastAttemptAt = &now
	m.limits[linkID] = dl
	return dl.RemainingAttempts, nil
}
func (m *memLimits) Delete(_ context.Context, linkID ids.LinkID) error {
	delete(m.limits, linkID)
	return nil
}
func (m *memLimits) ExpireBefore(_ context.Context, t time.Time) ([]ids.LinkID, error) { return nil, nil }

type memFiles struct {
	files map[ids.Identifier]domain.SecureFile[domain.GateVerifier]
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[ids.Identifier]domain.SecureFile[domain.GateVerifier]{}}
}

func (m *memFiles) Save(_ context.Context, f domain.SecureFile[domain.GateVerifier]) error {
	m.files[f.LinkID] = f
	return nil
}
func (m *memFiles) FindByLinkID(_ context.Context, linkID ids.LinkID) (domain.SecureFile[domain.GateVerifier], error) {
	f, ok := m.files[linkID]
	if !ok {
		return domain.SecureFile[domain.GateVerifier]{}, domain.ErrFileNotFound
	}
	return f, nil
}
func (m *memFiles) DeleteByLinkID(_ context.Context, linkID ids.LinkID) error {
	delete(m.files, linkID)
	return nil
}
func (m *memFiles) ExpiredBefore(_ context.Context, t time.Time) ([]orchestrator.ExpiredFile, error) {
	return nil, nil
}

type passthroughPepper struct{}

func (passthroughPepper) Seal(data []byte) (domain.SealedBlob, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	return domain.SealedBlob{Ciphertext: cp, PepperVersion: 1}, nil
}
func (passthroughPepper) Unseal(sb domain.SealedBlob) ([]byte, error) {
	cp := make([]byte, len(sb.Ciphertext))
	copy(cp, sb.Ciphertext)
	return cp, nil
}

// newTestHandler wires a real orchestrator.Service over in-memory port
// adapters, running in simplified (non-HMAC) mode so tests don't need to
// compute request signatures.
func newTestHandler(t *testing.T, now time.Time) (*httpx.Handler, *memSessions, *memFiles, *memLimits, *memFileStore) {
	t.Helper()
	sessions := newMemSessions()
	files := newMemFiles()
	limits := newMemLimits()
	fileStore := newMemFileStore()
	svc := &orchestrator.Service{
		Clock:      fixedClock{now: now},
		FileStore:  fileStore,
		Sessions:   sessions,
		Limits:     limits,
		Files:      files,
		Pepper:     passthroughPepper{},
		BurnPolicy: orchestrator.SplitBurn,
		SessionTTL: time.Minute,
		ClockSkew:  time.Hour,
		AckTimeout: time.Minute,
	}
	return httpx.New(svc, gate.NewRegistry(), 1<<20, nil), sessions, files, limits, fileStore
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// newHMACTestHandler wires a real orchestrator.Service with RequireHMAC
// enabled (config.DefaultAppConfig's shipped default) and a real
// cryptoimpl.Crypto, so the init->verify round trip below exercises the
// actual HMAC sign/verify path instead of the simplified mode the other
// tests in this file use.
func newHMACTestHandler(t *testing.T, now time.Time) (*httpx.Handler, *memFiles, *memLimits, *memFileStore) {
	t.Helper()
	sessions := newMemSessions()
	files := newMemFiles()
	limits := newMemLimits()
	fileStore := newMemFileStore()
	svc := &orchestrator.Service{
		Clock:       fixedClock{now: now},
		FileStore:   fileStore,
		Sessions:    sessions,
		Limits:      limits,
		Files:       files,
		Crypto:      cryptoimpl.New(),
		Pepper:      passthroughPepper{},
		RequireHMAC: true,
		BurnPolicy:  orchestrator.SplitBurn,
		SessionTTL:  time.Minute,
		ClockSkew:   time.Hour,
		AckTimeout:  time.Minute,
	}
	return httpx.New(svc, gate.NewRegistry(), 1<<20, nil), files, limits, fileStore
}

// canonicalVerifyPayload mirrors orchestrator.canonicalize's length-prefixed
// concatenation for a verify request (sessionID, accessKey, timestamp), so a
// test acting as the client can sign a request the same way the wire
// protocol requires without reaching into orchestrator's unexported helpers.
func canonicalVerifyPayload(sessionID, accessKey []byte, ts int64) []byte {
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	fields := [][]byte{sessionID, accessKey, tsBuf[:]}
	var out []byte
	var lenBuf [4]byte
	for _, f := range fields {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

// TestHandleInitVerifyRoundTripWithHMAC reproduces the full init->verify
// exchange under RequireHMAC: true, the shipped default. It would have
// caught a handler closing the shared session secret after the init
// response was encoded, which wipes the key the verify step's HMAC check
// still needs.
func TestHandleInitVerifyRoundTripWithHMAC(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h, files, limits, fileStore := newHMACTestHandler(t, now)
	linkID := seedDownloadableLink(t, files, limits, now)
	fileStore.blobs[linkID] = []byte("ciphertext-bytes")

	initReq := httptest.NewRequest(http.MethodPost, "/api/links/"+linkID.String()+"/init", nil)
	initW := httptest.NewRecorder()
	h.Router().ServeHTTP(initW, initReq)
	if initW.Code != http.StatusOK {
		t.Fatalf("init failed: %d %s", initW.Code, initW.Body.String())
	}
	var initResp struct {
		SessionID string `json:"sessionId"`
		Secret    string `json:"secret"`
	}
	if err := json.Unmarshal(initW.Body.Bytes(), &initResp); err != nil {
		t.Fatalf("decode init response: %v", err)
	}
	if initResp.Secret == "" {
		t.Fatalf("expected a secret in the init response under HMAC mode")
	}
	secret, err := base64.StdEncoding.DecodeString(initResp.Secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	accessKey := gate.NewPasswordGate([]byte("hunter2")).Hash[:]
	payload := canonicalVerifyPayload([]byte(initResp.SessionID), accessKey, now.Unix())
	mac := hmac.New(sha512.New, secret)
	mac.Write(payload)
	sig := mac.Sum(nil)

	verifyBody := []byte(`{"accessKey":"` + b64(accessKey) + `"}`)
	verifyReq := httptest.NewRequest(http.MethodPost, "/api/sessions/"+initResp.SessionID+"/verify", bytes.NewReader(verifyBody))
	verifyReq.Header.Set("X-Cinder-Timestamp", strconv.FormatInt(now.Unix(), 10))
	verifyReq.Header.Set("X-Cinder-Hmac", b64(sig))
	verifyW := httptest.NewRecorder()
	h.Router().ServeHTTP(verifyW, verifyReq)
	if verifyW.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", verifyW.Code, verifyW.Body.String())
	}
	if verifyW.Body.String() != "ciphertext-bytes" {
		t.Fatalf("unexpected blob body: %q", verifyW.Body.String())
	}
}

// TestHandleVerifyWithHMACRejectsBadSignature confirms the verify step
// actually enforces the signature rather than accepting anything once a
// secret is present.
func TestHandleVerifyWithHMACRejectsBadSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h, files, limits, fileStore := newHMACTestHandler(t, now)
	linkID := seedDownloadableLink(t, files, limits, now)
	fileStore.blobs[linkID] = []byte("ciphertext-bytes")

	initReq := httptest.NewRequest(http.MethodPost, "/api/links/"+linkID.String()+"/init", nil)
	initW := httptest.NewRecorder()
	h.Router().ServeHTTP(initW, initReq)
	var initResp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(initW.Body.Bytes(), &initResp); err != nil {
		t.Fatalf("decode init response: %v", err)
	}

	accessKey := gate.NewPasswordGate([]byte("hunter2")).Hash[:]
	verifyBody := []byte(`{"accessKey":"` + b64(accessKey) + `"}`)
	verifyReq := httptest.NewRequest(http.MethodPost, "/api/sessions/"+initResp.SessionID+"/verify", bytes.NewReader(verifyBody))
	verifyReq.Header.Set("X-Cinder-Timestamp", strconv.FormatInt(now.Unix(), 10))
	verifyReq.Header.Set("X-Cinder-Hmac", b64(make([]byte, domain.HmacSize)))
	verifyW := httptest.NewRecorder()
	h.Router().ServeHTTP(verifyW, verifyReq)
	if verifyW.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", verifyW.Code, verifyW.Body.String())
	}
}

func TestHandleUploadSuccess(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h, sessions, files, _, _ := newTestHandler(t, now)
	sessionID, err := ids.Generate(ids.Session)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	sessions.Save(domain.Session{ID: sessionID, Mode: domain.ModeUpload, CreatedAt: now, ExpiresAt: now.Add(time.Minute)})

	g := gate.NewPasswordGate([]byte("hunter2"))
	body := []byte("ciphertext-bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/links", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.Header.Set("X-Cinder-Session-Id", sessionID.String())
	req.Header.Set("X-Cinder-Timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("X-Cinder-Hmac", b64(make([]byte, domain.HmacSize)))
	req.Header.Set("X-Cinder-Envelope", b64([]byte("envelope")))
	req.Header.Set("X-Cinder-Salt", b64([]byte("0123456789abcdef")))
	req.Header.Set("X-Cinder-Gate-Kind", g.Kind())
	req.Header.Set("X-Cinder-Gate-Box", b64(g.Encode()))
	req.Header.Set("X-Cinder-Gate-Context", b64([]byte("hint")))
	req.Header.Set("X-Cinder-Expiry-Seconds", "3600")
	req.Header.Set("X-Cinder-Max-Attempts", "3")

	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if len(files.files) != 1 {
		t.Fatalf("expected a file record to be created")
	}
}

func TestHandleUploadMissingContentLength(t *testing.T) {
	now := time.Now()
	h, sessions, _, _, _ := newTestHandler(t, now)
	sessionID, err := ids.Generate(ids.Session)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	sessions.Save(domain.Session{ID: sessionID, Mode: domain.ModeUpload, CreatedAt: now, ExpiresAt: now.Add(time.Minute)})

	req := httptest.NewRequest(http.MethodPost, "/api/links", nil)
	req.Header.Set("X-Cinder-Session-Id", sessionID.String())
	req.Header.Set("X-Cinder-Timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("X-Cinder-Hmac", b64(make([]byte, domain.HmacSize)))
	req.Header.Set("X-Cinder-Envelope", b64([]byte("envelope")))
	req.Header.Set("X-Cinder-Salt", b64([]byte("salt")))
	req.Header.Set("X-Cinder-Gate-Kind", "password")
	req.Header.Set("X-Cinder-Gate-Box", b64(gate.NewPasswordGate([]byte("x")).Encode()))
	req.Header.Set("X-Cinder-Gate-Context", b64(nil))
	req.Header.Set("X-Cinder-Expiry-Seconds", "3600")
	req.Header.Set("X-Cinder-Max-Attempts", "1")

	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusLengthRequired {
		t.Fatalf("expected 411, got %d", w.Code)
	}
}

func seedDownloadableLink(t *testing.T, files *memFiles, limits *memLimits, now time.Time) ids.LinkID {
	t.Helper()
	linkID, err := ids.Generate(ids.Link)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	fileID, err := ids.Generate(ids.File)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	g := gate.NewPasswordGate([]byte("hunter2"))
	files.files[linkID] = domain.SecureFile[domain.GateVerifier]{
		ID:             fileID,
		LinkID:         linkID,
		BlobPath:       domain.PathReference(linkID.String() + ".blob"),
		SealedEnvelope: domain.SealedBlob{Ciphertext: []byte("envelope"), PepperVersion: 1},
		SealedSalt:     domain.SealedBlob{Ciphertext: []byte("salt"), PepperVersion: 1},
		GateBox:        g,
		FileSpecs:      domain.FileSpecs{ExpirySeconds: 3600, MaxAttempts: 3},
		CreatedAt:      now,
		ExpiryDate:     now.Add(time.Hour),
	}
	if limits != nil {
		limits.limits[linkID] = domain.DownloadLimit{LinkID: linkID, RemainingAttempts: 3, ExpiryDate: now.Add(time.Hour)}
	}
	return linkID
}

func TestHandleInitDownloadSuccess(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h, _, files, limits, _ := newTestHandler(t, now)
	linkID := seedDownloadableLink(t, files, limits, now)

	req := httptest.NewRequest(http.MethodPost, "/api/links/"+linkID.String()+"/init", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleInitDownloadUnknownLink(t *testing.T) {
	now := time.Now()
	h, _, _, _, _ := newTestHandler(t, now)
	unknown, err := ids.Generate(ids.Link)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/links/"+unknown.String()+"/init", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleVerifyAndAcknowledgeRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h, sessions, files, limits, fileStore := newTestHandler(t, now)
	linkID := seedDownloadableLink(t, files, limits, now)
	fileStore.blobs[linkID] = []byte("ciphertext-bytes")

	initReq := httptest.NewRequest(http.MethodPost, "/api/links/"+linkID.String()+"/init", nil)
	initW := httptest.NewRecorder()
	h.Router().ServeHTTP(initW, initReq)
	if initW.Code != http.StatusOK {
		t.Fatalf("init failed: %d %s", initW.Code, initW.Body.String())
	}
	var initResp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(initW.Body.Bytes(), &initResp); err != nil {
		t.Fatalf("decode init response: %v", err)
	}
	sessionID := initResp.SessionID
	_ = sessions

	verifyBody := []byte(`{"accessKey":"` + b64(gate.NewPasswordGate([]byte("hunter2")).Hash[:]) + `"}`)
	verifyReq := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/verify", bytes.NewReader(verifyBody))
	verifyReq.Header.Set("X-Cinder-Timestamp", strconv.FormatInt(now.Unix(), 10))
	verifyW := httptest.NewRecorder()
	h.Router().ServeHTTP(verifyW, verifyReq)
	if verifyW.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", verifyW.Code, verifyW.Body.String())
	}
	ackSessionID := verifyW.Header().Get("X-Cinder-Ack-Session-Id")
	if ackSessionID == "" {
		t.Fatalf("expected an ack session id header under split-burn policy")
	}

	ackReq := httptest.NewRequest(http.MethodPost, "/api/sessions/"+ackSessionID+"/ack", nil)
	ackW := httptest.NewRecorder()
	h.Router().ServeHTTP(ackW, ackReq)
	if ackW.Code != http.StatusNoContent {
		t.Fatalf("ack failed: %d %s", ackW.Code, ackW.Body.String())
	}
	if _, ok := files.files[linkID]; ok {
		t.Fatalf("expected file record to be burned after acknowledge")
	}
}

func TestHandleVerifyWrongAccessKeyReturnsUnauthorized(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h, _, files, limits, _ := newTestHandler(t, now)
	linkID := seedDownloadableLink(t, files, limits, now)

	initReq := httptest.NewRequest(http.MethodPost, "/api/links/"+linkID.String()+"/init", nil)
	initW := httptest.NewRecorder()
	h.Router().ServeHTTP(initW, initReq)
	var initResp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(initW.Body.Bytes(), &initResp); err != nil {
		t.Fatalf("decode init response: %v", err)
	}

	verifyBody := []byte(`{"accessKey":"` + b64([]byte("wrong")) + `"}`)
	verifyReq := httptest.NewRequest(http.MethodPost, "/api/sessions/"+initResp.SessionID+"/verify", bytes.NewReader(verifyBody))
	verifyReq.Header.Set("X-Cinder-Timestamp", strconv.FormatInt(now.Unix(), 10))
	verifyW := httptest.NewRecorder()
	h.Router().ServeHTTP(verifyW, verifyReq)
	if verifyW.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", verifyW.Code, verifyW.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	readyCalled := false
	sessions := newMemSessions()
	files := newMemFiles()
	svc := &orchestrator.Service{
		Clock:     fixedClock{now: time.Now()},
		FileStore: newMemFileStore(),
		Sessions:  sessions,
		Limits:    newMemLimits(),
		Files:     files,
		Pepper:    passthroughPepper{},
	}
	h := httpx.New(svc, gate.NewRegistry(), 1<<20, func() error { readyCalled = true; return nil })

	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ready status %d", w.Code)
	}
	if !readyCalled {
		t.Fatalf("expected readiness probe to be invoked")
	}
}

func TestSecureHeadersAndCorrelationID(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t, time.Now())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("missing no-store cache control")
	}
	if w.Header().Get(httpx.CorrelationIDHeader) == "" {
		t.Fatalf("expected a correlation id to be generated")
	}
}
