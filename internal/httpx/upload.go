package httpx

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
	"github.com/cinderfile/cinder/internal/orchestrator"
)

// Cinder's request headers, mirroring the teacher's X-Gone-* header
// convention (haukened-gone's parseSecretHeaders) generalized to the
// upload use case's larger field set.
const (
	hdrSessionID     = "X-Cinder-Session-Id"
	hdrTimestamp     = "X-Cinder-Timestamp"
	hdrHmac          = "X-Cinder-Hmac"
	hdrEnvelope      = "X-Cinder-Envelope"
	hdrSalt          = "X-Cinder-Salt"
	hdrGateKind      = "X-Cinder-Gate-Kind"
	hdrGateBox       = "X-Cinder-Gate-Box"
	hdrGateContext   = "X-Cinder-Gate-Context"
	hdrExpirySeconds = "X-Cinder-Expiry-Seconds"
	hdrMaxAttempts   = "X-Cinder-Max-Attempts"
	hdrAckSessionID  = "X-Cinder-Ack-Session-Id"
)

func decodeB64Header(r *http.Request, name string) ([]byte, error) {
	v := r.Header.Get(name)
	if v == "" {
		return nil, errMissingHeader
	}
	return base64.StdEncoding.DecodeString(v)
}

// handleUpload implements POST /api/links.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := ids.ParseAs(r.Header.Get(hdrSessionID), ids.Session)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid session id")
		return
	}
	ts, err := parseTimestamp(r.Header.Get(hdrTimestamp))
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	hmacBytes, err := decodeB64Header(r, hdrHmac)
	if err != nil || len(hmacBytes) != domain.HmacSize {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid hmac")
		return
	}
	var hmacVal domain.Hmac
	copy(hmacVal[:], hmacBytes)

	envelope, err := decodeB64Header(r, hdrEnvelope)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid envelope")
		return
	}
	salt, err := decodeB64Header(r, hdrSalt)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid salt")
		return
	}
	gateBoxBytes, err := decodeB64Header(r, hdrGateBox)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid gate box")
		return
	}
	gateContext, err := decodeB64Header(r, hdrGateContext)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid gate context")
		return
	}
	gateBox, err := h.Gates.Decode(r.Header.Get(hdrGateKind), gateBoxBytes)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid gate kind")
		return
	}

	expirySeconds, err := strconv.ParseUint(r.Header.Get(hdrExpirySeconds), 10, 32)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid expiry seconds")
		return
	}
	maxAttempts, err := strconv.ParseUint(r.Header.Get(hdrMaxAttempts), 10, 16)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid max attempts")
		return
	}

	cl := r.ContentLength
	if cl <= 0 {
		h.writeError(ctx, w, http.StatusLengthRequired, "content length required")
		return
	}
	if h.MaxBody > 0 && cl > h.MaxBody {
		h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "size exceeded")
		return
	}
	body := http.MaxBytesReader(w, r.Body, cl)
	defer body.Close()

	req := orchestrator.UploadRequest{
		SessionID:   sessionID,
		Envelope:    envelope,
		Salt:        salt,
		GateBox:     gateBox,
		GateContext: gateContext,
		FileSpecs:   domain.FileSpecs{ExpirySeconds: uint32(expirySeconds), MaxAttempts: uint16(maxAttempts)},
		Timestamp:   ts,
		Hmac:        hmacVal,
	}

	result, err := h.Service.Upload(ctx, body, req)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		LinkID    string    `json:"linkId"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{LinkID: result.LinkID.String(), ExpiresAt: result.ExpiryDate})
}

func parseTimestamp(s string) (time.Time, error) {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, errMissingHeader
	}
	return time.Unix(secs, 0).UTC(), nil
}
