package httpx

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
	"github.com/cinderfile/cinder/internal/orchestrator"
)

func decodeVerifyBody(raw []byte) ([]byte, error) {
	var body verifyRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(body.AccessKey)
}

// verifyRequestBody is the JSON body for POST
// /api/sessions/{sessionID}/verify: the client's access-key proof of
// knowledge, base64-encoded (spec.md §6).
type verifyRequestBody struct {
	AccessKey string `json:"accessKey"`
}

// handleVerifyDownload implements POST /api/sessions/{sessionID}/verify. On
// success the response is the ciphertext blob as the body, with the
// sealed-then-unsealed envelope/salt and (in split-burn mode) the
// follow-up acknowledgment session ID carried as headers, matching the
// teacher's header-plus-octet-stream convention for secret consumption.
func (h *Handler) handleVerifyDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := ids.ParseAs(chi.URLParam(r, "sessionID"), ids.Session)
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
	var hmacVal domain.Hmac
	if err == nil && len(hmacBytes) == domain.HmacSize {
		copy(hmacVal[:], hmacBytes)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16*1024))
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid body")
		return
	}
	accessKey, err := decodeVerifyBody(body)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid access key")
		return
	}

	result, err := h.Service.VerifyDownloadAccess(ctx, orchestrator.VerifyDownloadRequest{
		SessionID: sessionID,
		AccessKey: accessKey,
		Timestamp: ts,
		Hmac:      hmacVal,
	})
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}

	w.Header().Set(hdrEnvelope, base64.StdEncoding.EncodeToString(result.Envelope))
	w.Header().Set(hdrSalt, base64.StdEncoding.EncodeToString(result.Salt))
	if result.AckSessionID.Body() != "" {
		w.Header().Set(hdrAckSessionID, result.AckSessionID.String())
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Blob)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Blob)
}
