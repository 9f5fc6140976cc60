package httpx

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cinderfile/cinder/internal/ids"
)

// handleInitDownload implements POST /api/links/{linkID}/init.
func (h *Handler) handleInitDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	linkID, err := ids.ParseAs(chi.URLParam(r, "linkID"), ids.Link)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid link id")
		return
	}

	result, err := h.Service.InitDownloadHandshake(ctx, linkID)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}

	resp := struct {
		SessionID   string `json:"sessionId"`
		Secret      string `json:"secret,omitempty"`
		GateContext string `json:"gateContext"`
	}{
		SessionID:   result.SessionID.String(),
		GateContext: base64.StdEncoding.EncodeToString(result.GateContext),
	}
	if result.Secret != nil {
		// result.Secret is the same key the cached Session still owns for the
		// upcoming verify's HMAC check: Bytes() only borrows a view, and the
		// secret must stay open until that check consumes it.
		if raw, err := result.Secret.Bytes(); err == nil {
			resp.Secret = base64.StdEncoding.EncodeToString(raw)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
