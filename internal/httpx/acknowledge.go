package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cinderfile/cinder/internal/ids"
)

// handleAcknowledge implements POST /api/sessions/{sessionID}/ack, the
// split-burn mode's final step (spec.md §4.8d).
func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := ids.ParseAs(chi.URLParam(r, "sessionID"), ids.Session)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.Service.AcknowledgeDownload(ctx, sessionID); err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
