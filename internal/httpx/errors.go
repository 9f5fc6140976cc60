package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cinderfile/cinder/internal/domain"
)

// writeError writes a JSON error body with the given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
	if cid, ok := GetCorrelationID(ctx); ok {
		slog.Debug("wrote error response", "cid", cid, "status", code, "msg", msg)
	}
}

// mapServiceError maps domain errors to HTTP responses. Per spec.md §7,
// ErrHmacVerificationFailed and ErrAccessVerificationFail must be
// indistinguishable to the caller — same status, same body, same code
// path — so both fall into the same case below and are logged, never
// echoed, with distinct detail.
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	cid, _ := GetCorrelationID(ctx)
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrInvalidSize):
		slog.Warn("service error", "cid", cid, "code", "invalid_input")
		h.writeError(ctx, w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrLinkNotFound), errors.Is(err, domain.ErrFileNotFound):
		slog.Info("service error", "cid", cid, "code", "not_found")
		h.writeError(ctx, w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrLinkExpired):
		slog.Info("service error", "cid", cid, "code", "link_expired")
		h.writeError(ctx, w, http.StatusGone, "link expired")
	case errors.Is(err, domain.ErrMaxAttemptsExceeded):
		slog.Info("service error", "cid", cid, "code", "max_attempts_exceeded")
		h.writeError(ctx, w, http.StatusGone, "max attempts exceeded")
	case errors.Is(err, domain.ErrStaleRequest):
		slog.Warn("service error", "cid", cid, "code", "stale_request")
		h.writeError(ctx, w, http.StatusBadRequest, "stale request")
	case errors.Is(err, domain.ErrHmacVerificationFailed), errors.Is(err, domain.ErrAccessVerificationFail), errors.Is(err, domain.ErrInvalidSession):
		// Deliberately identical across these three kinds: an oracle that
		// distinguished them would leak whether a session/HMAC or an
		// access key was the failing ingredient.
		slog.Warn("service error", "cid", cid, "code", "access_denied", "err", err)
		h.writeError(ctx, w, http.StatusUnauthorized, "access denied")
	default:
		slog.Error("unhandled service error", "cid", cid, "code", "unhandled")
		h.writeError(ctx, w, http.StatusInternalServerError, "internal error")
	}
}
