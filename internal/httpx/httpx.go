// Package httpx is Cinder's HTTP delivery layer: chi-routed handlers mapping
// four of the orchestrator use cases (upload, init, verify, acknowledge) to
// endpoints (CleanupExpired is driven by the janitor), request validation, size
// limits, security headers, and error translation. Grounded on the
// teacher's internal/httpx package (haukened-gone) — router construction,
// secureHeaders middleware, correlation-ID middleware, writeError/
// mapServiceError pattern — with the router swapped from net/http.ServeMux
// to chi (per the domain-stack convergence in kopexa-grc-common and
// marmos91-dittofs) and handlers rewritten for upload/init/verify/
// acknowledge instead of create/consume.
package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cinderfile/cinder/internal/gate"
	"github.com/cinderfile/cinder/internal/orchestrator"
)

// Handler wires HTTP endpoints to the flow orchestrator. Zero-value is not
// valid; construct via New.
type Handler struct {
	Service  *orchestrator.Service
	Gates    *gate.Registry
	MaxBody  int64
	Readyz   func() error
}

// New returns a configured Handler.
func New(svc *orchestrator.Service, gates *gate.Registry, maxBody int64, readyz func() error) *Handler {
	return &Handler{Service: svc, Gates: gates, MaxBody: maxBody, Readyz: readyz}
}

// Router constructs the chi mux with all routes mounted and the security
// headers and correlation-ID middleware applied.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(CorrelationIDMiddleware)
	r.Use(h.secureHeaders)

	r.Post("/api/links", h.handleUpload)
	r.Post("/api/links/{linkID}/init", h.handleInitDownload)
	r.Post("/api/sessions/{sessionID}/verify", h.handleVerifyDownload)
	r.Post("/api/sessions/{sessionID}/ack", h.handleAcknowledge)
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Readyz != nil {
		if err := h.Readyz(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// secureHeaders mirrors the teacher's secureHeaders middleware: deny-by-
// default CSP plus standard hardening headers, no-store by default since
// every response here carries sensitive or ephemeral data.
func (h *Handler) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		next.ServeHTTP(w, r)
	})
}
