package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Get()
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: info.Version,
		Commit:  info.Commit,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.handleServiceError(w, r, domain.ErrServiceUnavailable.WithDetails(err.Error()))
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status: "ready",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
