package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
)

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.states.Stats(r.Context())
	cfg := h.states.Config()
	h.writeJSON(w, r, http.StatusOK, StatusSummary{
		Status:         "running",
		Build:          buildinfo.Get(),
		UptimeSeconds:  int64(time.Since(h.started).Seconds()),
		States:         stats.States,
		StateBytes:     stats.Bytes,
		StateTTL:       cfg.TTL.String(),
		MaxStateBytes:  cfg.MaxStateBytes,
		MaxRangeLength: cfg.MaxRangeLength,
	})
}

// handleGCTrigger handles POST /admin/v1/gc/trigger.
func (h *Handler) handleGCTrigger(w http.ResponseWriter, r *http.Request) {
	count, err := h.states.GC(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, GCResponse{
		CleanedCount: count,
		TriggeredAt:  time.Now().UTC().Format(time.RFC3339),
	})
}
