package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/telemetry/logger"
)

// Config wires a Handler to its collaborators.
type Config struct {
	States *service.StateService
	Logger *slog.Logger

	// Ready reports whether the server can take traffic. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Handler serves the RetroState API.
type Handler struct {
	states  *service.StateService
	logger  *slog.Logger
	ready   func(ctx context.Context) error
	started time.Time
	mux     *http.ServeMux
}

// New creates a Handler.
func New(cfg Config) *Handler {
	h := &Handler{
		states:  cfg.States,
		logger:  cfg.Logger,
		ready:   cfg.Ready,
		started: time.Now(),
		mux:     http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("POST /v1/states", h.handleUploadState)
	h.mux.HandleFunc("GET /v1/states/{token}", h.handleDownloadState)
	h.mux.HandleFunc("GET /v1/states/{token}/memory", h.handleDownloadRange)

	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)
	h.mux.HandleFunc("POST /admin/v1/gc/trigger", h.handleGCTrigger)
}

// Patterns lists the routes served by the Handler.
func Patterns() []string {
	return []string{
		"GET /health",
		"GET /ready",
		"POST /v1/states",
		"GET /v1/states/{token}",
		"GET /v1/states/{token}/memory",
		"GET /admin/v1/status/summary",
		"POST /admin/v1/gc/trigger",
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err, "request_id", requestID)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details))
}

// handleServiceError converts service errors to JSON error responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		logger.L(r.Context()).Error("internal error", "error", err)
		de = domain.ErrInternalServer
	}
	status := de.Status()
	if status >= http.StatusInternalServerError {
		logger.L(r.Context()).Error("request failed", "code", de.Code, "error", err)
	}
	var details any
	if de.Details != "" {
		details = de.Details
	}
	h.writeError(w, r, status, de.Code, de.Message, details)
}

// getRequestID prefers the id set by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
