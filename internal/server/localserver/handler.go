package localserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
	"github.com/yndnr/retrostate-go/internal/telemetry/logger"
)

// errQuit ends the connection after the reply is written.
var errQuit = fmt.Errorf("quit")

// Handler handles local management commands.
type Handler struct {
	states   *service.StateService
	shutdown func()
	started  time.Time
}

// NewHandler creates a Handler. shutdown is called by the shutdown
// command and may be nil, which disables that command.
func NewHandler(states *service.StateService, shutdown func()) *Handler {
	return &Handler{
		states:   states,
		shutdown: shutdown,
		started:  time.Now(),
	}
}

// Status is the reply payload of the status command.
type Status struct {
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	States         int64  `json:"states"`
	StateBytes     int64  `json:"state_bytes"`
	StateTTL       string `json:"state_ttl"`
	MaxStateBytes  int64  `json:"max_state_bytes"`
	MaxRangeLength int64  `json:"max_range_length"`
	LogLevel       string `json:"log_level"`
}

// Execute executes a local management command and writes its reply line.
func (h *Handler) Execute(ctx context.Context, w io.Writer, cmd string, args []string) error {
	switch strings.ToLower(cmd) {
	case "status":
		return h.handleStatus(ctx, w)
	case "gc":
		return h.handleGC(ctx, w)
	case "loglevel":
		return h.handleLogLevel(w, args)
	case "shutdown":
		return h.handleShutdown(w)
	case "quit":
		if err := reply(w, "OK bye"); err != nil {
			return err
		}
		return errQuit
	default:
		return reply(w, "ERR unknown command "+cmd)
	}
}

func (h *Handler) handleStatus(ctx context.Context, w io.Writer) error {
	stats := h.states.Stats(ctx)
	cfg := h.states.Config()
	raw, err := json.Marshal(Status{
		Version:        buildinfo.Get().Version,
		UptimeSeconds:  int64(time.Since(h.started).Seconds()),
		States:         stats.States,
		StateBytes:     stats.Bytes,
		StateTTL:       cfg.TTL.String(),
		MaxStateBytes:  cfg.MaxStateBytes,
		MaxRangeLength: cfg.MaxRangeLength,
		LogLevel:       logger.GetLevel(),
	})
	if err != nil {
		return err
	}
	return reply(w, "OK "+string(raw))
}

func (h *Handler) handleGC(ctx context.Context, w io.Writer) error {
	n, err := h.states.GC(ctx)
	if err != nil {
		return reply(w, "ERR "+err.Error())
	}
	return reply(w, fmt.Sprintf("OK removed=%d", n))
}

func (h *Handler) handleLogLevel(w io.Writer, args []string) error {
	switch len(args) {
	case 0:
	case 1:
		if !logger.ValidLevel(args[0]) {
			return reply(w, "ERR invalid level "+args[0])
		}
		logger.SetLevel(args[0])
	default:
		return reply(w, "ERR usage: loglevel [debug|info|warn|error]")
	}
	return reply(w, "OK level="+logger.GetLevel())
}

func (h *Handler) handleShutdown(w io.Writer) error {
	if h.shutdown == nil {
		return reply(w, "ERR shutdown not available")
	}
	if err := reply(w, "OK shutting down"); err != nil {
		return err
	}
	h.shutdown()
	return errQuit
}

func reply(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}
