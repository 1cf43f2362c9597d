package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/server/httpserver/handler"
	"github.com/yndnr/retrostate-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	States *service.StateService

	// Metrics receives request metrics and serves /metrics. Optional.
	Metrics *metric.Registry

	Logger *slog.Logger

	// Ready gates GET /ready. Optional.
	Ready func(ctx context.Context) error

	// MaxBodyBytes caps request bodies. Zero disables the cap.
	MaxBodyBytes int64

	// RateLimit is the per-IP request rate. Zero disables rate limiting.
	RateLimit float64
	RateBurst int

	// EnableAudit logs every request.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		MaxBodyBytes: 128 << 20,
		RateLimit:    200,
		RateBurst:    400,
		EnableAudit:  true,
	}
}

// NewRouter assembles the API handler behind its middleware chain:
// Recover, RequestID, RateLimit, Metrics, Audit, MaxBody.
// /metrics is served outside the chain so scrapes are not rate limited.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(handler.Config{
		States: cfg.States,
		Logger: log,
		Ready:  cfg.Ready,
	})

	chain := []Middleware{Recover(log), RequestID()}
	if cfg.RateLimit > 0 {
		chain = append(chain, RateLimit(NewRateLimiter(cfg.RateLimit, cfg.RateBurst)))
	}
	if cfg.Metrics != nil {
		chain = append(chain, Metrics(cfg.Metrics))
	}
	if cfg.EnableAudit {
		chain = append(chain, Audit(log))
	}
	chain = append(chain, MaxBody(cfg.MaxBodyBytes))

	mux := http.NewServeMux()
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}
	mux.Handle("/", Chain(h, chain...))
	return mux
}
