package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/retrostate-go/internal/infra/tlsroots"
)

// Config configures a Server.
type Config struct {
	Addr    string
	Handler http.Handler
	Logger  *slog.Logger

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	// The key pair is reloaded when either file changes.
	TLSCertFile string
	TLSKeyFile  string
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	certs      *tlsroots.Watcher
	logger     *slog.Logger

	watchCtx    context.Context
	cancelWatch context.CancelFunc
}

// New creates a new HTTP server. It fails only when TLS material cannot be loaded.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		},
		logger: log,
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		w, err := tlsroots.NewWatcher(cfg.TLSCertFile, cfg.TLSKeyFile, tlsroots.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("httpserver: %w", err)
		}
		s.certs = w
		s.httpServer.TLSConfig = w.ServerConfig()
		s.watchCtx, s.cancelWatch = context.WithCancel(context.Background())
	}
	return s, nil
}

// TLS reports whether the server serves HTTPS.
func (s *Server) TLS() bool {
	return s.certs != nil
}

// TLSConfig returns a copy of the server TLS configuration, or nil when the
// server is plain HTTP. Certificates follow the same reloads as HTTPS.
func (s *Server) TLSConfig() *tls.Config {
	if s.certs == nil {
		return nil
	}
	return s.httpServer.TLSConfig.Clone()
}

// ListenAndServe listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "tls", s.TLS())

	var err error
	if s.certs != nil {
		go func() {
			if err := s.certs.Run(s.watchCtx); err != nil {
				s.logger.Error("certificate watcher stopped", "error", err)
			}
		}()
		err = s.httpServer.ServeTLS(ln, "", "")
	} else {
		err = s.httpServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelWatch != nil {
		s.cancelWatch()
	}
	return s.httpServer.Shutdown(ctx)
}
