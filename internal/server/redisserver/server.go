package redisserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/service"
)

// Config holds the RESP server configuration.
type Config struct {
	// Addr is the listen address used by ListenAndServe.
	Addr string

	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config

	// ReadTimeout bounds reading one command once its first byte arrived.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one reply.
	WriteTimeout time.Duration
	// IdleTimeout closes connections idle between commands.
	IdleTimeout time.Duration

	// MaxBulkLen caps a single argument. Zero means DefaultMaxBulkLen.
	MaxBulkLen int

	// Limiter rate limits commands per client IP. Optional.
	Limiter Limiter
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxBulkLen:   DefaultMaxBulkLen,
	}
}

// Server is the RESP protocol server.
type Server struct {
	cfg     *Config
	handler *CommandHandler
	logger  *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[*Conn]struct{}
	running atomic.Bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Conn is a single client connection.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	// quit is set by QUIT; the connection closes after the reply.
	quit bool

	closed atomic.Bool
}

func newConn(c net.Conn) *Conn {
	return &Conn{
		netConn: c,
		br:      bufio.NewReader(c),
		bw:      bufio.NewWriter(c),
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// New creates a RESP server for states.
func New(cfg *Config, states *service.StateService, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		handler: NewCommandHandler(states, cfg.Limiter, logger),
		logger:  logger,
		conns:   make(map[*Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ListenAndServe listens on cfg.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("redisserver: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.running.Store(true)
	s.mu.Unlock()

	s.logger.Info("resp server listening", "addr", ln.Addr().String(), "tls", s.cfg.TLSConfig != nil)
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		conn := newConn(c)
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.serveConn(conn)
		}()
	}
}

// Shutdown stops accepting connections, then waits for in-flight commands.
// Idle connections are closed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.cancel()

	s.mu.Lock()
	var closeErr error
	if s.ln != nil {
		closeErr = s.ln.Close()
	}
	for c := range s.conns {
		// Unblocks connections waiting for their next command.
		_ = c.netConn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track(c *Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) serveConn(c *Conn) {
	defer c.Close()

	cfg := s.cfg
	readTimeout := orDefault(cfg.ReadTimeout, 30*time.Second)
	writeTimeout := orDefault(cfg.WriteTimeout, 30*time.Second)
	idleTimeout := orDefault(cfg.IdleTimeout, 5*time.Minute)

	for s.running.Load() {
		if err := c.netConn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		if !s.running.Load() {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			s.logReadError(c, err)
			return
		}

		if err := c.netConn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		args, err := ReadCommand(c.br, cfg.MaxBulkLen)
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				s.logReadError(c, err)
				return
			}
			if errors.Is(err, ErrLimitExceeded) {
				s.logger.Warn("protocol limit exceeded", "remote", c.RemoteAddr().String(), "error", err)
				err = errors.New("ERR protocol limit exceeded")
			} else {
				err = errors.New("ERR protocol error: " + err.Error())
			}
			_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = WriteError(c.bw, err.Error())
			_ = c.bw.Flush()
			return
		}

		if len(args) == 0 {
			_ = WriteError(c.bw, "ERR no command")
		} else {
			s.handler.Handle(s.ctx, c, args)
		}

		if err := c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := c.bw.Flush(); err != nil || c.quit {
			return
		}
	}
}

func (s *Server) logReadError(c *Conn, err error) {
	switch {
	case errors.Is(err, io.EOF):
	case isTimeout(err):
		s.logger.Debug("connection timed out", "remote", c.RemoteAddr().String())
	default:
		s.logger.Debug("connection read error", "remote", c.RemoteAddr().String(), "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
