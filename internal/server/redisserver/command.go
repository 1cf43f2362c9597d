package redisserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	statev1 "github.com/yndnr/retrostate-go/api/proto/v1"
	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
)

// Limiter decides whether a client may run another command.
type Limiter interface {
	Allow(ip string) bool
}

// formatRedisError converts an error to a RESP error line.
// DomainErrors lead with their code; anything else is reported as internal.
func formatRedisError(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		de = domain.ErrInternalServer
	}
	msg := de.Code + " " + de.Message
	if de.Details != "" {
		msg += ": " + de.Details
	}
	return msg
}

// CommandHandler executes RESP commands against the state service.
type CommandHandler struct {
	states  *service.StateService
	limiter Limiter
	logger  *slog.Logger
	started time.Time
	timeout time.Duration
}

// NewCommandHandler creates a handler. limiter may be nil.
func NewCommandHandler(states *service.StateService, limiter Limiter, logger *slog.Logger) *CommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHandler{
		states:  states,
		limiter: limiter,
		logger:  logger,
		started: time.Now(),
		timeout: 30 * time.Second,
	}
}

// Handle runs one command and writes its reply to conn.
func (h *CommandHandler) Handle(ctx context.Context, conn *Conn, args [][]byte) {
	if len(args) == 0 {
		_ = WriteError(conn.bw, "ERR no command")
		return
	}
	cmdName := normalizeCommandName(args[0])

	switch cmdName {
	case "PING":
		h.handlePing(conn, args)
		return
	case "QUIT":
		h.handleQuit(conn, args)
		return
	}

	if h.limiter != nil && !h.limiter.Allow(remoteIP(conn.RemoteAddr())) {
		_ = WriteError(conn.bw, formatRedisError(domain.ErrRateLimited))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch cmdName {
	case "ECHO":
		h.handleEcho(conn, args)
	case "INFO":
		h.handleInfo(ctx, conn, args)
	case "DBSIZE":
		_ = WriteInteger(conn.bw, h.states.Stats(ctx).States)
	case "STATE.PUT":
		h.handlePut(ctx, conn, args)
	case "STATE.GET":
		h.handleGet(ctx, conn, args)
	case "STATE.RANGE":
		h.handleRange(ctx, conn, args)
	case "STATE.GC":
		h.handleGC(ctx, conn, args)
	default:
		_ = WriteError(conn.bw, "ERR unknown command '"+cmdName+"'")
	}
}

func wrongArgs(conn *Conn, cmd string) {
	_ = WriteError(conn.bw, "ERR wrong number of arguments for '"+strings.ToLower(cmd)+"' command")
}

func (h *CommandHandler) handlePing(conn *Conn, args [][]byte) {
	switch len(args) {
	case 1:
		_ = WriteSimpleString(conn.bw, "PONG")
	case 2:
		_ = WriteBulk(conn.bw, args[1])
	default:
		wrongArgs(conn, "PING")
	}
}

func (h *CommandHandler) handleQuit(conn *Conn, _ [][]byte) {
	_ = WriteSimpleString(conn.bw, "OK")
	conn.quit = true
}

func (h *CommandHandler) handleEcho(conn *Conn, args [][]byte) {
	if len(args) != 2 {
		wrongArgs(conn, "ECHO")
		return
	}
	_ = WriteBulk(conn.bw, args[1])
}

func (h *CommandHandler) handleInfo(ctx context.Context, conn *Conn, args [][]byte) {
	if len(args) > 2 {
		wrongArgs(conn, "INFO")
		return
	}
	info := buildinfo.Get()
	stats := h.states.Stats(ctx)
	cfg := h.states.Config()

	var b strings.Builder
	b.WriteString("# Server\r\n")
	fmt.Fprintf(&b, "retrostate_version:%s\r\n", info.Version)
	fmt.Fprintf(&b, "retrostate_commit:%s\r\n", info.Commit)
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(h.started).Seconds()))
	b.WriteString("\r\n# States\r\n")
	fmt.Fprintf(&b, "states:%d\r\n", stats.States)
	fmt.Fprintf(&b, "state_bytes:%d\r\n", stats.Bytes)
	fmt.Fprintf(&b, "state_ttl_seconds:%d\r\n", int64(cfg.TTL.Seconds()))
	fmt.Fprintf(&b, "max_state_bytes:%d\r\n", cfg.MaxStateBytes)
	fmt.Fprintf(&b, "max_range_length:%d\r\n", cfg.MaxRangeLength)
	_ = WriteBulk(conn.bw, []byte(b.String()))
}

// handlePut handles STATE.PUT <protobuf SystemState>.
func (h *CommandHandler) handlePut(ctx context.Context, conn *Conn, args [][]byte) {
	if len(args) != 2 {
		wrongArgs(conn, "STATE.PUT")
		return
	}
	state, err := statev1.UnmarshalState(args[1])
	if err != nil {
		_ = WriteError(conn.bw, formatRedisError(domain.ErrBadRequest.WithDetails(err.Error())))
		return
	}
	tok, err := h.states.UploadState(ctx, state)
	if err != nil {
		h.writeServiceError(conn, "STATE.PUT", err)
		return
	}
	h.logger.Debug("state uploaded", "token", domain.MaskToken(tok), "regions", len(state.MemoryRegions),
		"remote", conn.RemoteAddr().String())
	_ = WriteInteger(conn.bw, int64(tok))
}

// handleGet handles STATE.GET <token> [NODATA].
func (h *CommandHandler) handleGet(ctx context.Context, conn *Conn, args [][]byte) {
	if len(args) != 2 && len(args) != 3 {
		wrongArgs(conn, "STATE.GET")
		return
	}
	exclude := false
	if len(args) == 3 {
		if normalizeCommandName(args[2]) != "NODATA" {
			_ = WriteError(conn.bw, "ERR syntax error")
			return
		}
		exclude = true
	}
	tok, ok := parseToken(conn, args[1])
	if !ok {
		return
	}
	state, err := h.states.DownloadState(ctx, tok, exclude)
	if err != nil {
		h.writeServiceError(conn, "STATE.GET", err)
		return
	}
	_ = WriteBulk(conn.bw, statev1.MarshalState(state))
}

// handleRange handles STATE.RANGE <token> <start> <length>.
// Arguments are checked before the token is looked up.
func (h *CommandHandler) handleRange(ctx context.Context, conn *Conn, args [][]byte) {
	if len(args) != 4 {
		wrongArgs(conn, "STATE.RANGE")
		return
	}
	start, ok := parseInt(conn, "start", args[2])
	if !ok {
		return
	}
	length, ok := parseInt(conn, "length", args[3])
	if !ok {
		return
	}
	tok, ok := parseToken(conn, args[1])
	if !ok {
		return
	}
	data, err := h.states.DownloadRange(ctx, tok, start, length)
	if err != nil {
		h.writeServiceError(conn, "STATE.RANGE", err)
		return
	}
	if data == nil {
		data = []byte{}
	}
	_ = WriteBulk(conn.bw, data)
}

func (h *CommandHandler) handleGC(ctx context.Context, conn *Conn, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(conn, "STATE.GC")
		return
	}
	n, err := h.states.GC(ctx)
	if err != nil {
		h.writeServiceError(conn, "STATE.GC", err)
		return
	}
	_ = WriteInteger(conn.bw, int64(n))
}

func (h *CommandHandler) writeServiceError(conn *Conn, cmd string, err error) {
	if !domain.IsDomainError(err, "") || domain.IsDomainError(err, domain.ErrStorageError.Code) {
		h.logger.Error("command failed", "command", cmd, "error", err)
	}
	_ = WriteError(conn.bw, formatRedisError(err))
}

// parseToken accepts any integer so that well-formed but unissued tokens
// are reported as unknown rather than malformed.
func parseToken(conn *Conn, b []byte) (domain.Token, bool) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		_ = WriteError(conn.bw, formatRedisError(domain.ErrMalformedToken.WithDetailsf("%q", b)))
		return 0, false
	}
	return domain.Token(n), true
}

func parseInt(conn *Conn, name string, b []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		_ = WriteError(conn.bw, formatRedisError(domain.ErrInvalidArgument.WithDetailsf("%s %q is not an integer", name, b)))
		return 0, false
	}
	return n, true
}

func remoteIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
