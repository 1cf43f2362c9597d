package tests

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/retrostate-go/internal/cli/connection"
	"github.com/yndnr/retrostate-go/internal/cli/selftest"
	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/server/httpserver"
	"github.com/yndnr/retrostate-go/internal/server/redisserver"
	"github.com/yndnr/retrostate-go/internal/storage"
)

const sealKey = "integration-secret-0123"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openEngine(t *testing.T, dir, key string) (*storage.Engine, error) {
	t.Helper()
	cfg := storage.DefaultConfig(dir)
	cfg.Logger = discardLogger()
	cfg.Badger.CompactInterval = 0
	cfg.Badger.SyncWrites = false
	cfg.EncryptionKey = []byte(key)

	engine, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := engine.Recover(context.Background()); err != nil {
		engine.Close()
		return nil, err
	}
	return engine, nil
}

// stack is one running server process: storage, HTTP API and RESP.
type stack struct {
	engine *storage.Engine
	states *service.StateService
	http   *httptest.Server
	resp   *redisserver.Server
	addr   string
}

func startStack(t *testing.T, dir string) *stack {
	t.Helper()
	engine, err := openEngine(t, dir, sealKey)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}

	states := service.NewStateService(engine, service.DefaultStateConfig())
	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.States = states
	routerCfg.Logger = discardLogger()
	routerCfg.EnableAudit = false

	s := &stack{
		engine: engine,
		states: states,
		http:   httptest.NewServer(httpserver.NewRouter(routerCfg)),
		resp:   redisserver.New(redisserver.DefaultConfig(), states, discardLogger()),
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.addr = ln.Addr().String()
	go s.resp.Serve(ln)
	return s
}

func (s *stack) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.http.Close()
	if err := s.resp.Shutdown(ctx); err != nil {
		t.Errorf("resp shutdown: %v", err)
	}
	if err := s.engine.Close(); err != nil {
		t.Errorf("engine close: %v", err)
	}
}

// respBulk sends one command and returns its bulk string reply.
func respBulk(t *testing.T, addr string, args ...string) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial resp: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var req bytes.Buffer
	fmt.Fprintf(&req, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(&req, "$%d\r\n%s\r\n", len(a), a)
	}
	if _, err := conn.Write(req.Bytes()); err != nil {
		t.Fatalf("write resp: %v", err)
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read resp: %v", err)
	}
	line = strings.TrimSuffix(line, "\r\n")
	if !strings.HasPrefix(line, "$") {
		t.Fatalf("%s reply = %q, want bulk string", args[0], line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 0 {
		t.Fatalf("%s reply header = %q", args[0], line)
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read bulk: %v", err)
	}
	return buf[:n]
}

func cassetteState() *domain.SystemState {
	return &domain.SystemState{
		Model:     domain.ModelI,
		Registers: domain.Registers{PC: 0x4300, SP: 0x7ffe, AF: 0x0044},
		MemoryRegions: []domain.MemoryRegion{
			{Start: 0x3c00, Length: 5, Data: []byte("READY")},
			{Start: 0x4300, Length: 3, Data: []byte{0xc3, 0x00, 0x00}},
			{Start: 0x3c02, Length: 2, Data: []byte("OK")},
		},
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	ctx := context.Background()

	first := startStack(t, dir)
	client := connection.NewHTTPClient(first.http.URL)

	tok, err := client.UploadState(ctx, cassetteState())
	if err != nil {
		first.stop(t)
		t.Fatalf("UploadState() error = %v", err)
	}

	got := respBulk(t, first.addr, "STATE.RANGE", tok.String(), strconv.Itoa(0x3bff), "7")
	want := []byte{0, 'R', 'E', 'O', 'K', 'Y', 0}
	if !bytes.Equal(got, want) {
		t.Errorf("STATE.RANGE before restart = %q, want %q", got, want)
	}
	first.stop(t)

	second := startStack(t, dir)
	defer second.stop(t)

	state, err := connection.NewHTTPClient(second.http.URL).DownloadState(ctx, tok, false)
	if err != nil {
		t.Fatalf("DownloadState() after restart error = %v", err)
	}
	if state.Registers.PC != 0x4300 {
		t.Errorf("PC = %#x, want 0x4300", state.Registers.PC)
	}
	if len(state.MemoryRegions) != 3 {
		t.Fatalf("regions = %d, want 3", len(state.MemoryRegions))
	}
	if got := string(state.MemoryRegions[0].Data); got != "READY" {
		t.Errorf("region 0 = %q, want READY", got)
	}

	// The later region wins the overlap.
	got = respBulk(t, second.addr, "STATE.RANGE", tok.String(), strconv.Itoa(0x3c00), "5")
	if string(got) != "REOKY" {
		t.Errorf("STATE.RANGE after restart = %q, want REOKY", got)
	}
}

func TestWrongKeyFailsRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	s := startStack(t, dir)
	if _, err := s.states.UploadState(context.Background(), cassetteState()); err != nil {
		s.stop(t)
		t.Fatalf("UploadState() error = %v", err)
	}
	s.stop(t)

	engine, err := openEngine(t, dir, "another-secret-4567")
	if err == nil {
		engine.Close()
		t.Fatal("Recover() with the wrong key succeeded")
	}
}

func TestSelftestOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := startStack(t, t.TempDir())
	defer s.stop(t)

	report := selftest.Run(context.Background(), connection.NewHTTPClient(s.http.URL), selftest.Checks(), 7)
	for _, r := range report.Results {
		if !r.Passed {
			t.Errorf("%s failed: %s", r.Name, r.Error)
		}
	}
	if !report.OK() {
		t.Errorf("report: %d passed, %d failed", report.Passed, report.Failed)
	}
}
