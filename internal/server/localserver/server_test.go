package localserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/storage/memory"
	"github.com/yndnr/retrostate-go/internal/telemetry/logger"
)

func startServer(t *testing.T, shutdown func()) (*Server, string, *service.StateService) {
	t.Helper()

	// Unix socket paths are length limited, so avoid t.TempDir's long names.
	dir, err := os.MkdirTemp("", "rs")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "admin.sock")

	svc := service.NewStateService(memory.New(), service.DefaultStateConfig())
	srv := New(path, NewHandler(svc, shutdown), nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, path, svc
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, path string) *client {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) do(t *testing.T, line string) string {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	resp, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply to %q: %v", line, err)
	}
	return strings.TrimSuffix(resp, "\n")
}

func TestServer_SocketPermissions(t *testing.T) {
	_, path, _ := startServer(t, nil)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket perm = %o, want 600", perm)
	}
}

func TestServer_Status(t *testing.T) {
	_, path, svc := startServer(t, nil)

	state := &domain.SystemState{
		Model: domain.ModelIII,
		MemoryRegions: []domain.MemoryRegion{
			{Start: 0x3c00, Length: 4, Data: []byte("abcd")},
		},
	}
	if _, err := svc.UploadState(context.Background(), state); err != nil {
		t.Fatalf("UploadState() error = %v", err)
	}

	c := dial(t, path)
	resp := c.do(t, "status")
	if !strings.HasPrefix(resp, "OK ") {
		t.Fatalf("status = %q, want OK prefix", resp)
	}

	var st Status
	if err := json.Unmarshal([]byte(strings.TrimPrefix(resp, "OK ")), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.States != 1 {
		t.Errorf("States = %d, want 1", st.States)
	}
	if st.StateBytes != 4 {
		t.Errorf("StateBytes = %d, want 4", st.StateBytes)
	}
	if st.MaxRangeLength != service.DefaultStateConfig().MaxRangeLength {
		t.Errorf("MaxRangeLength = %d, want %d", st.MaxRangeLength, service.DefaultStateConfig().MaxRangeLength)
	}
}

func TestServer_Commands(t *testing.T) {
	_, path, _ := startServer(t, nil)
	t.Cleanup(func() { logger.SetLevel("info") })

	c := dial(t, path)
	tests := []struct {
		line string
		want string
	}{
		{"gc", "OK removed=0"},
		{"GC", "OK removed=0"},
		{"loglevel debug", "OK level=debug"},
		{"loglevel", "OK level=debug"},
		{"loglevel loud", "ERR invalid level loud"},
		{"loglevel a b", "ERR usage: loglevel [debug|info|warn|error]"},
		{"shutdown", "ERR shutdown not available"},
		{"frobnicate", "ERR unknown command frobnicate"},
	}
	for _, tt := range tests {
		if got := c.do(t, tt.line); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestServer_Quit(t *testing.T) {
	_, path, _ := startServer(t, nil)

	c := dial(t, path)
	if got := c.do(t, "quit"); got != "OK bye" {
		t.Fatalf("quit -> %q, want OK bye", got)
	}
	if _, err := c.r.ReadString('\n'); err == nil {
		t.Error("connection still open after quit")
	}
}

func TestServer_Shutdown(t *testing.T) {
	var called atomic.Bool
	_, path, _ := startServer(t, func() { called.Store(true) })

	c := dial(t, path)
	if got := c.do(t, "shutdown"); got != "OK shutting down" {
		t.Fatalf("shutdown -> %q", got)
	}
	if !called.Load() {
		t.Error("shutdown callback not called")
	}
}

func TestServer_StaleSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "rs")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "admin.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	// Leave the file behind the way a crashed process would.
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	svc := service.NewStateService(memory.New(), service.DefaultStateConfig())
	srv := New(path, NewHandler(svc, nil), nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() over stale socket error = %v", err)
	}
	srv.Shutdown(context.Background())

	regular := filepath.Join(dir, "plain")
	if err := os.WriteFile(regular, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := New(regular, NewHandler(svc, nil), nil).Listen(); err == nil {
		t.Error("Listen() over regular file succeeded, want error")
	}
}
