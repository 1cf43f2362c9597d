package command

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/server/httpserver"
	"github.com/yndnr/retrostate-go/internal/storage/memory"
)

// newTestServer serves the real router over an in-memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := httpserver.DefaultRouterConfig()
	cfg.States = service.NewStateService(memory.New(), service.DefaultStateConfig())
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(httpserver.NewRouter(cfg))
	t.Cleanup(srv.Close)
	return srv
}

// runCLI runs the app against server and returns what it wrote.
func runCLI(t *testing.T, server string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := []string{"retrostate-cli", "--config", filepath.Join(t.TempDir(), "cli.yaml"), "--server", server}
	full = append(full, args...)
	err = app.Run(full)
	return out.String(), errOut.String(), err
}

// sampleState has one three-byte region at 0x3c00.
func sampleState() *domain.SystemState {
	return &domain.SystemState{
		Model:     domain.ModelIII,
		Registers: domain.Registers{PC: 0x402d, SP: 0x41e8},
		MemoryRegions: []domain.MemoryRegion{
			{Start: 0x3c00, Length: 3, Data: []byte{'R', 'S', '!'}},
		},
	}
}

func writeJSONState(t *testing.T, s *domain.SystemState) string {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	return path
}

// uploadSample uploads sampleState through the CLI and returns its token.
func uploadSample(t *testing.T, server string) string {
	t.Helper()
	out, _, err := runCLI(t, server, "-o", "json", "state", "upload", writeJSONState(t, sampleState()))
	if err != nil {
		t.Fatalf("state upload error = %v", err)
	}
	var res uploadResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode upload output %q: %v", out, err)
	}
	if res.Token == "" || res.Regions != 1 || res.DataBytes != 3 {
		t.Fatalf("upload result = %+v", res)
	}
	return res.Token
}

func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}
