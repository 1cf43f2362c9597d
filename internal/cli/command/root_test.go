package command

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "retrostate-cli" {
		t.Errorf("Name = %q, want %q", app.Name, "retrostate-cli")
	}
	if app.Usage == "" || app.Version == "" {
		t.Error("Usage and Version should not be empty")
	}

	commandNames := make(map[string]bool)
	for _, cmd := range app.Commands {
		commandNames[cmd.Name] = true
	}
	for _, name := range []string{"state", "system"} {
		if !commandNames[name] {
			t.Errorf("missing required command: %s", name)
		}
	}
}

func TestGlobalFlags(t *testing.T) {
	envVars := make(map[string][]string)
	for _, f := range globalFlags() {
		if sf, ok := f.(*cli.StringFlag); ok {
			envVars[sf.Name] = sf.EnvVars
		}
	}
	tests := []struct {
		flag string
		env  string
	}{
		{"server", "RETROSTATE_SERVER"},
		{"output", "RETROSTATE_OUTPUT"},
		{"ca-file", "RETROSTATE_CA_FILE"},
	}
	for _, tt := range tests {
		if got := envVars[tt.flag]; len(got) == 0 || got[0] != tt.env {
			t.Errorf("flag %s env vars = %v, want %s", tt.flag, got, tt.env)
		}
	}
}

func TestParseGlobalFlags(t *testing.T) {
	app := &cli.App{
		Flags: globalFlags(),
		Action: func(c *cli.Context) error {
			flags := ParseGlobalFlags(c)
			if flags.Server != "retro:5080" {
				t.Errorf("Server = %q, want %q", flags.Server, "retro:5080")
			}
			if flags.Output != "yaml" {
				t.Errorf("Output = %q, want %q", flags.Output, "yaml")
			}
			if flags.Timeout != 5*time.Second {
				t.Errorf("Timeout = %v, want 5s", flags.Timeout)
			}
			if !flags.Verbose {
				t.Error("Verbose should be true")
			}
			return nil
		},
	}
	args := []string{"test", "--server", "retro:5080", "-o", "yaml", "--timeout", "5s", "-V"}
	if err := app.Run(args); err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
}

func TestParseGlobalFlags_Defaults(t *testing.T) {
	app := &cli.App{
		Flags: globalFlags(),
		Action: func(c *cli.Context) error {
			flags := ParseGlobalFlags(c)
			if flags.Server != "localhost:5080" {
				t.Errorf("Server default = %q, want %q", flags.Server, "localhost:5080")
			}
			if flags.Output != "table" {
				t.Errorf("Output default = %q, want %q", flags.Output, "table")
			}
			if flags.Timeout != 60*time.Second || flags.Verbose || flags.CAFile != "" {
				t.Errorf("defaults = %+v", flags)
			}
			return nil
		},
	}
	if err := app.Run([]string{"test"}); err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
}

func TestApp_RejectsUnknownOutput(t *testing.T) {
	_, _, err := runCLI(t, "localhost:1", "-o", "xml", "system", "health")
	if err == nil || exitCode(err) != 2 {
		t.Errorf("error = %v (exit %d), want exit 2", err, exitCode(err))
	}
}

func TestEnsureConnected_BadCAFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pem")
	_, _, err := runCLI(t, "https://localhost:1", "--ca-file", missing, "system", "health")
	if err == nil || !strings.Contains(err.Error(), "load CA file") {
		t.Errorf("error = %v, want load CA file failure", err)
	}
}

func TestEnsureConnected_Verbose(t *testing.T) {
	srv := newTestServer(t)
	_, stderr, err := runCLI(t, srv.URL, "-V", "system", "health")
	if err != nil {
		t.Fatalf("system health error = %v", err)
	}
	if !strings.Contains(stderr, "server: "+srv.URL) {
		t.Errorf("stderr = %q, want server line", stderr)
	}
}

// runProfile runs a fresh app with only the profile and args given.
func runProfile(profile string, args ...string) (string, error) {
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"retrostate-cli", "--config", profile}, args...))
	return out.String(), err
}

func TestApp_Profile(t *testing.T) {
	srv := newTestServer(t)
	profile := filepath.Join(t.TempDir(), "cli.yaml")
	body := "server: " + srv.URL + "\noutput: json\n"
	if err := os.WriteFile(profile, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runProfile(profile, "system", "health")
	if err != nil {
		t.Fatalf("system health error = %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("output = %q, want JSON from the profile's output setting", out)
	}

	out, err = runProfile(profile, "-o", "yaml", "system", "health")
	if err != nil {
		t.Fatalf("system health -o yaml error = %v", err)
	}
	if !strings.Contains(out, "status: healthy") {
		t.Errorf("output = %q, want the flag to override the profile", out)
	}
}

func TestApp_BadProfile(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "cli.yaml")
	os.WriteFile(profile, []byte("bogus: 1\n"), 0o600)

	_, err := runProfile(profile, "system", "health")
	if err == nil || !strings.Contains(err.Error(), "load CLI profile") {
		t.Errorf("error = %v, want profile failure", err)
	}
}
