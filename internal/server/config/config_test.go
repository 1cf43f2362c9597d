package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Server.HTTP.Addr, DefaultHTTPAddr)
	}
	if cfg.Server.HTTP.MaxBodyBytes <= cfg.Storage.MaxStateBytes {
		t.Errorf("MaxBodyBytes = %d, must exceed MaxStateBytes %d", cfg.Server.HTTP.MaxBodyBytes, cfg.Storage.MaxStateBytes)
	}
	if cfg.Server.RESP.Addr != "" {
		t.Errorf("RESP.Addr = %q, want disabled", cfg.Server.RESP.Addr)
	}
	if cfg.Server.Local.SocketPath != "" {
		t.Errorf("Local.SocketPath = %q, want disabled", cfg.Server.Local.SocketPath)
	}
	if cfg.Storage.Persistent {
		t.Error("Persistent should be disabled by default")
	}
	if cfg.Storage.StateTTL != 0 {
		t.Errorf("StateTTL = %v, want 0", cfg.Storage.StateTTL)
	}
	if cfg.Storage.MaxRangeLength != DefaultMaxRangeLength {
		t.Errorf("MaxRangeLength = %d, want %d", cfg.Storage.MaxRangeLength, DefaultMaxRangeLength)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) = %v", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"super-secret-key-1234567890", "<redacted 27 bytes>"},
		{"k", "<redacted 1 bytes>"},
		{"", ""},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Security.EncryptionKey = tt.key

		got := Sanitize(cfg)
		if got.Security.EncryptionKey != tt.want {
			t.Errorf("Sanitize(%q) key = %q, want %q", tt.key, got.Security.EncryptionKey, tt.want)
		}
		if cfg.Security.EncryptionKey != tt.key {
			t.Errorf("Sanitize modified the original key to %q", cfg.Security.EncryptionKey)
		}
		if got.Server.HTTP.Addr != cfg.Server.HTTP.Addr {
			t.Errorf("Sanitize changed server.http.addr to %q", got.Server.HTTP.Addr)
		}
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	if err := os.WriteFile(certFile, []byte("cert"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{
			name:   "persistent with data dir",
			mutate: func(c *ServerConfig) { c.Storage.Persistent = true; c.Storage.DataDir = filepath.Join(dir, "data") },
		},
		{
			name: "sealed persistent",
			mutate: func(c *ServerConfig) {
				c.Storage.Persistent = true
				c.Storage.DataDir = filepath.Join(dir, "sealed")
				c.Security.EncryptionKey = "0123456789abcdef"
			},
		},
		{
			name:    "bad addr",
			mutate:  func(c *ServerConfig) { c.Server.HTTP.Addr = "no-port" },
			wantErr: "server.http.addr",
		},
		{
			name:    "cert without key",
			mutate:  func(c *ServerConfig) { c.Server.HTTP.TLSCertFile = certFile },
			wantErr: "must be set together",
		},
		{
			name: "missing key file",
			mutate: func(c *ServerConfig) {
				c.Server.HTTP.TLSCertFile = certFile
				c.Server.HTTP.TLSKeyFile = filepath.Join(dir, "missing.pem")
			},
			wantErr: "tls file",
		},
		{
			name:    "zero body limit",
			mutate:  func(c *ServerConfig) { c.Server.HTTP.MaxBodyBytes = 0 },
			wantErr: "max_body_bytes",
		},
		{
			name:    "rate without burst",
			mutate:  func(c *ServerConfig) { c.Server.HTTP.RateBurst = 0 },
			wantErr: "rate_burst",
		},
		{
			name:   "resp enabled",
			mutate: func(c *ServerConfig) { c.Server.RESP.Addr = "127.0.0.1:6379" },
		},
		{
			name:    "bad resp addr",
			mutate:  func(c *ServerConfig) { c.Server.RESP.Addr = "6379" },
			wantErr: "server.resp.addr",
		},
		{
			name: "resp tls without cert",
			mutate: func(c *ServerConfig) {
				c.Server.RESP.Addr = "127.0.0.1:6379"
				c.Server.RESP.TLS = true
			},
			wantErr: "server.resp.tls",
		},
		{
			name: "zero resp bulk limit",
			mutate: func(c *ServerConfig) {
				c.Server.RESP.Addr = "127.0.0.1:6379"
				c.Server.RESP.MaxBulkBytes = 0
			},
			wantErr: "max_bulk_bytes",
		},
		{
			name:    "relative socket path",
			mutate:  func(c *ServerConfig) { c.Server.Local.SocketPath = "admin.sock" },
			wantErr: "server.local.socket_path",
		},
		{
			name:    "persistent without data dir",
			mutate:  func(c *ServerConfig) { c.Storage.Persistent = true; c.Storage.DataDir = "" },
			wantErr: "storage.data_dir",
		},
		{
			name:    "ttl without reap interval",
			mutate:  func(c *ServerConfig) { c.Storage.StateTTL = time.Hour; c.Storage.ReapInterval = 0 },
			wantErr: "reap_interval",
		},
		{
			name:    "negative range limit",
			mutate:  func(c *ServerConfig) { c.Storage.MaxRangeLength = -1 },
			wantErr: "max_range_length",
		},
		{
			name:    "short key",
			mutate:  func(c *ServerConfig) { c.Security.EncryptionKey = "short" },
			wantErr: "encryption_key",
		},
		{
			name:    "key without persistence",
			mutate:  func(c *ServerConfig) { c.Security.EncryptionKey = "0123456789abcdef" },
			wantErr: "requires storage.persistent",
		},
		{
			name:    "bad log level",
			mutate:  func(c *ServerConfig) { c.Log.Level = "trace" },
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *ServerConfig) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Verify failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Verify = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.HTTP.Addr = ""
	cfg.Log.Level = "loud"

	err := Verify(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.http.addr", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestVerify_CreateDataDir(t *testing.T) {
	newDir := filepath.Join(t.TempDir(), "subdir", "data")

	cfg := Default()
	cfg.Storage.Persistent = true
	cfg.Storage.DataDir = newDir

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("Data directory should have been created")
	}
}
