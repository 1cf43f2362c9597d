package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/retrostate-go/internal/telemetry/logger"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifySecurity(&cfg.Security, &cfg.Storage),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr %q: %w", cfg.HTTP.Addr, err))
	}

	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("tls file: %w", err))
		}
	}

	if cfg.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.http.max_body_bytes must be positive"))
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst < 1 {
		errs = append(errs, errors.New("server.http.rate_burst must be at least 1 when rate limiting"))
	}

	if cfg.RESP.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.RESP.Addr); err != nil {
			errs = append(errs, fmt.Errorf("server.resp.addr %q: %w", cfg.RESP.Addr, err))
		}
		if cfg.RESP.TLS && cfg.HTTP.TLSCertFile == "" {
			errs = append(errs, errors.New("server.resp.tls requires server.http.tls_cert_file and tls_key_file"))
		}
		if cfg.RESP.MaxBulkBytes <= 0 {
			errs = append(errs, errors.New("server.resp.max_bulk_bytes must be positive"))
		}
	}

	if p := cfg.Local.SocketPath; p != "" && !filepath.IsAbs(p) {
		errs = append(errs, fmt.Errorf("server.local.socket_path %q must be absolute", p))
	}

	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	var errs []error

	if cfg.Persistent {
		if cfg.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required when storage.persistent is set"))
		} else if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			errs = append(errs, fmt.Errorf("cannot create data directory: %w", err))
		}
	}

	if cfg.StateTTL < 0 {
		errs = append(errs, errors.New("storage.state_ttl must not be negative"))
	}
	if cfg.StateTTL > 0 && cfg.ReapInterval <= 0 {
		errs = append(errs, errors.New("storage.reap_interval must be positive when storage.state_ttl is set"))
	}
	if cfg.MaxStateBytes < 0 {
		errs = append(errs, errors.New("storage.max_state_bytes must not be negative"))
	}
	if cfg.MaxRangeLength < 0 {
		errs = append(errs, errors.New("storage.max_range_length must not be negative"))
	}
	if cfg.GCInterval < 0 {
		errs = append(errs, errors.New("storage.gc_interval must not be negative"))
	}

	return errors.Join(errs...)
}

func verifySecurity(cfg *SecuritySection, storage *StorageSection) error {
	if cfg.EncryptionKey == "" {
		return nil
	}
	if len(cfg.EncryptionKey) < MinEncryptionKeyLength {
		return fmt.Errorf("security.encryption_key must be at least %d bytes", MinEncryptionKeyLength)
	}
	if !storage.Persistent {
		return errors.New("security.encryption_key requires storage.persistent")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", cfg.Format))
	}
	return errors.Join(errs...)
}
