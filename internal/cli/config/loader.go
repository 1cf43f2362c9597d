package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// CLIConfig is the retrostate-cli profile.
type CLIConfig struct {
	Server  string `yaml:"server"`
	Output  string `yaml:"output"`
	CAFile  string `yaml:"ca_file"`
	Timeout string `yaml:"timeout"`
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".retrostate", "cli.yaml")
}

// Load reads the profile at path. A missing file yields an empty profile.
func Load(path string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.CAFile != "" && !filepath.IsAbs(cfg.CAFile) {
		cfg.CAFile = filepath.Join(filepath.Dir(path), cfg.CAFile)
	}
	return cfg, nil
}

// Save writes the profile to path with owner-only permissions.
func Save(cfg *CLIConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Defaults returns the profile as flag name to value, omitting empty entries.
func (c *CLIConfig) Defaults() map[string]string {
	out := make(map[string]string, 4)
	for name, v := range map[string]string{
		"server":  c.Server,
		"output":  c.Output,
		"ca-file": c.CAFile,
		"timeout": c.Timeout,
	} {
		if v != "" {
			out[name] = v
		}
	}
	return out
}
