package config

import "time"

// ServerConfig is the root configuration for retrostate-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	RESP  RESPConfig  `koanf:"resp"`
	Local LocalConfig `koanf:"local"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// MaxBodyBytes caps request bodies. Uploads carry whole memory images,
	// so this must exceed storage.max_state_bytes plus encoding overhead.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// RateLimit is the per-client request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the per-client burst size.
	RateBurst int `koanf:"rate_burst"`
}

// RESPConfig configures the RESP front end. An empty Addr disables it.
type RESPConfig struct {
	Addr string `koanf:"addr"`

	// TLS serves RESP with the HTTP server's certificate.
	TLS bool `koanf:"tls"`

	// MaxBulkBytes caps a single command argument.
	MaxBulkBytes int `koanf:"max_bulk_bytes"`
}

// LocalConfig configures the local management socket. An empty
// SocketPath disables it.
type LocalConfig struct {
	SocketPath string `koanf:"socket_path"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	// Persistent stores states in Badger under DataDir. When false the
	// store lives in memory only.
	Persistent bool   `koanf:"persistent"`
	DataDir    string `koanf:"data_dir"`

	// StateTTL is how long uploaded states live. Zero keeps them forever.
	StateTTL time.Duration `koanf:"state_ttl"`

	// ReapInterval is the period of the expired state sweep.
	ReapInterval time.Duration `koanf:"reap_interval"`

	MaxStateBytes  int64 `koanf:"max_state_bytes"`
	MaxRangeLength int64 `koanf:"max_range_length"`

	// GCInterval is the Badger value log GC period. Zero disables it.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// EncryptionKey seals stored records when set.
	EncryptionKey string `koanf:"encryption_key"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
