package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr     = "127.0.0.1:5080"
	DefaultMaxBodyBytes = 128 << 20
	DefaultRateLimit    = 200
	DefaultRateBurst    = 400

	DefaultRESPMaxBulkBytes = 128 << 20

	DefaultDataDir        = "/var/lib/retrostate-server/data"
	DefaultReapInterval   = time.Minute
	DefaultMaxStateBytes  = 64 << 20
	DefaultMaxRangeLength = 16 << 20
	DefaultGCInterval     = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// MinEncryptionKeyLength is the shortest accepted security.encryption_key.
	MinEncryptionKeyLength = 16
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				MaxBodyBytes: DefaultMaxBodyBytes,
				RateLimit:    DefaultRateLimit,
				RateBurst:    DefaultRateBurst,
			},
			RESP: RESPConfig{
				MaxBulkBytes: DefaultRESPMaxBulkBytes,
			},
		},
		Storage: StorageSection{
			Persistent:     false,
			DataDir:        DefaultDataDir,
			ReapInterval:   DefaultReapInterval,
			MaxStateBytes:  DefaultMaxStateBytes,
			MaxRangeLength: DefaultMaxRangeLength,
			GCInterval:     DefaultGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
