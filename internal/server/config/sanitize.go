package config

import "fmt"

// Sanitize returns a copy of cfg that is safe to log. The encryption key
// is replaced by its length.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	out := *cfg
	if k := out.Security.EncryptionKey; k != "" {
		out.Security.EncryptionKey = fmt.Sprintf("<redacted %d bytes>", len(k))
	}
	return &out
}
