package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix prefixes the environment variables Load reads.
const DefaultEnvPrefix = "RETROSTATE_"

type sources struct {
	file      string
	envPrefix string
	overrides map[string]any
}

// Option selects a configuration source.
type Option func(*sources)

// WithFile reads a YAML file. An empty path is ignored.
func WithFile(path string) Option {
	return func(s *sources) { s.file = path }
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(s *sources) { s.envPrefix = prefix }
}

// WithOverrides sets dotted keys such as "server.http.addr". Overrides
// win over every other source. Repeated calls merge.
func WithOverrides(kv map[string]any) Option {
	return func(s *sources) {
		if s.overrides == nil {
			s.overrides = make(map[string]any, len(kv))
		}
		for k, v := range kv {
			s.overrides[k] = v
		}
	}
}

// Load fills target, a pointer to a struct with koanf tags. Sources are
// layered from lowest to highest priority:
//
//  1. the values already in target
//  2. the YAML file
//  3. environment variables with the prefix
//  4. overrides
func Load(target any, opts ...Option) error {
	_, err := load(target, opts...)
	return err
}

func load(target any, opts ...Option) (*koanf.Koanf, error) {
	src := sources{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&src)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(target, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("confloader: defaults: %w", err)
	}
	if src.file != "" {
		if err := k.Load(file.Provider(src.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("confloader: file %s: %w", src.file, err)
		}
	}
	if err := k.Load(env.Provider(src.envPrefix, ".", envKeyMapper(k, src.envPrefix)), nil); err != nil {
		return nil, fmt.Errorf("confloader: env: %w", err)
	}
	if len(src.overrides) > 0 {
		if err := k.Load(confmap.Provider(src.overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("confloader: overrides: %w", err)
		}
	}

	if err := k.Unmarshal("", target); err != nil {
		return nil, fmt.Errorf("confloader: unmarshal: %w", err)
	}
	return k, nil
}

// envKeyMapper maps PREFIX_SERVER_HTTP_MAX_BODY_BYTES to the known key
// server.http.max_body_bytes. Names matching no known key turn every
// underscore into a dot.
func envKeyMapper(k *koanf.Koanf, prefix string) func(string) string {
	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}
	return func(name string) string {
		name = strings.ToLower(strings.TrimPrefix(name, prefix))
		if key, ok := known[name]; ok {
			return key
		}
		return strings.ReplaceAll(name, "_", ".")
	}
}

// ParseOverride splits "key=value" for WithOverrides.
func ParseOverride(s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("confloader: override %q is not key=value", s)
	}
	return key, value, nil
}
