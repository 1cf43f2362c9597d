// Package config loads the optional retrostate-cli profile.
//
// The profile is a small YAML file, by default ~/.retrostate/cli.yaml,
// that supplies defaults for the global flags. Flags and RETROSTATE_*
// environment variables always win over the profile.
package config
