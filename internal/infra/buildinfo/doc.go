// Package buildinfo provides build information for RetroState.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/retrostate-go/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not injected, the VCS stamp that the Go toolchain embeds
// in the binary is used instead.
package buildinfo
