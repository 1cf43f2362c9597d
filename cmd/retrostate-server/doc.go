// Package main provides the entry point for retrostate-server.
//
// The server stores system-state snapshots of emulated retro computers
// and serves them over HTTP/HTTPS:
//
//   - POST /v1/states uploads a state and returns its token
//   - GET /v1/states/{token} downloads it, optionally without memory data
//   - GET /v1/states/{token}/memory reads a reconstructed address range
//
// The same operations are available over RESP when server.resp.addr is
// set, and host operators can use the Unix socket at
// server.local.socket_path for status, gc, log level and shutdown.
//
// Usage:
//
//	retrostate-server [flags]
//	retrostate-server --config /etc/retrostate/server.yaml
//	retrostate-server --set server.http.addr=:8080 --set log.level=debug
//
// Configuration comes from defaults, the optional YAML file,
// RETROSTATE_* environment variables and --set flags, in that order of
// precedence.
package main
