// Package main provides the entry point for retrostate-cli.
//
// The CLI talks to a retrostate-server over HTTP/HTTPS:
//
//   - state upload, download and range reads
//   - state selftest, an end-to-end check of a running server
//   - system health, status and expired state collection
//
// Usage:
//
//	retrostate-cli [global flags] command [flags] [args]
//	retrostate-cli -s localhost:5080 state upload snapshot.pb
//	retrostate-cli state range --start 15360 --length 64 7316352951
package main
