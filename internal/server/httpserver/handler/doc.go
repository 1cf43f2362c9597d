// Package handler provides the HTTP handlers of the RetroState API.
//
//   - state.go: upload, download and ranged memory reads
//   - admin.go: status summary and on-demand expiry
//   - health.go: liveness and readiness
//
// State endpoints speak JSON by default and protobuf when the request
// carries Content-Type or Accept application/x-protobuf. JSON responses use
// the envelope in types.go.
package handler
