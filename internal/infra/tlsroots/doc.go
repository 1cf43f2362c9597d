// Package tlsroots loads the TLS material used by RetroState.
//
//   - roots.go: trust pools for clients talking to a TLS server
//   - watcher.go: the server key pair, reloaded when the files change
package tlsroots
