// Package httpserver provides the HTTP/HTTPS server for RetroState.
//
// It builds on net/http: router.go assembles the middleware chain around
// the handler package, middleware.go holds the chain's links and server.go
// owns the listener and TLS setup.
package httpserver
