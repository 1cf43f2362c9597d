// Package logger provides structured logging for RetroState.
//
// This package wraps log/slog:
//
//   - logger.go: logger construction, levels and the global default
//   - context.go: context-aware logging with request IDs
//   - redact.go: secret redaction and payload elision
//
// Secrets such as the storage encryption key are never written in full.
// State tokens are masked, and raw memory payloads are replaced by
// their length so a debug log never dumps a memory image.
package logger
