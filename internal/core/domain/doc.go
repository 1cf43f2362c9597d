// Package domain defines the core domain models for RetroState.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - SystemState: machine model, CPU registers and memory regions
//   - MemoryRegion: a contiguous run of bytes at a fixed start address
//   - Token: the opaque handle returned by an upload
//   - Errors: domain-specific error definitions
//
// Memory regions are validated here but never merged or normalized.
// Their submission order is part of the state and decides which bytes
// win when regions overlap.
package domain
