// Package storage provides the durable storage engine for RetroState.
//
// The engine pairs the in-memory store with an embedded Badger database:
//
//   - Memory Store: serves every read, see package memory
//   - KV: one record per state, keyed by token, written before the
//     state becomes visible in memory
//   - Sealing: optional XChaCha20-Poly1305 encryption of stored records
//
// The engine supports:
//
//   - Atomic ingest: a failed write releases the reserved token
//   - Recovery: unexpired records are loaded back on startup
//   - Expiry: records carry a Badger TTL and are removed with the memory entry
package storage
