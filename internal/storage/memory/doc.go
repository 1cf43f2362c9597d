// Package memory provides in-memory storage for RetroState.
//
// It implements service.StateRepository using a sharded token map and an
// immutable per-state region index.
//
// Features:
//
//   - Atomic ingest: a token is reserved first and the state is published
//     with a single pointer store, so readers never see a partial entry
//   - Range reconstruction: reads return exactly the requested length,
//     zero-filled where no region maps, with later regions winning overlaps
//   - Interval index: regions sorted by start with a running maximum end,
//     so a read visits only the regions it intersects
//
// Thread Safety:
//
// All operations are thread-safe. Published entries are never mutated, so
// reads only take a shard read lock for the token lookup.
package memory
