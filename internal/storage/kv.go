package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound = errors.New("storage: key not found")
	ErrClosed      = errors.New("storage: kv closed")
)

// KV is the durable key-value layer below the memory store. All methods
// are safe for concurrent use and fail with ErrClosed after Close.
type KV interface {
	// Get returns ErrKeyNotFound for missing or expired keys.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key. A positive ttl expires the key.
	Put(ctx context.Context, key, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...[]byte) error

	// Scan calls fn for each live key with prefix, in key order, until
	// fn returns false.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Compact reclaims space held by deleted and expired values and
	// returns the number of files rewritten.
	Compact(ctx context.Context) (int, error)

	Close() error
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	Dir      string
	InMemory bool // Dir is ignored

	// CompactInterval runs Compact in the background. Zero disables it.
	CompactInterval time.Duration
	// DiscardRatio is the stale fraction at which a value log file is
	// rewritten.
	DiscardRatio float64

	BlockCacheSize   int64
	ValueLogFileSize int64
	NumMemtables     int
	SyncWrites       bool
}

// DefaultBadgerOptions returns durable settings sized for a few thousand
// states of up to a few megabytes each.
func DefaultBadgerOptions() BadgerOptions {
	return BadgerOptions{
		CompactInterval:  10 * time.Minute,
		DiscardRatio:     0.5,
		BlockCacheSize:   64 << 20,
		ValueLogFileSize: 256 << 20,
		NumMemtables:     2,
		SyncWrites:       true,
	}
}
