package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	statev1 "github.com/yndnr/retrostate-go/api/proto/v1"
	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/storage/memory"
)

// DefaultBadgerDir is the Badger directory below DataDir.
const DefaultBadgerDir = "badger"

// statePrefix prefixes every state record key.
var statePrefix = []byte("state/")

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// InMemory keeps the KV in memory. Intended for tests.
	InMemory bool

	// Badger tunes the KV. Dir and InMemory are set by New.
	Badger BadgerOptions

	// EncryptionKey enables sealing of stored records when non-empty.
	EncryptionKey []byte

	// StoreOptions are passed to the memory store.
	StoreOptions []memory.Option

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir: dataDir,
		Badger:  DefaultBadgerOptions(),
		Logger:  slog.Default(),
	}
}

// Engine is the storage engine that combines the memory store with Badger.
type Engine struct {
	cfg    Config
	store  *memory.Store
	kv     KV
	sealer *Sealer
	logger *slog.Logger
}

var _ service.StateRepository = (*Engine)(nil)

// New creates a new storage engine.
//
// This opens all components but does NOT perform recovery.
// Call Recover() after New() to load existing data.
func New(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var sealer *Sealer
	if len(cfg.EncryptionKey) > 0 {
		s, err := NewSealer(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		sealer = s
	}

	bopts := cfg.Badger
	bopts.InMemory = cfg.InMemory
	if !cfg.InMemory {
		bopts.Dir = filepath.Join(cfg.DataDir, DefaultBadgerDir)
		if err := os.MkdirAll(bopts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
	}
	kv, err := OpenBadger(bopts, cfg.Logger.With("component", "badger"))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	return &Engine{
		cfg:    cfg,
		store:  memory.New(cfg.StoreOptions...),
		kv:     kv,
		sealer: sealer,
		logger: cfg.Logger,
	}, nil
}

// Recover loads every unexpired record from the KV engine into memory.
//
// Records that cannot be decoded are logged and skipped. A record that
// cannot be opened with the configured key fails recovery, since every
// following record would fail the same way.
func (e *Engine) Recover(ctx context.Context) error {
	startTime := time.Now()
	e.logger.Info("storage recovery started")

	now := e.store.Now().UnixMilli()
	var (
		restored, corrupt int
		expiredKeys       [][]byte
		fatal             error
	)

	err := e.kv.Scan(ctx, statePrefix, func(key, value []byte) bool {
		tok, ok := tokenFromKey(key)
		if !ok {
			corrupt++
			e.logger.Warn("skipping record with malformed key", "key_len", len(key))
			return true
		}

		plain, err := unwrapValue(e.sealer, value, key)
		if err != nil {
			if errors.Is(err, ErrSealedNoKey) || errors.Is(err, ErrOpenFailed) {
				fatal = err
				return false
			}
			corrupt++
			e.logger.Warn("skipping unreadable record", "token", domain.MaskToken(tok), "error", err)
			return true
		}

		rec, err := statev1.UnmarshalRecord(plain)
		if err != nil || rec.Token != int64(tok) {
			corrupt++
			e.logger.Warn("skipping corrupt record", "token", domain.MaskToken(tok), "error", err)
			return true
		}

		if rec.ExpiresAt > 0 && rec.ExpiresAt <= now {
			expiredKeys = append(expiredKeys, key)
			return true
		}

		if err := e.store.Restore(ctx, tok, rec.State, rec.CreatedAt, rec.ExpiresAt); err != nil {
			if !errors.Is(err, domain.ErrTokenConflict) {
				corrupt++
				e.logger.Warn("failed to restore state", "token", domain.MaskToken(tok), "error", err)
			}
			return true
		}
		restored++
		return true
	})
	if fatal != nil {
		return fmt.Errorf("recover: %w", fatal)
	}
	if err != nil {
		return fmt.Errorf("recover: scan: %w", err)
	}

	if len(expiredKeys) > 0 {
		if err := e.kv.Delete(ctx, expiredKeys...); err != nil {
			e.logger.Warn("failed to delete expired records", "count", len(expiredKeys), "error", err)
		}
	}

	e.logger.Info("recovery completed",
		"restored", restored,
		"expired", len(expiredKeys),
		"corrupt", corrupt,
		"elapsed", time.Since(startTime))

	return nil
}

// Create stores a state durably under a fresh token.
//
// The record is written to the KV engine before the state becomes
// visible in memory. On failure the token is released.
func (e *Engine) Create(ctx context.Context, state *domain.SystemState, expiresAt int64) (domain.Token, error) {
	if state == nil {
		return 0, domain.ErrMissingArgument.WithDetails("state is required")
	}
	if err := state.Validate(); err != nil {
		return 0, err
	}

	// Step 1: Reserve token
	tok, err := e.store.Reserve(ctx)
	if err != nil {
		return 0, err
	}

	// Step 2: Write to KV
	now := e.store.Now()
	createdAt := now.UnixMilli()
	key := stateKey(tok)
	value, err := wrapValue(e.sealer, statev1.MarshalRecord(&statev1.Record{
		Token:     int64(tok),
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		State:     state,
	}), key)
	if err != nil {
		e.store.Release(tok)
		return 0, domain.ErrStorageError.WithCause(err)
	}

	var ttl time.Duration
	if expiresAt > 0 {
		// Badger keeps expiry with second precision.
		ttl = time.UnixMilli(expiresAt).Sub(now) + time.Second
	}
	if err := e.kv.Put(ctx, key, value, ttl); err != nil {
		e.store.Release(tok)
		return 0, domain.ErrStorageError.WithCause(err)
	}

	// Step 3: Publish in memory
	if err := e.store.Publish(ctx, tok, state, createdAt, expiresAt); err != nil {
		if derr := e.kv.Delete(ctx, key); derr != nil {
			e.logger.Warn("failed to roll back record", "token", domain.MaskToken(tok), "error", derr)
		}
		e.store.Release(tok)
		return 0, err
	}

	return tok, nil
}

// Get retrieves a state by token.
func (e *Engine) Get(ctx context.Context, tok domain.Token, excludeMemoryData bool) (*domain.SystemState, error) {
	return e.store.Get(ctx, tok, excludeMemoryData)
}

// ReadRange reconstructs a byte range of a state.
func (e *Engine) ReadRange(ctx context.Context, tok domain.Token, start, length int64) ([]byte, error) {
	return e.store.ReadRange(ctx, tok, start, length)
}

// Delete removes a state from both layers.
func (e *Engine) Delete(ctx context.Context, tok domain.Token) error {
	if err := e.kv.Delete(ctx, stateKey(tok)); err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	return e.store.Delete(ctx, tok)
}

// DeleteExpired removes expired states from memory and their records from
// the KV engine.
func (e *Engine) DeleteExpired(ctx context.Context, now time.Time) ([]domain.Token, error) {
	removed, err := e.store.DeleteExpired(ctx, now)
	if len(removed) > 0 {
		keys := make([][]byte, len(removed))
		for i, tok := range removed {
			keys[i] = stateKey(tok)
		}
		if kerr := e.kv.Delete(ctx, keys...); kerr != nil {
			return removed, domain.ErrStorageError.WithCause(kerr)
		}
	}
	return removed, err
}

// Stats reports in-memory statistics.
func (e *Engine) Stats() service.RepositoryStats {
	return e.store.Stats()
}

// Store returns the underlying memory store.
func (e *Engine) Store() *memory.Store {
	return e.store
}

// KV returns the durable layer.
func (e *Engine) KV() KV {
	return e.kv
}

// Close closes the KV engine.
func (e *Engine) Close() error {
	return e.kv.Close()
}

func stateKey(tok domain.Token) []byte {
	key := make([]byte, len(statePrefix)+8)
	copy(key, statePrefix)
	binary.BigEndian.PutUint64(key[len(statePrefix):], uint64(tok))
	return key
}

func tokenFromKey(key []byte) (domain.Token, bool) {
	if len(key) != len(statePrefix)+8 || !bytes.HasPrefix(key, statePrefix) {
		return 0, false
	}
	tok := domain.Token(binary.BigEndian.Uint64(key[len(statePrefix):]))
	return tok, tok.Valid()
}
