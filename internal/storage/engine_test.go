package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/storage/memory"
)

func testState() *domain.SystemState {
	return &domain.SystemState{
		Model:     domain.ModelIII,
		Registers: domain.Registers{IX: 1, IY: 2, PC: 3, SP: 4, R1: 5, R2: 6},
		MemoryRegions: []domain.MemoryRegion{
			{Start: 1000, Length: 4, Data: []byte{42, 43, 44, 45}},
			{Start: 1002, Length: 2, Data: []byte{7, 8}},
		},
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.Badger.CompactInterval = 0
	cfg.Badger.SyncWrites = false
	return cfg
}

func openEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := engine.Recover(context.Background()); err != nil {
		engine.Close()
		t.Fatalf("Recover failed: %v", err)
	}
	return engine
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/test-data")

	if cfg.DataDir != "/tmp/test-data" {
		t.Errorf("DataDir = %s, want /tmp/test-data", cfg.DataDir)
	}
	if cfg.Badger.CompactInterval != DefaultBadgerOptions().CompactInterval {
		t.Errorf("CompactInterval = %v, want %v", cfg.Badger.CompactInterval, DefaultBadgerOptions().CompactInterval)
	}
}

func TestEngine_New(t *testing.T) {
	t.Run("missing data_dir", func(t *testing.T) {
		if _, err := New(Config{}); err == nil {
			t.Error("expected error for missing data_dir")
		}
	})

	t.Run("in memory without data_dir", func(t *testing.T) {
		engine, err := New(Config{InMemory: true, Badger: DefaultBadgerOptions()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		engine.Close()
	})

	t.Run("short encryption key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EncryptionKey = []byte("short")
		if _, err := New(cfg); !errors.Is(err, ErrKeyTooShort) {
			t.Errorf("New = %v, want ErrKeyTooShort", err)
		}
	})
}

func TestEngine_CreateAndRead(t *testing.T) {
	engine := openEngine(t, testConfig(t))
	defer engine.Close()
	ctx := context.Background()

	tok, err := engine.Create(ctx, testState(), 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := engine.ReadRange(ctx, tok, 999, 6)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if want := []byte{0, 42, 43, 7, 8, 0}; !bytes.Equal(got, want) {
		t.Errorf("ReadRange = %v, want %v", got, want)
	}

	state, err := engine.Get(ctx, tok, true)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(state.MemoryRegions) != 2 || state.MemoryRegions[0].Data != nil {
		t.Errorf("Get(exclude) regions = %+v", state.MemoryRegions)
	}

	raw, err := engine.KV().Get(ctx, stateKey(tok))
	if err != nil {
		t.Fatalf("KV Get failed: %v", err)
	}
	if raw[0] != envelopePlain {
		t.Errorf("envelope = 0x%02x, want plain", raw[0])
	}
}

func TestEngine_CreateInvalid(t *testing.T) {
	engine := openEngine(t, testConfig(t))
	defer engine.Close()
	ctx := context.Background()

	state := testState()
	state.MemoryRegions[1].Length = 3

	if _, err := engine.Create(ctx, state, 0); !errors.Is(err, domain.ErrInvalidRegion) {
		t.Fatalf("Create = %v, want ErrInvalidRegion", err)
	}
	if _, err := engine.Create(ctx, nil, 0); !errors.Is(err, domain.ErrMissingArgument) {
		t.Fatalf("Create(nil) = %v, want ErrMissingArgument", err)
	}
	if got := engine.Stats().States; got != 0 {
		t.Errorf("States = %d, want 0", got)
	}
}

func TestEngine_Recover(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	engine := openEngine(t, cfg)
	first, err := engine.Create(ctx, testState(), 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := engine.Create(ctx, testState(), time.Now().Add(time.Hour).UnixMilli())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	engine = openEngine(t, cfg)
	defer engine.Close()

	if got := engine.Stats().States; got != 2 {
		t.Fatalf("States after recovery = %d, want 2", got)
	}
	for _, tok := range []domain.Token{first, second} {
		got, err := engine.ReadRange(ctx, tok, 1000, 4)
		if err != nil {
			t.Fatalf("ReadRange(%v) failed: %v", tok, err)
		}
		if want := []byte{42, 43, 7, 8}; !bytes.Equal(got, want) {
			t.Errorf("ReadRange(%v) = %v, want %v", tok, got, want)
		}
	}

	info, err := engine.Store().Info(ctx, second)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.ExpiresAt == 0 {
		t.Error("expiry lost across recovery")
	}
}

func TestEngine_RecoverDropsExpired(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	now := time.Now()
	cfg.StoreOptions = []memory.Option{memory.WithClock(func() time.Time { return now })}

	engine := openEngine(t, cfg)
	tok, err := engine.Create(ctx, testState(), now.Add(time.Minute).UnixMilli())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	engine.Close()

	// Restart well after the state expired. Badger still holds the key
	// since its TTL runs on the wall clock.
	later := now.Add(time.Hour)
	cfg.StoreOptions = []memory.Option{memory.WithClock(func() time.Time { return later })}

	engine = openEngine(t, cfg)
	defer engine.Close()

	if _, err := engine.Get(ctx, tok, false); !errors.Is(err, domain.ErrUnknownToken) {
		t.Errorf("Get = %v, want ErrUnknownToken", err)
	}
	if _, err := engine.KV().Get(ctx, stateKey(tok)); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("KV Get = %v, want ErrKeyNotFound", err)
	}
}

func TestEngine_Sealed(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	ctx := context.Background()

	engine := openEngine(t, cfg)
	tok, err := engine.Create(ctx, testState(), 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	raw, err := engine.KV().Get(ctx, stateKey(tok))
	if err != nil {
		t.Fatalf("KV Get failed: %v", err)
	}
	if raw[0] != envelopeSealed {
		t.Errorf("envelope = 0x%02x, want sealed", raw[0])
	}
	if bytes.Contains(raw, []byte{42, 43, 44, 45}) {
		t.Error("stored record contains plaintext memory")
	}
	engine.Close()

	t.Run("same key", func(t *testing.T) {
		e := openEngine(t, cfg)
		defer e.Close()
		if _, err := e.Get(ctx, tok, false); err != nil {
			t.Errorf("Get failed: %v", err)
		}
	})

	t.Run("no key", func(t *testing.T) {
		noKey := cfg
		noKey.EncryptionKey = nil
		e, err := New(noKey)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer e.Close()
		if err := e.Recover(ctx); !errors.Is(err, ErrSealedNoKey) {
			t.Errorf("Recover = %v, want ErrSealedNoKey", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		wrong := cfg
		wrong.EncryptionKey = []byte("fedcba9876543210fedcba9876543210")
		e, err := New(wrong)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer e.Close()
		if err := e.Recover(ctx); !errors.Is(err, ErrOpenFailed) {
			t.Errorf("Recover = %v, want ErrOpenFailed", err)
		}
	})
}

func TestEngine_RecoverSkipsCorrupt(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	engine := openEngine(t, cfg)
	tok, err := engine.Create(ctx, testState(), 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := engine.KV().Put(ctx, stateKey(tok+1), []byte{envelopePlain, 0xFF, 0xFF}, 0); err != nil {
		t.Fatal(err)
	}
	if err := engine.KV().Put(ctx, []byte("state/short"), []byte{envelopePlain}, 0); err != nil {
		t.Fatal(err)
	}
	engine.Close()

	engine = openEngine(t, cfg)
	defer engine.Close()

	if got := engine.Stats().States; got != 1 {
		t.Errorf("States = %d, want 1", got)
	}
}

func TestEngine_DeleteExpired(t *testing.T) {
	now := time.Now()
	clock := now
	cfg := testConfig(t)
	cfg.StoreOptions = []memory.Option{memory.WithClock(func() time.Time { return clock })}
	ctx := context.Background()

	engine := openEngine(t, cfg)
	defer engine.Close()

	short, err := engine.Create(ctx, testState(), now.Add(time.Minute).UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	keep, err := engine.Create(ctx, testState(), 0)
	if err != nil {
		t.Fatal(err)
	}

	clock = now.Add(2 * time.Minute)
	removed, err := engine.DeleteExpired(ctx, clock)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != short {
		t.Fatalf("removed = %v, want [%v]", removed, short)
	}
	if _, err := engine.KV().Get(ctx, stateKey(short)); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("KV Get(expired) = %v, want ErrKeyNotFound", err)
	}
	if _, err := engine.Get(ctx, keep, false); err != nil {
		t.Errorf("Get(keep) failed: %v", err)
	}
}

func TestEngine_Delete(t *testing.T) {
	engine := openEngine(t, testConfig(t))
	defer engine.Close()
	ctx := context.Background()

	tok, err := engine.Create(ctx, testState(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Delete(ctx, tok); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := engine.Get(ctx, tok, false); !errors.Is(err, domain.ErrUnknownToken) {
		t.Errorf("Get = %v, want ErrUnknownToken", err)
	}
}

// failingKV rejects every write.
type failingKV struct {
	KV
}

func (failingKV) Put(context.Context, []byte, []byte, time.Duration) error {
	return errors.New("disk full")
}

func TestEngine_CreateReleasesOnWriteFailure(t *testing.T) {
	engine := openEngine(t, Config{InMemory: true, Badger: DefaultBadgerOptions(), Logger: slog.Default()})
	defer engine.Close()
	ctx := context.Background()

	engine.kv = failingKV{KV: engine.kv}

	_, err := engine.Create(ctx, testState(), 0)
	if !errors.Is(err, domain.ErrStorageError) {
		t.Fatalf("Create = %v, want ErrStorageError", err)
	}
	if got := engine.Store().Count(); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}

func TestStateKey(t *testing.T) {
	tok := domain.Token(0x0102030405060708)
	key := stateKey(tok)

	got, ok := tokenFromKey(key)
	if !ok || got != tok {
		t.Fatalf("tokenFromKey = (%v, %v), want (%v, true)", got, ok, tok)
	}
	if _, ok := tokenFromKey([]byte("state/")); ok {
		t.Error("tokenFromKey accepted a short key")
	}
	if _, ok := tokenFromKey(stateKey(0)); ok {
		t.Error("tokenFromKey accepted the zero token")
	}
}
