package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func openTestBadger(t *testing.T, inMemory bool) *Badger {
	t.Helper()
	opts := DefaultBadgerOptions()
	opts.CompactInterval = 0
	opts.SyncWrites = false
	if inMemory {
		opts.InMemory = true
	} else {
		opts.Dir = t.TempDir()
	}
	b, err := OpenBadger(opts, slog.Default())
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func countPrefix(t *testing.T, b *Badger, prefix string) int {
	t.Helper()
	n := 0
	if err := b.Scan(context.Background(), []byte(prefix), func(_, _ []byte) bool {
		n++
		return true
	}); err != nil {
		t.Fatalf("Scan(%q) error = %v", prefix, err)
	}
	return n
}

func TestOpenBadger_RequiresDir(t *testing.T) {
	if _, err := OpenBadger(BadgerOptions{}, nil); err == nil {
		t.Error("OpenBadger without a dir succeeded")
	}
}

func TestBadger_PutGetDelete(t *testing.T) {
	b := openTestBadger(t, false)
	ctx := context.Background()

	if err := b.Put(ctx, []byte("state/1"), []byte("READY"), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := b.Get(ctx, []byte("state/1"))
	if err != nil || string(got) != "READY" {
		t.Fatalf("Get() = %q, %v, want READY", got, err)
	}

	if _, err := b.Get(ctx, []byte("state/2")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) error = %v, want %v", err, ErrKeyNotFound)
	}

	if err := b.Delete(ctx, []byte("state/1"), []byte("state/never")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := b.Get(ctx, []byte("state/1")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after Delete error = %v, want %v", err, ErrKeyNotFound)
	}
	if err := b.Delete(ctx); err != nil {
		t.Errorf("Delete() with no keys error = %v", err)
	}
}

func TestBadger_DeleteMany(t *testing.T) {
	b := openTestBadger(t, false)
	ctx := context.Background()

	keys := make([][]byte, 5000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("bulk/%05d", i))
		if err := b.Put(ctx, keys[i], []byte{byte(i)}, 0); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := b.Delete(ctx, keys...); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n := countPrefix(t, b, "bulk/"); n != 0 {
		t.Errorf("%d keys left after Delete, want 0", n)
	}
}

func TestBadger_TTL(t *testing.T) {
	b := openTestBadger(t, false)
	ctx := context.Background()

	if err := b.Put(ctx, []byte("short"), []byte("v"), time.Second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := b.Get(ctx, []byte("short")); err != nil {
		t.Fatalf("Get before expiry error = %v", err)
	}

	// Badger expiry has second granularity.
	time.Sleep(2100 * time.Millisecond)

	if _, err := b.Get(ctx, []byte("short")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get after expiry error = %v, want %v", err, ErrKeyNotFound)
	}
	if n := countPrefix(t, b, "short"); n != 0 {
		t.Errorf("Scan saw %d expired keys, want 0", n)
	}
}

func TestBadger_Scan(t *testing.T) {
	b := openTestBadger(t, true)
	ctx := context.Background()

	for _, k := range []string{"state/3", "state/1", "state/2", "meta/x", "statf/0"} {
		if err := b.Put(ctx, []byte(k), []byte("v:"+k), 0); err != nil {
			t.Fatalf("Put(%q) error = %v", k, err)
		}
	}

	var keys []string
	err := b.Scan(ctx, []byte("state/"), func(k, v []byte) bool {
		if string(v) != "v:"+string(k) {
			t.Errorf("value for %q = %q", k, v)
		}
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := strings.Join(keys, ","); got != "state/1,state/2,state/3" {
		t.Errorf("Scan keys = %s, want state/1,state/2,state/3", got)
	}

	n := 0
	b.Scan(ctx, []byte("state/"), func(_, _ []byte) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Errorf("Scan continued after false: %d calls, want 2", n)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := b.Scan(cctx, []byte("state/"), func(_, _ []byte) bool { return true }); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan(cancelled) error = %v, want %v", err, context.Canceled)
	}
}

func TestBadger_Compact(t *testing.T) {
	b := openTestBadger(t, false)
	ctx := context.Background()

	if !b.LastCompact().IsZero() {
		t.Fatal("LastCompact() set before any compaction")
	}
	for i := range 100 {
		if err := b.Put(ctx, []byte{byte(i)}, make([]byte, 1000), 0); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	for i := range 50 {
		if err := b.Delete(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
	}

	if _, err := b.Compact(ctx); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if b.LastCompact().IsZero() {
		t.Error("LastCompact() not recorded")
	}
}

func TestBadger_CompactInMemory(t *testing.T) {
	b := openTestBadger(t, true)

	n, err := b.Compact(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Compact() = %d, %v, want 0, nil", n, err)
	}
}

func TestBadger_Closed(t *testing.T) {
	b := openTestBadger(t, true)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := b.Get(ctx, []byte("k")); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close error = %v, want %v", err, ErrClosed)
	}
	if err := b.Put(ctx, []byte("k"), nil, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close error = %v, want %v", err, ErrClosed)
	}
	if _, err := b.Compact(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Compact after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestBadger_Collector(t *testing.T) {
	b := openTestBadger(t, false)
	reg := prometheus.NewRegistry()

	if err := reg.Register(b.Collector()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 4 {
		t.Errorf("GatherAndCount() = %d, %v, want 4", n, err)
	}
	if err := reg.Register(b.Collector()); err == nil {
		t.Error("second Register() succeeded, want duplicate error")
	}

	b.Close()
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 2 {
		t.Errorf("GatherAndCount() after Close = %d, %v, want 2", n, err)
	}
}
