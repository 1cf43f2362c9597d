package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Badger is a KV on Badger v3.
type Badger struct {
	db     *badger.DB
	opts   BadgerOptions
	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	stop      context.CancelFunc
	bg        sync.WaitGroup

	lastCompact atomic.Int64 // unix millis
	rewrites    atomic.Uint64
}

var _ KV = (*Badger)(nil)

// OpenBadger opens the database and starts background compaction.
func OpenBadger(opts BadgerOptions, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bopts := badger.DefaultOptions(opts.Dir)
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case opts.Dir == "":
		return nil, errors.New("badger: dir is required")
	}
	bopts = bopts.WithLogger(badgerLog{logger}).WithSyncWrites(opts.SyncWrites)
	if opts.BlockCacheSize > 0 {
		bopts = bopts.WithBlockCacheSize(opts.BlockCacheSize)
	}
	if opts.ValueLogFileSize > 0 {
		bopts = bopts.WithValueLogFileSize(opts.ValueLogFileSize)
	}
	if opts.NumMemtables > 0 {
		bopts = bopts.WithNumMemtables(opts.NumMemtables)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Badger{db: db, opts: opts, logger: logger, stop: cancel}
	if opts.CompactInterval > 0 && !opts.InMemory {
		b.bg.Add(1)
		go b.compactEvery(ctx, opts.CompactInterval)
	}
	logger.Info("badger opened", "dir", opts.Dir, "in_memory", opts.InMemory,
		"compact_interval", opts.CompactInterval)
	return b, nil
}

func (b *Badger) Get(_ context.Context, key []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return out, err
}

func (b *Badger) Put(_ context.Context, key, value []byte, ttl time.Duration) error {
	if b.closed.Load() {
		return ErrClosed
	}
	e := badger.NewEntry(key, value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(e)
	})
}

// Delete removes keys through a write batch, so large sweeps are split
// into as many transactions as Badger needs.
func (b *Badger) Delete(_ context.Context, keys ...[]byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("badger: delete: %w", err)
		}
	}
	return wb.Flush()
}

func (b *Badger) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 16, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var more bool
			err := item.Value(func(v []byte) error {
				more = fn(item.KeyCopy(nil), append([]byte(nil), v...))
				return nil
			})
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

// Compact runs value log GC until Badger finds nothing to rewrite.
func (b *Badger) Compact(ctx context.Context) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	start := time.Now()
	n := 0
	for ctx.Err() == nil {
		err := b.db.RunValueLogGC(b.opts.DiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("badger: compact: %w", err)
		}
		n++
	}
	if err := ctx.Err(); err != nil {
		return n, err
	}
	b.lastCompact.Store(time.Now().UnixMilli())
	b.rewrites.Add(uint64(n))
	b.logger.Debug("badger compacted", "rewrites", n, "elapsed", time.Since(start))
	return n, nil
}

// LastCompact returns when Compact last finished, or the zero time.
func (b *Badger) LastCompact() time.Time {
	ms := b.lastCompact.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (b *Badger) compactEvery(ctx context.Context, every time.Duration) {
	defer b.bg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := b.Compact(ctx); err != nil && ctx.Err() == nil {
				b.logger.Error("badger background compaction failed", "error", err)
			}
		}
	}
}

// Close stops background work and closes the database. Later calls
// return nil.
func (b *Badger) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.stop()
		b.bg.Wait()
		b.closed.Store(true)
		if err = b.db.Close(); err != nil {
			err = fmt.Errorf("badger: close: %w", err)
			return
		}
		b.logger.Info("badger closed")
	})
	return err
}

// Collector exports size and compaction metrics, read on every scrape.
func (b *Badger) Collector() prometheus.Collector {
	return badgerCollector{b}
}

var (
	badgerLSMDesc = prometheus.NewDesc("retrostate_badger_lsm_size_bytes",
		"Badger LSM tree size in bytes.", nil, nil)
	badgerVlogDesc = prometheus.NewDesc("retrostate_badger_value_log_size_bytes",
		"Badger value log size in bytes.", nil, nil)
	badgerCompactDesc = prometheus.NewDesc("retrostate_badger_last_compaction_timestamp_seconds",
		"Unix time of the last finished compaction.", nil, nil)
	badgerRewritesDesc = prometheus.NewDesc("retrostate_badger_compaction_rewrites_total",
		"Value log files rewritten by compaction.", nil, nil)
)

type badgerCollector struct{ b *Badger }

func (c badgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- badgerLSMDesc
	ch <- badgerVlogDesc
	ch <- badgerCompactDesc
	ch <- badgerRewritesDesc
}

func (c badgerCollector) Collect(ch chan<- prometheus.Metric) {
	if !c.b.closed.Load() {
		lsm, vlog := c.b.db.Size()
		ch <- prometheus.MustNewConstMetric(badgerLSMDesc, prometheus.GaugeValue, float64(lsm))
		ch <- prometheus.MustNewConstMetric(badgerVlogDesc, prometheus.GaugeValue, float64(vlog))
	}
	ch <- prometheus.MustNewConstMetric(badgerCompactDesc, prometheus.GaugeValue,
		float64(c.b.lastCompact.Load())/1000)
	ch <- prometheus.MustNewConstMetric(badgerRewritesDesc, prometheus.CounterValue,
		float64(c.b.rewrites.Load()))
}

// badgerLog routes Badger's printf logging to slog.
type badgerLog struct{ l *slog.Logger }

func (g badgerLog) Errorf(f string, a ...interface{})   { g.l.Error(fmt.Sprintf(f, a...)) }
func (g badgerLog) Warningf(f string, a ...interface{}) { g.l.Warn(fmt.Sprintf(f, a...)) }
func (g badgerLog) Infof(f string, a ...interface{})    { g.l.Info(fmt.Sprintf(f, a...)) }
func (g badgerLog) Debugf(f string, a ...interface{})   { g.l.Debug(fmt.Sprintf(f, a...)) }
