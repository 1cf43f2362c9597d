package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"testing"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/storage"
	"github.com/yndnr/retrostate-go/internal/storage/memory"
)

// StateSizes are the total memory bytes per benchmarked state.
var StateSizes = []int{4 << 10, 64 << 10, 1 << 20}

// StoreCounts are the prefill sizes for lookup benchmarks.
var StoreCounts = []int{100, 1000, 10000}

// regionSize splits benchmark states into regions of this many bytes.
const regionSize = 4 << 10

// newState builds a state of total memory bytes split into contiguous
// regions, so a range over the whole image crosses every region.
func newState(rng *rand.Rand, total int) *domain.SystemState {
	state := &domain.SystemState{
		Model:     domain.ModelIII,
		Registers: domain.Registers{PC: 0x4000, SP: 0x7ffe},
	}
	for start := 0; start < total; start += regionSize {
		n := min(regionSize, total-start)
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(rng.IntN(256))
		}
		state.MemoryRegions = append(state.MemoryRegions, domain.MemoryRegion{
			Start:  int64(start),
			Length: int64(n),
			Data:   data,
		})
	}
	return state
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// repository is a StateRepository that can also drop a single state.
type repository interface {
	service.StateRepository
	Delete(ctx context.Context, tok domain.Token) error
}

// newRepo opens the named repository, closed when the benchmark ends.
func newRepo(b *testing.B, name string) repository {
	b.Helper()
	if name == "memory" {
		return memory.New()
	}

	cfg := storage.DefaultConfig(b.TempDir())
	cfg.Logger = discardLogger()
	cfg.Badger.CompactInterval = 0
	cfg.Badger.SyncWrites = false
	engine, err := storage.New(cfg)
	if err != nil {
		b.Fatalf("Failed to open storage: %v", err)
	}
	b.Cleanup(func() { engine.Close() })
	return engine
}

// runWithRepos runs benchFn once per repository.
func runWithRepos(b *testing.B, benchFn func(b *testing.B, svc *service.StateService, repo repository)) {
	for _, name := range []string{"memory", "badger"} {
		b.Run(name, func(b *testing.B) {
			repo := newRepo(b, name)
			benchFn(b, service.NewStateService(repo, service.DefaultStateConfig()), repo)
		})
	}
}

// prefill uploads count states of size bytes and returns their tokens.
func prefill(b *testing.B, svc *service.StateService, count, size int) []domain.Token {
	b.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	tokens := make([]domain.Token, count)
	for i := range tokens {
		tok, err := svc.UploadState(context.Background(), newState(rng, size))
		if err != nil {
			b.Fatalf("Prefill failed: %v", err)
		}
		tokens[i] = tok
	}
	return tokens
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

func sizeLabel(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
