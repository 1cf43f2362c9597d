package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// GC removes expired states and returns how many were removed.
func (s *StateService) GC(ctx context.Context) (int, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return len(removed), wrapRepoError(err)
	}
	if len(removed) > 0 {
		s.obs.StatesExpired(len(removed))
	}
	return len(removed), nil
}

// DefaultReapInterval is used when the reaper is started without an interval.
const DefaultReapInterval = time.Minute

// Reaper runs StateService.GC on a fixed interval.
type Reaper struct {
	svc      *StateService
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReaper creates a reaper. It does nothing until Start is called.
func NewReaper(svc *StateService, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		svc:      svc,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background loop. Calling Start twice, or after Stop,
// has no effect.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	go r.loop()
}

// Stop terminates the loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.doneCh
	}
}

func (r *Reaper) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runOnce()
		}
	}
}

func (r *Reaper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	n, err := r.svc.GC(ctx)
	if err != nil {
		r.logger.Error("expired state cleanup failed", "error", err, "removed", n)
		return
	}
	if n > 0 {
		r.logger.Info("expired states removed", "count", n)
	}
}
