package service

import (
	"context"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
)

// StateRepository defines the storage interface for system states.
type StateRepository interface {
	// Create validates and stores a state under a freshly allocated token.
	// It is atomic: on error no token is visible.
	Create(ctx context.Context, state *domain.SystemState, expiresAt int64) (domain.Token, error)

	// Get returns a deep copy of the stored state. With excludeMemoryData
	// every region keeps its start and length but carries no data.
	Get(ctx context.Context, token domain.Token, excludeMemoryData bool) (*domain.SystemState, error)

	// ReadRange reconstructs exactly length bytes starting at start.
	ReadRange(ctx context.Context, token domain.Token, start, length int64) ([]byte, error)

	// DeleteExpired removes every state whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) ([]domain.Token, error)

	// Stats reports the number of stored states and their payload bytes.
	Stats() RepositoryStats
}

// RepositoryStats is a point-in-time view of a StateRepository.
type RepositoryStats struct {
	States int64 `json:"states"`
	Bytes  int64 `json:"bytes"`
}

// Observer receives service events. metric.Registry implements it.
type Observer interface {
	StateUploaded(bytes int64)
	StateRejected(reason string)
	StateDownloaded(excludeMemoryData bool)
	RangeRead(length int64)
	StatesExpired(n int)
}

type noopObserver struct{}

func (noopObserver) StateUploaded(int64) {}
func (noopObserver) StateRejected(string) {}
func (noopObserver) StateDownloaded(bool) {}
func (noopObserver) RangeRead(int64) {}
func (noopObserver) StatesExpired(int) {}

// Rejection reasons reported to the Observer.
const (
	RejectInvalidRegion = "invalid_region"
	RejectTooLarge      = "too_large"
	RejectStorage       = "storage"
)

// StateConfig holds the limits applied by StateService.
type StateConfig struct {
	// TTL is how long an uploaded state lives. Zero keeps states forever.
	TTL time.Duration

	// MaxStateBytes caps the total data bytes of one upload. Zero disables the cap.
	MaxStateBytes int64

	// MaxRangeLength caps the length of one ranged read. Zero disables the cap.
	MaxRangeLength int64
}

// DefaultStateConfig returns the limits used when none are configured.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		TTL:            0,
		MaxStateBytes:  64 << 20,
		MaxRangeLength: 16 << 20,
	}
}

// StateService implements the state upload and download operations.
type StateService struct {
	repo StateRepository
	cfg  StateConfig
	obs  Observer
	now  func() time.Time
}

// Option configures the StateService.
type Option func(*StateService)

// WithObserver sets the event observer.
func WithObserver(obs Observer) Option {
	return func(s *StateService) {
		if obs != nil {
			s.obs = obs
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *StateService) {
		s.now = now
	}
}

// NewStateService creates a new StateService.
func NewStateService(repo StateRepository, cfg StateConfig, opts ...Option) *StateService {
	s := &StateService{
		repo: repo,
		cfg:  cfg,
		obs:  noopObserver{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Upload
// ============================================================================

// UploadState stores a validated state and returns its token.
//
// A rejected upload allocates no token and leaves existing states untouched.
func (s *StateService) UploadState(ctx context.Context, state *domain.SystemState) (domain.Token, error) {
	if state == nil {
		return 0, domain.ErrMissingArgument.WithDetails("state is required")
	}

	// 1. Validate regions
	if err := state.Validate(); err != nil {
		s.obs.StateRejected(RejectInvalidRegion)
		return 0, err
	}

	// 2. Enforce size limit
	size := state.DataSize()
	if s.cfg.MaxStateBytes > 0 && size > s.cfg.MaxStateBytes {
		s.obs.StateRejected(RejectTooLarge)
		return 0, domain.ErrStateTooLarge.WithDetailsf("%d data bytes exceed limit of %d", size, s.cfg.MaxStateBytes)
	}

	// 3. Store
	var expiresAt int64
	if s.cfg.TTL > 0 {
		expiresAt = s.now().Add(s.cfg.TTL).UnixMilli()
	}
	token, err := s.repo.Create(ctx, state, expiresAt)
	if err != nil {
		s.obs.StateRejected(RejectStorage)
		return 0, wrapRepoError(err)
	}

	s.obs.StateUploaded(size)
	return token, nil
}

// ============================================================================
// Download
// ============================================================================

// DownloadState returns the state stored under token.
func (s *StateService) DownloadState(ctx context.Context, token domain.Token, excludeMemoryData bool) (*domain.SystemState, error) {
	if !token.Valid() {
		return nil, domain.ErrUnknownToken
	}

	state, err := s.repo.Get(ctx, token, excludeMemoryData)
	if err != nil {
		return nil, wrapRepoError(err)
	}

	s.obs.StateDownloaded(excludeMemoryData)
	return state, nil
}

// DownloadRange returns exactly length bytes of the state's address space
// starting at start. Unmapped addresses read as zero and regions submitted
// later win where regions overlap.
//
// Arguments are checked before the token is looked up.
func (s *StateService) DownloadRange(ctx context.Context, token domain.Token, start, length int64) ([]byte, error) {
	if err := domain.CheckRange(start, length); err != nil {
		return nil, err
	}
	if s.cfg.MaxRangeLength > 0 && length > s.cfg.MaxRangeLength {
		return nil, domain.ErrInvalidArgument.WithDetailsf("length %d exceeds limit of %d", length, s.cfg.MaxRangeLength)
	}
	if !token.Valid() {
		return nil, domain.ErrUnknownToken
	}

	data, err := s.repo.ReadRange(ctx, token, start, length)
	if err != nil {
		return nil, wrapRepoError(err)
	}

	s.obs.RangeRead(length)
	return data, nil
}

// Stats returns repository statistics.
func (s *StateService) Stats(_ context.Context) RepositoryStats {
	return s.repo.Stats()
}

// Config returns the limits the service applies.
func (s *StateService) Config() StateConfig {
	return s.cfg
}

func wrapRepoError(err error) error {
	if domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorageError.WithCause(err)
}
