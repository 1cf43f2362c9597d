package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/domain"
	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/pkg/cmap"
	"github.com/yndnr/retrostate-go/pkg/token"
)

// DefaultMaxTokenAttempts bounds token draws per reservation.
const DefaultMaxTokenAttempts = 16

// record is a published state. It is immutable once stored in a slot.
type record struct {
	token     domain.Token
	state     *domain.SystemState
	index     *regionIndex
	createdAt int64
	expiresAt int64
	size      int64
}

func (r *record) expired(now int64) bool {
	return r.expiresAt > 0 && r.expiresAt <= now
}

// slot holds a reserved token. rec stays nil until the state is published.
type slot struct {
	rec atomic.Pointer[record]
}

func (s *slot) published() bool {
	return s.rec.Load() != nil
}

// Store provides in-memory state storage.
type Store struct {
	entries *cmap.Map[domain.Token, *slot]

	tokens      token.Source
	maxAttempts int
	now         func() time.Time

	count atomic.Int64
	bytes atomic.Int64
}

// Option configures the Store.
type Option func(*Store)

// WithTokenSource sets the source tokens are drawn from.
func WithTokenSource(src token.Source) Option {
	return func(s *Store) {
		s.tokens = src
	}
}

// WithMaxTokenAttempts sets how many colliding tokens are tolerated per reservation.
func WithMaxTokenAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: cmap.New[domain.Token, *slot](cmap.DefaultShards, func(t domain.Token) uint64 {
			return cmap.HashInt64(int64(t))
		}),
		tokens:      token.NewSource(),
		maxAttempts: DefaultMaxTokenAttempts,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ service.StateRepository = (*Store)(nil)

// ============================================================================
// Write Path
// ============================================================================

// Reserve allocates a token that no live or reserved entry uses.
// The token stays invisible to readers until Publish or Release.
func (s *Store) Reserve(ctx context.Context) (domain.Token, error) {
	for i := 0; i < s.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v, err := s.tokens.Next()
		if err != nil {
			return 0, domain.ErrInternalServer.WithDetails("token generation failed").WithCause(err)
		}
		tok := domain.Token(v)
		if !tok.Valid() {
			continue
		}
		if s.entries.StoreIfAbsent(tok, &slot{}) {
			return tok, nil
		}
	}
	return 0, domain.ErrTokenConflict.WithDetailsf("no free token after %d attempts", s.maxAttempts)
}

// Publish makes state visible under a reserved token.
func (s *Store) Publish(_ context.Context, tok domain.Token, state *domain.SystemState, createdAt, expiresAt int64) error {
	rec, err := s.newRecord(tok, state, createdAt, expiresAt)
	if err != nil {
		return err
	}

	sl, ok := s.entries.Load(tok)
	if !ok {
		return domain.ErrUnknownToken.WithDetails("token was not reserved")
	}
	if !sl.rec.CompareAndSwap(nil, rec) {
		return domain.ErrTokenConflict.WithDetails("token already published")
	}

	s.count.Add(1)
	s.bytes.Add(rec.size)
	return nil
}

// Release drops a reservation that was never published.
func (s *Store) Release(tok domain.Token) {
	s.entries.DeleteFunc(tok, func(sl *slot) bool {
		return !sl.published()
	})
}

// Create validates state and stores a deep copy under a fresh token.
// Validation happens before a token is drawn, so a rejected state
// consumes nothing.
func (s *Store) Create(ctx context.Context, state *domain.SystemState, expiresAt int64) (domain.Token, error) {
	if state == nil {
		return 0, domain.ErrMissingArgument.WithDetails("state is required")
	}
	if err := state.Validate(); err != nil {
		return 0, err
	}

	tok, err := s.Reserve(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.Publish(ctx, tok, state, s.now().UnixMilli(), expiresAt); err != nil {
		s.Release(tok)
		return 0, err
	}
	return tok, nil
}

// Restore inserts a state under a known token, as during recovery.
func (s *Store) Restore(_ context.Context, tok domain.Token, state *domain.SystemState, createdAt, expiresAt int64) error {
	if !tok.Valid() {
		return domain.ErrMalformedToken.WithDetailsf("token %d is not positive", tok)
	}
	rec, err := s.newRecord(tok, state, createdAt, expiresAt)
	if err != nil {
		return err
	}

	sl := &slot{}
	sl.rec.Store(rec)
	if !s.entries.StoreIfAbsent(tok, sl) {
		return domain.ErrTokenConflict.WithDetailsf("token %s already present", domain.MaskToken(tok))
	}

	s.count.Add(1)
	s.bytes.Add(rec.size)
	return nil
}

func (s *Store) newRecord(tok domain.Token, state *domain.SystemState, createdAt, expiresAt int64) (*record, error) {
	if state == nil {
		return nil, domain.ErrMissingArgument.WithDetails("state is required")
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	c := state.Clone()
	return &record{
		token:     tok,
		state:     c,
		index:     newRegionIndex(c.MemoryRegions),
		createdAt: createdAt,
		expiresAt: expiresAt,
		size:      c.DataSize(),
	}, nil
}

// ============================================================================
// Read Path
// ============================================================================

func (s *Store) lookup(tok domain.Token) (*record, error) {
	sl, ok := s.entries.Load(tok)
	if !ok {
		return nil, domain.ErrUnknownToken
	}
	rec := sl.rec.Load()
	if rec == nil || rec.expired(s.now().UnixMilli()) {
		return nil, domain.ErrUnknownToken
	}
	return rec, nil
}

// Get retrieves a deep copy of the state stored under tok.
func (s *Store) Get(_ context.Context, tok domain.Token, excludeMemoryData bool) (*domain.SystemState, error) {
	rec, err := s.lookup(tok)
	if err != nil {
		return nil, err
	}
	if excludeMemoryData {
		return rec.state.WithoutMemoryData(), nil
	}
	return rec.state.Clone(), nil
}

// ReadRange reconstructs length bytes of the address space starting at start.
func (s *Store) ReadRange(_ context.Context, tok domain.Token, start, length int64) ([]byte, error) {
	if err := domain.CheckRange(start, length); err != nil {
		return nil, err
	}
	rec, err := s.lookup(tok)
	if err != nil {
		return nil, err
	}
	return rec.index.readRange(rec.state.MemoryRegions, start, length), nil
}

// EntryInfo describes a stored state without its payload.
type EntryInfo struct {
	Token     domain.Token
	CreatedAt int64
	ExpiresAt int64
	Regions   int
	Bytes     int64
}

// Info returns metadata about the state stored under tok.
func (s *Store) Info(_ context.Context, tok domain.Token) (EntryInfo, error) {
	rec, err := s.lookup(tok)
	if err != nil {
		return EntryInfo{}, err
	}
	return rec.info(), nil
}

func (r *record) info() EntryInfo {
	return EntryInfo{
		Token:     r.token,
		CreatedAt: r.createdAt,
		ExpiresAt: r.expiresAt,
		Regions:   len(r.state.MemoryRegions),
		Bytes:     r.size,
	}
}

// Scan calls fn for every published, unexpired state. fn returns false to stop.
func (s *Store) Scan(fn func(EntryInfo) bool) {
	now := s.now().UnixMilli()
	for _, sl := range s.entries.All() {
		rec := sl.rec.Load()
		if rec == nil || rec.expired(now) {
			continue
		}
		if !fn(rec.info()) {
			return
		}
	}
}

// ============================================================================
// Removal
// ============================================================================

// Delete removes a published state.
func (s *Store) Delete(_ context.Context, tok domain.Token) error {
	var removed *record
	ok := s.entries.DeleteFunc(tok, func(sl *slot) bool {
		removed = sl.rec.Load()
		return removed != nil
	})
	if !ok {
		return domain.ErrUnknownToken
	}
	s.count.Add(-1)
	s.bytes.Add(-removed.size)
	return nil
}

// DeleteExpired removes every state that has expired at now and returns
// the removed tokens.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) ([]domain.Token, error) {
	cutoff := now.UnixMilli()

	var candidates []domain.Token
	for tok, sl := range s.entries.All() {
		if rec := sl.rec.Load(); rec != nil && rec.expired(cutoff) {
			candidates = append(candidates, tok)
		}
	}

	var removed []domain.Token
	for _, tok := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		var rec *record
		ok := s.entries.DeleteFunc(tok, func(sl *slot) bool {
			rec = sl.rec.Load()
			return rec != nil && rec.expired(cutoff)
		})
		if !ok {
			continue
		}
		s.count.Add(-1)
		s.bytes.Add(-rec.size)
		removed = append(removed, tok)
	}
	return removed, nil
}

// ============================================================================
// Statistics
// ============================================================================

// Count returns the number of published states, including expired states
// that have not been removed yet.
func (s *Store) Count() int64 {
	return s.count.Load()
}

// Bytes returns the total data bytes of published states.
func (s *Store) Bytes() int64 {
	return s.bytes.Load()
}

// Stats implements service.StateRepository.
func (s *Store) Stats() service.RepositoryStats {
	return service.RepositoryStats{
		States: s.Count(),
		Bytes:  s.Bytes(),
	}
}
