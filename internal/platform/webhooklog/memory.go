package webhooklog

import (
	"context"
	"sync"
	"time"

	"github.com/velora-shop/api/internal/domain"
)

const defaultMemoryCapacity = 500

// MemoryStore keeps the most recent entries in process memory. It is the
// fallback sink when no Redis address is configured; entries are lost on
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	entries  []domain.WebhookLogEntry
	capacity int
	clock    func() time.Time
}

// MemoryOption customises MemoryStore behaviour.
type MemoryOption func(*MemoryStore)

// WithMemoryCapacity bounds how many entries are retained.
func WithMemoryCapacity(capacity int) MemoryOption {
	return func(s *MemoryStore) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithMemoryClock overrides the time source, primarily for testing.
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore constructs an in-memory webhook log store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		capacity: defaultMemoryCapacity,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Append records the entry, evicting the oldest entry once at capacity.
func (s *MemoryStore) Append(ctx context.Context, entry domain.WebhookLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry = normaliseEntry(entry, s.clock)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *MemoryStore) Recent(ctx context.Context, n int) ([]domain.WebhookLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := clampLimit(n)

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > len(s.entries) {
		limit = len(s.entries)
	}

	out := make([]domain.WebhookLogEntry, 0, limit)
	for i := len(s.entries) - 1; i >= len(s.entries)-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
