package webhooklog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/velora-shop/api/internal/domain"
)

const (
	defaultRedisKey      = "webhooks:log"
	defaultRedisCapacity = 500
)

// RedisStore persists webhook log entries as a capped Redis list so receipts
// survive process restarts and are shared across instances.
type RedisStore struct {
	client   redis.Cmdable
	key      string
	capacity int64
	clock    func() time.Time
}

// RedisOption customises RedisStore behaviour.
type RedisOption func(*RedisStore)

// WithRedisKey overrides the list key.
func WithRedisKey(key string) RedisOption {
	return func(s *RedisStore) {
		key = strings.TrimSpace(key)
		if key != "" {
			s.key = key
		}
	}
}

// WithRedisCapacity bounds how many entries the list retains.
func WithRedisCapacity(capacity int) RedisOption {
	return func(s *RedisStore) {
		if capacity > 0 {
			s.capacity = int64(capacity)
		}
	}
}

// WithRedisClock overrides the time source, primarily for testing.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRedisStore constructs a Redis backed webhook log store.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("webhooklog: redis client is required")
	}
	store := &RedisStore{
		client:   client,
		key:      defaultRedisKey,
		capacity: defaultRedisCapacity,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

type redisEntry struct {
	ID         string    `json:"id"`
	Gateway    string    `json:"gateway"`
	EventType  string    `json:"eventType"`
	Reference  string    `json:"reference,omitempty"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Append pushes the entry onto the head of the list and trims to capacity.
func (s *RedisStore) Append(ctx context.Context, entry domain.WebhookLogEntry) error {
	if s == nil || s.client == nil {
		return ErrStoreUnavailable
	}

	entry = normaliseEntry(entry, s.clock)

	payload, err := json.Marshal(redisEntry{
		ID:         entry.ID,
		Gateway:    string(entry.Gateway),
		EventType:  entry.EventType,
		Reference:  entry.Reference,
		Status:     entry.Status,
		ReceivedAt: entry.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("webhooklog: marshal entry: %w", err)
	}

	if err := s.client.LPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("webhooklog: append: %w", err)
	}
	if err := s.client.LTrim(ctx, s.key, 0, s.capacity-1).Err(); err != nil {
		return fmt.Errorf("webhooklog: trim: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *RedisStore) Recent(ctx context.Context, n int) ([]domain.WebhookLogEntry, error) {
	if s == nil || s.client == nil {
		return nil, ErrStoreUnavailable
	}

	limit := int64(clampLimit(n))

	raw, err := s.client.LRange(ctx, s.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooklog: recent: %w", err)
	}

	out := make([]domain.WebhookLogEntry, 0, len(raw))
	for _, item := range raw {
		var decoded redisEntry
		if err := json.Unmarshal([]byte(item), &decoded); err != nil {
			continue
		}
		out = append(out, domain.WebhookLogEntry{
			ID:         decoded.ID,
			Gateway:    domain.PaymentGateway(decoded.Gateway),
			EventType:  decoded.EventType,
			Reference:  decoded.Reference,
			Status:     decoded.Status,
			ReceivedAt: decoded.ReceivedAt,
		})
	}
	return out, nil
}
