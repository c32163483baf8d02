package webhooklog

import (
	"context"
	"errors"
	"time"

	"github.com/velora-shop/api/internal/domain"
)

// DefaultRecentLimit bounds Recent calls that pass a non-positive n.
const DefaultRecentLimit = 20

// ErrStoreUnavailable indicates the backing sink rejected the operation.
var ErrStoreUnavailable = errors.New("webhooklog: store unavailable")

// Store is the durable append-only sink for gateway callback receipts.
// Entries are returned newest first.
type Store interface {
	Append(ctx context.Context, entry domain.WebhookLogEntry) error
	Recent(ctx context.Context, n int) ([]domain.WebhookLogEntry, error)
}

func normaliseEntry(entry domain.WebhookLogEntry, now func() time.Time) domain.WebhookLogEntry {
	if entry.ReceivedAt.IsZero() && now != nil {
		entry.ReceivedAt = now().UTC()
	}
	return entry
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultRecentLimit
	}
	return n
}
