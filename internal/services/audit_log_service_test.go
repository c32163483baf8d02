package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

type stubAuditLogRepository struct {
	entries []domain.AuditLogEntry
	append  func(ctx context.Context, entry domain.AuditLogEntry) error
	list    func(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

func (s *stubAuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if s.append != nil {
		return s.append(ctx, entry)
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if s.list == nil {
		return domain.CursorPage[domain.AuditLogEntry]{Items: s.entries}, nil
	}
	return s.list(ctx, filter)
}

type recordingAuditLogger struct {
	warnings []string
}

func (l *recordingAuditLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func TestAuditRecordFillsDefaults(t *testing.T) {
	repo := &stubAuditLogRepository{}
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository:  repo,
		Clock:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "audit-test" },
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		ActorID:    "  admin-1 ",
		Action:     "product.update",
		EntityType: "product",
		EntityID:   "prod-1",
		Metadata:   map[string]any{" slug ": " linen-shirt ", "": "dropped"},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID != "audit-test" {
		t.Fatalf("unexpected id %q", entry.ID)
	}
	if entry.ActorID != "admin-1" {
		t.Fatalf("expected trimmed actor, got %q", entry.ActorID)
	}
	if !entry.OccurredAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected clock-stamped time, got %v", entry.OccurredAt)
	}
	if got := entry.Metadata["slug"]; got != "linen-shirt" {
		t.Fatalf("expected trimmed metadata, got %v", entry.Metadata)
	}
	if _, ok := entry.Metadata[""]; ok {
		t.Fatalf("expected empty metadata key dropped")
	}
}

func TestAuditRecordSwallowsRepositoryFailure(t *testing.T) {
	logger := &recordingAuditLogger{}
	repo := &stubAuditLogRepository{
		append: func(context.Context, domain.AuditLogEntry) error {
			return errors.New("firestore down")
		},
	}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo, Logger: logger})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{Action: "order.transition"})
	if len(logger.warnings) != 1 {
		t.Fatalf("expected append failure to be logged, got %v", logger.warnings)
	}
}

func TestAuditListPassesFilter(t *testing.T) {
	var captured repositories.AuditLogFilter
	repo := &stubAuditLogRepository{
		list: func(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
			captured = filter
			return domain.CursorPage[domain.AuditLogEntry]{}, nil
		},
	}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	if _, err := svc.List(context.Background(), AuditLogQuery{
		EntityType: " order ",
		EntityID:   "order-1",
		Action:     "order.transition",
	}); err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if captured.EntityType != "order" || captured.EntityID != "order-1" || captured.Action != "order.transition" {
		t.Fatalf("unexpected filter %+v", captured)
	}
}
