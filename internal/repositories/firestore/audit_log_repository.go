package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/velora-shop/api/internal/domain"
	pfirestore "github.com/velora-shop/api/internal/platform/firestore"
	"github.com/velora-shop/api/internal/repositories"
)

const auditLogsCollection = "auditLogs"

// AuditLogRepository persists immutable admin mutation records.
type AuditLogRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection, nil, nil)
	return &AuditLogRepository{provider: provider, base: base}, nil
}

// Append stores the entry. Entries are never updated or deleted.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return errors.New("audit log repository: entry id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainAuditEntry(entry)); err != nil {
		return pfirestore.WrapError("auditLogs.append", err)
	}
	return nil
}

// List returns a page of entries newest first, optionally filtered by actor,
// action, entity, and occurrence time.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	query := client.Collection(auditLogsCollection).Query
	if entityType := strings.TrimSpace(filter.EntityType); entityType != "" {
		query = query.Where("entityType", "==", entityType)
	}
	if entityID := strings.TrimSpace(filter.EntityID); entityID != "" {
		query = query.Where("entityId", "==", entityID)
	}
	if actorID := strings.TrimSpace(filter.ActorID); actorID != "" {
		query = query.Where("actorId", "==", actorID)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action", "==", action)
	}
	if filter.DateRange.From != nil {
		query = query.Where("occurredAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("occurredAt", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("occurredAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeAuditPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("auditLogs.list: invalid page token: %w", err)
		}
		query = query.StartAfter(decoded.OccurredAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.AuditLogEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, pfirestore.WrapError("auditLogs.list", err)
		}
		var doc auditLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("decode audit entry %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID))
	}

	nextCursor := ""
	if len(entries) > pageSize {
		entries = entries[:pageSize]
		last := entries[len(entries)-1]
		encoded, err := encodeAuditPageToken(auditPageToken{ID: last.ID, OccurredAt: last.OccurredAt})
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, pfirestore.WrapError("auditLogs.list", err)
		}
		nextCursor = encoded
	}

	return domain.CursorPage[domain.AuditLogEntry]{Items: entries, NextCursor: nextCursor}, nil
}

type auditLogDocument struct {
	ActorID    string         `firestore:"actorId"`
	Action     string         `firestore:"action"`
	EntityType string         `firestore:"entityType"`
	EntityID   string         `firestore:"entityId,omitempty"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
	OccurredAt time.Time      `firestore:"occurredAt"`
}

func (d auditLogDocument) toDomain(id string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:         id,
		ActorID:    d.ActorID,
		Action:     d.Action,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		Metadata:   d.Metadata,
		OccurredAt: d.OccurredAt,
	}
}

func fromDomainAuditEntry(entry domain.AuditLogEntry) auditLogDocument {
	return auditLogDocument{
		ActorID:    strings.TrimSpace(entry.ActorID),
		Action:     strings.TrimSpace(entry.Action),
		EntityType: strings.TrimSpace(entry.EntityType),
		EntityID:   strings.TrimSpace(entry.EntityID),
		Metadata:   entry.Metadata,
		OccurredAt: entry.OccurredAt.UTC(),
	}
}

type auditPageToken struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
}

func encodeAuditPageToken(token auditPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode audit page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeAuditPageToken(encoded string) (*auditPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audit page token: %w", err)
	}
	var token auditPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode audit page token json: %w", err)
	}
	return &token, nil
}

// Ensure interface compliance.
var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
