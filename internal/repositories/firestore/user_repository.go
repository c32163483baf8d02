package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/velora-shop/api/internal/domain"
	pfirestore "github.com/velora-shop/api/internal/platform/firestore"
	"github.com/velora-shop/api/internal/repositories"
)

const usersCollection = "users"

// UserRepository persists shop-side user profiles keyed by the identity
// provider UID.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil)
	return &UserRepository{provider: provider, base: base}, nil
}

// Upsert writes the profile, preserving the original creation time.
func (r *UserRepository) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(profile.ID)
	if id == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	now := time.Now().UTC()
	doc := fromDomainUser(profile, now)

	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.UserProfile{}, pfirestore.WrapError("users.upsert", err)
	}
	return doc.toDomain(id), nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile := doc.Data.toDomain(doc.ID)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile, nil
}

// List returns a page of profiles ordered by creation time, newest first.
func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.UserProfile]{}, errors.New("user repository not initialised")
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
		return domain.CursorPage[domain.UserProfile]{}, err
	}

	query := client.Collection(usersCollection).Query
	if filter.Role != nil && strings.TrimSpace(*filter.Role) != "" {
		query = query.Where("roles", "array-contains", strings.ToLower(strings.TrimSpace(*filter.Role)))
	}
	if filter.Disabled != nil {
		query = query.Where("disabled", "==", *filter.Disabled)
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeUserPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.UserProfile]{}, fmt.Errorf("users.list: invalid page token: %w", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var profiles []domain.UserProfile
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.UserProfile]{}, pfirestore.WrapError("users.list", err)
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.UserProfile]{}, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
		}
		profiles = append(profiles, doc.toDomain(snap.Ref.ID))
	}

	nextCursor := ""
	if len(profiles) > pageSize {
		profiles = profiles[:pageSize]
		last := profiles[len(profiles)-1]
		encoded, err := encodeUserPageToken(userPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.UserProfile]{}, pfirestore.WrapError("users.list", err)
		}
		nextCursor = encoded
	}

	return domain.CursorPage[domain.UserProfile]{Items: profiles, NextCursor: nextCursor}, nil
}

// Delete removes the profile document.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return errors.New("user repository: user id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("users.delete", err)
	}
	return nil
}

type userDocument struct {
	UID         string    `firestore:"uid"`
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName,omitempty"`
	Roles       []string  `firestore:"roles"`
	Disabled    bool      `firestore:"disabled"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d userDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:          id,
		Email:       strings.TrimSpace(d.Email),
		DisplayName: strings.TrimSpace(d.DisplayName),
		Roles:       cloneStringSlice(d.Roles),
		Disabled:    d.Disabled,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func fromDomainUser(profile domain.UserProfile, now time.Time) userDocument {
	doc := userDocument{
		UID:         strings.TrimSpace(profile.ID),
		Email:       strings.ToLower(strings.TrimSpace(profile.Email)),
		DisplayName: strings.TrimSpace(profile.DisplayName),
		Roles:       normaliseRoles(profile.Roles),
		Disabled:    profile.Disabled,
		CreatedAt:   profile.CreatedAt.UTC(),
		UpdatedAt:   now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.Roles == nil {
		doc.Roles = []string{}
	}
	return doc
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func normaliseRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	uniq := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		trimmed := strings.ToLower(strings.TrimSpace(role))
		if trimmed == "" {
			continue
		}
		uniq[trimmed] = struct{}{}
	}
	if len(uniq) == 0 {
		return nil
	}
	normalised := make([]string, 0, len(uniq))
	for role := range uniq {
		normalised = append(normalised, role)
	}
	sort.Strings(normalised)
	return normalised
}

type userPageToken struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodeUserPageToken(token userPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode user page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeUserPageToken(encoded string) (*userPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode user page token: %w", err)
	}
	var token userPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode user page token json: %w", err)
	}
	return &token, nil
}

// Ensure interface compliance.
var _ repositories.UserRepository = (*UserRepository)(nil)
