package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/velora-shop/api/internal/domain"
	pfirestore "github.com/velora-shop/api/internal/platform/firestore"
	"github.com/velora-shop/api/internal/repositories"
)

const categoriesCollection = "categories"

// CategoryRepository persists storefront categories in Firestore.
type CategoryRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[categoryDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil)
	return &CategoryRepository{provider: provider, base: base}, nil
}

// Insert stores a new category.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	id := strings.TrimSpace(category.ID)
	if id == "" {
		return errors.New("category repository: category id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainCategory(category)); err != nil {
		return pfirestore.WrapError("categories.insert", err)
	}
	return nil
}

// Update overwrites the stored category.
func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	id := strings.TrimSpace(category.ID)
	if id == "" {
		return errors.New("category repository: category id is required")
	}
	if _, err := r.base.Set(ctx, id, fromDomainCategory(category)); err != nil {
		return pfirestore.WrapError("categories.update", err)
	}
	return nil
}

// Delete removes the category document.
func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return errors.New("category repository: category id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("categories.delete", err)
	}
	return nil
}

// FindByID loads a category by document id.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindBySlug resolves a category through its unique slug.
func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (domain.Category, error) {
	if r == nil || r.provider == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	trimmed := strings.ToLower(strings.TrimSpace(slug))
	if trimmed == "" {
		return domain.Category{}, errors.New("category repository: slug is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Category{}, err
	}

	iter := client.Collection(categoriesCollection).Where("slug", "==", trimmed).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Category{}, pfirestore.WrapError("categories.findBySlug", status.Error(codes.NotFound, fmt.Sprintf("category slug %s not found", trimmed)))
	}
	if err != nil {
		return domain.Category{}, pfirestore.WrapError("categories.findBySlug", err)
	}
	var doc categoryDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Category{}, fmt.Errorf("decode category %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns categories ordered by navigation position.
func (r *CategoryRepository) List(ctx context.Context, onlyActive bool) ([]domain.Category, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("category repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	query := client.Collection(categoriesCollection).Query
	if onlyActive {
		query = query.Where("isActive", "==", true)
	}
	query = query.OrderBy("position", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var categories []domain.Category
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("categories.list", err)
		}
		var doc categoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode category %s: %w", snap.Ref.ID, err)
		}
		categories = append(categories, doc.toDomain(snap.Ref.ID))
	}
	return categories, nil
}

type categoryDocument struct {
	Slug        string    `firestore:"slug"`
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Position    int       `firestore:"position"`
	IsActive    bool      `firestore:"isActive"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:          id,
		Slug:        d.Slug,
		Name:        d.Name,
		Description: d.Description,
		Position:    d.Position,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func fromDomainCategory(category domain.Category) categoryDocument {
	return categoryDocument{
		Slug:        strings.ToLower(strings.TrimSpace(category.Slug)),
		Name:        strings.TrimSpace(category.Name),
		Description: strings.TrimSpace(category.Description),
		Position:    category.Position,
		IsActive:    category.IsActive,
		CreatedAt:   category.CreatedAt.UTC(),
		UpdatedAt:   category.UpdatedAt.UTC(),
	}
}

// Ensure interface compliance.
var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
