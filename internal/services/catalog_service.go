package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/platform/textutil"
	"github.com/velora-shop/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid catalog parameters.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product or category does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a slug collision or concurrent modification.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates catalog dependencies are currently unavailable.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// catalogSanitizer strips markup from admin-entered free text before storage.
var catalogSanitizer = bluemonday.StrictPolicy()

// CatalogServiceDeps wires the repositories backing catalog operations.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Audit       auditRecorder
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	audit      auditRecorder
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
	newID      func() string
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		audit:      deps.Audit,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		newID:  idGen,
	}, nil
}

// ListProducts serves the public listing with category, search, and price filters.
func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[Product], error) {
	if s == nil || s.products == nil {
		return domain.CursorPage[Product]{}, ErrCatalogUnavailable
	}
	if query.MinPrice != nil && query.MaxPrice != nil && *query.MinPrice > *query.MaxPrice {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: min price above max price", ErrCatalogInvalidInput)
	}

	filter := repositories.ProductListFilter{
		OnlyActive: query.OnlyActive,
		MinPrice:   query.MinPrice,
		MaxPrice:   query.MaxPrice,
		Pagination: query.Pagination,
	}
	if categoryID := strings.TrimSpace(query.CategoryID); categoryID != "" {
		filter.CategoryID = &categoryID
	}
	// The keyword index stores single tokens, so a multi-word query matches
	// on its first token.
	if normalized := textutil.NormalizeSearchTerm(query.Search); normalized != "" {
		filter.Search = strings.Fields(normalized)[0]
	}

	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateCatalogError(err)
	}
	return page, nil
}

// GetProduct resolves by document id first, then by slug.
func (s *catalogService) GetProduct(ctx context.Context, idOrSlug string) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return Product{}, ErrCatalogInvalidInput
	}

	product, err := s.products.FindByID(ctx, key)
	if err == nil {
		return product, nil
	}
	if !isRepoNotFound(err) {
		return Product{}, s.translateCatalogError(err)
	}

	product, err = s.products.FindBySlug(ctx, key)
	if err != nil {
		return Product{}, s.translateCatalogError(err)
	}
	return product, nil
}

// ListCategories returns navigation categories in display order.
func (s *catalogService) ListCategories(ctx context.Context, includeInactive bool) ([]Category, error) {
	if s == nil || s.categories == nil {
		return nil, ErrCatalogUnavailable
	}
	categories, err := s.categories.List(ctx, !includeInactive)
	if err != nil {
		return nil, s.translateCatalogError(err)
	}
	return categories, nil
}

// GetCategory resolves a category by slug.
func (s *catalogService) GetCategory(ctx context.Context, slug string) (Category, error) {
	if s == nil || s.categories == nil {
		return Category{}, ErrCatalogUnavailable
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Category{}, ErrCatalogInvalidInput
	}
	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		return Category{}, s.translateCatalogError(err)
	}
	return category, nil
}

// CreateProduct stores a new product after slug uniqueness and category checks.
func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}

	name := strings.TrimSpace(derefString(cmd.Name))
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price == nil || *cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}

	slug := strings.TrimSpace(derefString(cmd.Slug))
	if slug == "" {
		slug = textutil.Slugify(name)
	}
	if slug == "" {
		return Product{}, fmt.Errorf("%w: slug could not be derived", ErrCatalogInvalidInput)
	}
	if err := s.ensureProductSlugFree(ctx, slug, ""); err != nil {
		return Product{}, err
	}

	categoryID := strings.TrimSpace(derefString(cmd.CategoryID))
	if categoryID != "" {
		if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
			if isRepoNotFound(err) {
				return Product{}, fmt.Errorf("%w: category not found", ErrCatalogInvalidInput)
			}
			return Product{}, s.translateCatalogError(err)
		}
	}

	now := s.now()
	product := domain.Product{
		ID:          s.newID(),
		Slug:        slug,
		Name:        name,
		Description: catalogSanitizer.Sanitize(strings.TrimSpace(derefString(cmd.Description))),
		Price:       *cmd.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(derefString(cmd.Currency))),
		IsActive:    true,
		CategoryID:  categoryID,
		ImageURL:    strings.TrimSpace(derefString(cmd.ImageURL)),
		Tags:        cmd.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if product.Currency == "" {
		product.Currency = "INR"
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must be non-negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.IsActive != nil {
		product.IsActive = *cmd.IsActive
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateCatalogError(err)
	}

	s.recordAudit(ctx, cmd.ActorID, "product.create", "product", product.ID, map[string]any{"slug": slug})
	return product, nil
}

// UpdateProduct applies a partial update. Stock moves either absolutely or by
// delta through the guarded adjustment.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, ErrCatalogInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateCatalogError(err)
	}

	if cmd.Slug != nil {
		slug := strings.TrimSpace(*cmd.Slug)
		if slug == "" {
			return Product{}, fmt.Errorf("%w: slug cannot be empty", ErrCatalogInvalidInput)
		}
		if !strings.EqualFold(slug, product.Slug) {
			if err := s.ensureProductSlugFree(ctx, slug, product.ID); err != nil {
				return Product{}, err
			}
			product.Slug = slug
		}
	}
	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name cannot be empty", ErrCatalogInvalidInput)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = catalogSanitizer.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Currency != nil {
		product.Currency = strings.ToUpper(strings.TrimSpace(*cmd.Currency))
	}
	if cmd.IsActive != nil {
		product.IsActive = *cmd.IsActive
	}
	if cmd.CategoryID != nil {
		categoryID := strings.TrimSpace(*cmd.CategoryID)
		if categoryID != "" {
			if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
				if isRepoNotFound(err) {
					return Product{}, fmt.Errorf("%w: category not found", ErrCatalogInvalidInput)
				}
				return Product{}, s.translateCatalogError(err)
			}
		}
		product.CategoryID = categoryID
	}
	if cmd.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*cmd.ImageURL)
	}
	if cmd.Tags != nil {
		product.Tags = cmd.Tags
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must be non-negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}

	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateCatalogError(err)
	}

	if cmd.StockDelta != nil && *cmd.StockDelta != 0 {
		adjusted, err := s.products.AdjustStock(ctx, product.ID, *cmd.StockDelta, s.now())
		if err != nil {
			return Product{}, s.translateCatalogError(err)
		}
		product = adjusted
	}

	s.recordAudit(ctx, cmd.ActorID, "product.update", "product", product.ID, nil)
	return product, nil
}

// DeleteProduct removes a product permanently.
func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteEntityCommand) error {
	if s == nil || s.products == nil {
		return ErrCatalogUnavailable
	}
	productID := strings.TrimSpace(cmd.ID)
	if productID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.translateCatalogError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "product.delete", "product", productID, nil)
	return nil
}

// CreateCategory stores a new navigation category.
func (s *catalogService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s == nil || s.categories == nil {
		return Category{}, ErrCatalogUnavailable
	}

	name := strings.TrimSpace(derefString(cmd.Name))
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	slug := strings.TrimSpace(derefString(cmd.Slug))
	if slug == "" {
		slug = textutil.Slugify(name)
	}
	if slug == "" {
		return Category{}, fmt.Errorf("%w: slug could not be derived", ErrCatalogInvalidInput)
	}
	if _, err := s.categories.FindBySlug(ctx, slug); err == nil {
		return Category{}, fmt.Errorf("%w: slug %q already exists", ErrCatalogConflict, slug)
	} else if !isRepoNotFound(err) {
		return Category{}, s.translateCatalogError(err)
	}

	now := s.now()
	category := domain.Category{
		ID:          s.newID(),
		Slug:        slug,
		Name:        name,
		Description: catalogSanitizer.Sanitize(strings.TrimSpace(derefString(cmd.Description))),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cmd.Position != nil {
		category.Position = *cmd.Position
	}
	if cmd.IsActive != nil {
		category.IsActive = *cmd.IsActive
	}

	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, s.translateCatalogError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "category.create", "category", category.ID, map[string]any{"slug": slug})
	return category, nil
}

// UpdateCategory applies a partial update to a category.
func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s == nil || s.categories == nil {
		return Category{}, ErrCatalogUnavailable
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, ErrCatalogInvalidInput
	}

	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.translateCatalogError(err)
	}

	if cmd.Slug != nil {
		slug := strings.TrimSpace(*cmd.Slug)
		if slug == "" {
			return Category{}, fmt.Errorf("%w: slug cannot be empty", ErrCatalogInvalidInput)
		}
		if !strings.EqualFold(slug, category.Slug) {
			if _, err := s.categories.FindBySlug(ctx, slug); err == nil {
				return Category{}, fmt.Errorf("%w: slug %q already exists", ErrCatalogConflict, slug)
			} else if !isRepoNotFound(err) {
				return Category{}, s.translateCatalogError(err)
			}
			category.Slug = slug
		}
	}
	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Category{}, fmt.Errorf("%w: name cannot be empty", ErrCatalogInvalidInput)
		}
		category.Name = name
	}
	if cmd.Description != nil {
		category.Description = catalogSanitizer.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.Position != nil {
		category.Position = *cmd.Position
	}
	if cmd.IsActive != nil {
		category.IsActive = *cmd.IsActive
	}

	category.UpdatedAt = s.now()
	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.translateCatalogError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "category.update", "category", category.ID, nil)
	return category, nil
}

// DeleteCategory removes a category permanently.
func (s *catalogService) DeleteCategory(ctx context.Context, cmd DeleteEntityCommand) error {
	if s == nil || s.categories == nil {
		return ErrCatalogUnavailable
	}
	categoryID := strings.TrimSpace(cmd.ID)
	if categoryID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		return s.translateCatalogError(err)
	}
	s.recordAudit(ctx, cmd.ActorID, "category.delete", "category", categoryID, nil)
	return nil
}

func (s *catalogService) ensureProductSlugFree(ctx context.Context, slug, selfID string) error {
	existing, err := s.products.FindBySlug(ctx, slug)
	if err == nil {
		if existing.ID == selfID {
			return nil
		}
		return fmt.Errorf("%w: slug %q already exists", ErrCatalogConflict, slug)
	}
	if isRepoNotFound(err) {
		return nil
	}
	return s.translateCatalogError(err)
}

func (s *catalogService) recordAudit(ctx context.Context, actorID, action, entityType, entityID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		ActorID:    strings.TrimSpace(actorID),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	})
}

func (s *catalogService) translateCatalogError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsConflict():
			return ErrCatalogConflict
		}
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Code == repositories.StockErrorInsufficient {
			return fmt.Errorf("%w: stock cannot go negative", ErrCatalogInvalidInput)
		}
		return ErrCatalogNotFound
	}
	return ErrCatalogUnavailable
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
