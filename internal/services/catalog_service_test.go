package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

type stubCategoryRepository struct {
	insert     func(ctx context.Context, category domain.Category) error
	update     func(ctx context.Context, category domain.Category) error
	deleteFn   func(ctx context.Context, categoryID string) error
	findByID   func(ctx context.Context, categoryID string) (domain.Category, error)
	findBySlug func(ctx context.Context, slug string) (domain.Category, error)
	list       func(ctx context.Context, onlyActive bool) ([]domain.Category, error)
}

func (s *stubCategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, category)
}

func (s *stubCategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if s.update == nil {
		return nil
	}
	return s.update(ctx, category)
}

func (s *stubCategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, categoryID)
}

func (s *stubCategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if s.findByID == nil {
		return domain.Category{ID: categoryID}, nil
	}
	return s.findByID(ctx, categoryID)
}

func (s *stubCategoryRepository) FindBySlug(ctx context.Context, slug string) (domain.Category, error) {
	if s.findBySlug == nil {
		return domain.Category{}, errRepoNotFound
	}
	return s.findBySlug(ctx, slug)
}

func (s *stubCategoryRepository) List(ctx context.Context, onlyActive bool) ([]domain.Category, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, onlyActive)
}

func newTestCatalogService(t *testing.T, products repositories.ProductRepository, categories repositories.CategoryRepository) CatalogService {
	t.Helper()
	if products == nil {
		products = &stubProductRepository{}
	}
	if categories == nil {
		categories = &stubCategoryRepository{}
	}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    products,
		Categories:  categories,
		Clock:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "cat-test" },
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc
}

func TestListProductsNormalizesSearch(t *testing.T) {
	var captured repositories.ProductListFilter
	products := &stubProductRepository{
		list: func(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
			captured = filter
			return domain.CursorPage[domain.Product]{}, nil
		},
	}

	svc := newTestCatalogService(t, products, nil)
	if _, err := svc.ListProducts(context.Background(), ProductListQuery{
		Search:     "  Crêpe Sarée ",
		OnlyActive: true,
	}); err != nil {
		t.Fatalf("list products: %v", err)
	}
	if captured.Search != "crepe" {
		t.Fatalf("expected first normalized token, got %q", captured.Search)
	}
	if !captured.OnlyActive {
		t.Fatalf("expected active-only filter to pass through")
	}
}

func TestListProductsRejectsInvertedPriceRange(t *testing.T) {
	svc := newTestCatalogService(t, nil, nil)
	minPrice := int64(5000)
	maxPrice := int64(1000)
	_, err := svc.ListProducts(context.Background(), ProductListQuery{MinPrice: &minPrice, MaxPrice: &maxPrice})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestGetProductFallsBackToSlug(t *testing.T) {
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, errRepoNotFound
		},
		findBySlug: func(_ context.Context, slug string) (domain.Product, error) {
			if slug != "linen-shirt" {
				return domain.Product{}, errRepoNotFound
			}
			return domain.Product{ID: "prod-1", Slug: slug}, nil
		},
	}

	svc := newTestCatalogService(t, products, nil)
	product, err := svc.GetProduct(context.Background(), "linen-shirt")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.ID != "prod-1" {
		t.Fatalf("unexpected product %+v", product)
	}

	if _, err := svc.GetProduct(context.Background(), "missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestCreateProductDerivesSlugAndSanitizes(t *testing.T) {
	var inserted *domain.Product
	products := &stubProductRepository{
		findBySlug: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, errRepoNotFound
		},
		insert: func(_ context.Context, product domain.Product) error {
			inserted = &product
			return nil
		},
	}

	svc := newTestCatalogService(t, products, nil)
	name := "Crêpe Sarée"
	price := int64(2499)
	description := `Hand woven <script>alert("x")</script> drape`
	product, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		ActorID:     "admin-1",
		Name:        &name,
		Price:       &price,
		Description: &description,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if inserted == nil {
		t.Fatalf("expected insert to be called")
	}
	if product.Slug != "crepe-saree" {
		t.Fatalf("unexpected slug %q", product.Slug)
	}
	if product.Currency != "INR" {
		t.Fatalf("expected default currency INR, got %q", product.Currency)
	}
	if product.Description == description {
		t.Fatalf("expected sanitized description, got %q", product.Description)
	}
	if !product.IsActive {
		t.Fatalf("expected new product to default active")
	}
}

func TestCreateProductRejectsDuplicateSlug(t *testing.T) {
	products := &stubProductRepository{
		findBySlug: func(context.Context, string) (domain.Product, error) {
			return domain.Product{ID: "existing"}, nil
		},
	}

	svc := newTestCatalogService(t, products, nil)
	name := "Linen Shirt"
	price := int64(2499)
	_, err := svc.CreateProduct(context.Background(), UpsertProductCommand{Name: &name, Price: &price})
	if !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected ErrCatalogConflict, got %v", err)
	}
}

func TestCreateProductRequiresExistingCategory(t *testing.T) {
	products := &stubProductRepository{
		findBySlug: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, errRepoNotFound
		},
	}
	categories := &stubCategoryRepository{
		findByID: func(context.Context, string) (domain.Category, error) {
			return domain.Category{}, errRepoNotFound
		},
	}

	svc := newTestCatalogService(t, products, categories)
	name := "Linen Shirt"
	price := int64(2499)
	categoryID := "missing-cat"
	_, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name:       &name,
		Price:      &price,
		CategoryID: &categoryID,
	})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestUpdateProductAppliesStockDelta(t *testing.T) {
	adjusted := false
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{ID: "prod-1", Slug: "linen-shirt", Name: "Linen Shirt", Price: 2499, Stock: 4, IsActive: true}, nil
		},
		adjustStock: func(_ context.Context, productID string, delta int64, _ time.Time) (domain.Product, error) {
			adjusted = true
			if delta != 6 {
				t.Fatalf("unexpected delta %d", delta)
			}
			return domain.Product{ID: productID, Stock: 10}, nil
		},
	}

	svc := newTestCatalogService(t, products, nil)
	delta := int64(6)
	product, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ProductID:  "prod-1",
		ActorID:    "admin-1",
		StockDelta: &delta,
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if !adjusted {
		t.Fatalf("expected AdjustStock to be called")
	}
	if product.Stock != 10 {
		t.Fatalf("unexpected stock %d", product.Stock)
	}
}

func TestUpdateProductStockDeltaBelowZero(t *testing.T) {
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{ID: "prod-1", Stock: 2, Price: 2499}, nil
		},
		adjustStock: func(context.Context, string, int64, time.Time) (domain.Product, error) {
			return domain.Product{}, &repositories.StockError{
				Op:        "adjust",
				Code:      repositories.StockErrorInsufficient,
				ProductID: "prod-1",
				Requested: 5,
				Available: 2,
			}
		},
	}

	svc := newTestCatalogService(t, products, nil)
	delta := int64(-5)
	_, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{ProductID: "prod-1", StockDelta: &delta})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestCategoryCRUDRecordsAudit(t *testing.T) {
	ctx := context.Background()
	audit := &stubAuditRecorder{}
	categories := &stubCategoryRepository{
		findBySlug: func(context.Context, string) (domain.Category, error) {
			return domain.Category{}, errRepoNotFound
		},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    &stubProductRepository{},
		Categories:  categories,
		Audit:       audit,
		Clock:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "cat-test" },
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}

	name := "Sarees"
	position := 2
	category, err := svc.CreateCategory(ctx, UpsertCategoryCommand{ActorID: "admin-1", Name: &name, Position: &position})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if category.Slug != "sarees" || category.Position != 2 {
		t.Fatalf("unexpected category %+v", category)
	}
	if err := svc.DeleteCategory(ctx, DeleteEntityCommand{ID: category.ID, ActorID: "admin-1"}); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	if len(audit.records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(audit.records))
	}
	if audit.records[0].Action != "category.create" || audit.records[1].Action != "category.delete" {
		t.Fatalf("unexpected audit actions: %+v", audit.records)
	}
}
