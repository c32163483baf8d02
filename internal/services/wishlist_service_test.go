package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
)

func newTestWishlistService(t *testing.T, wishlists *stubWishlistRepository, products *stubProductRepository) WishlistService {
	t.Helper()
	if wishlists == nil {
		wishlists = &stubWishlistRepository{}
	}
	if products == nil {
		products = &stubProductRepository{}
	}
	svc, err := NewWishlistService(WishlistServiceDeps{
		Wishlists: wishlists,
		Products:  products,
		Clock:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new wishlist service: %v", err)
	}
	return svc
}

func TestWishlistListHydratesProducts(t *testing.T) {
	wishlists := &stubWishlistRepository{
		list: func(context.Context, string) ([]domain.WishlistItem, error) {
			return []domain.WishlistItem{
				{ProductID: "prod-1"},
				{ProductID: "prod-gone"},
			}, nil
		},
	}
	products := &stubProductRepository{
		findByIDs: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{
				"prod-1": {ID: "prod-1", Name: "Linen Shirt"},
			}, nil
		},
	}

	svc := newTestWishlistService(t, wishlists, products)
	entries, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list wishlist: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Product == nil || entries[0].Product.Name != "Linen Shirt" {
		t.Fatalf("expected hydrated product, got %+v", entries[0])
	}
	if entries[1].Product != nil {
		t.Fatalf("expected nil product for deleted listing, got %+v", entries[1].Product)
	}
}

func TestWishlistAddRequiresExistingProduct(t *testing.T) {
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, errRepoNotFound
		},
	}

	svc := newTestWishlistService(t, nil, products)
	if err := svc.Add(context.Background(), "user-1", "missing"); !errors.Is(err, ErrWishlistInvalidInput) {
		t.Fatalf("expected ErrWishlistInvalidInput, got %v", err)
	}
}

func TestWishlistAddStampsTime(t *testing.T) {
	var added time.Time
	wishlists := &stubWishlistRepository{
		put: func(_ context.Context, _ string, _ string, addedAt time.Time) error {
			added = addedAt
			return nil
		},
	}
	products := &stubProductRepository{
		findByID: func(_ context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, IsActive: true}, nil
		},
	}

	svc := newTestWishlistService(t, wishlists, products)
	if err := svc.Add(context.Background(), "user-1", "prod-1"); err != nil {
		t.Fatalf("add to wishlist: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !added.Equal(want) {
		t.Fatalf("expected added at %v, got %v", want, added)
	}
}

func TestWishlistRemoveToleratesAbsent(t *testing.T) {
	wishlists := &stubWishlistRepository{
		deleteFn: func(context.Context, string, string) error {
			return errRepoNotFound
		},
	}

	svc := newTestWishlistService(t, wishlists, nil)
	if err := svc.Remove(context.Background(), "user-1", "prod-1"); err != nil {
		t.Fatalf("expected remove of absent item to succeed, got %v", err)
	}
}
