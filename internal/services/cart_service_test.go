package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var errRepoNotFound = &stubRepoError{notFound: true}

type stubCartRepository struct {
	getCart      func(ctx context.Context, userID string) (domain.Cart, error)
	upsertCart   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	replaceItems func(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	clear        func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getCart == nil {
		return domain.Cart{}, errRepoNotFound
	}
	return s.getCart(ctx, userID)
}

func (s *stubCartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertCart == nil {
		return cart, nil
	}
	return s.upsertCart(ctx, cart)
}

func (s *stubCartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if s.replaceItems == nil {
		return domain.Cart{ID: userID, UserID: userID, Items: items}, nil
	}
	return s.replaceItems(ctx, userID, items)
}

func (s *stubCartRepository) Clear(ctx context.Context, userID string) error {
	if s.clear == nil {
		return nil
	}
	return s.clear(ctx, userID)
}

type stubProductRepository struct {
	findByID     func(ctx context.Context, productID string) (domain.Product, error)
	findBySlug   func(ctx context.Context, slug string) (domain.Product, error)
	findByIDs    func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	list         func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	insert       func(ctx context.Context, product domain.Product) error
	update       func(ctx context.Context, product domain.Product) error
	deleteFn     func(ctx context.Context, productID string) error
	adjustStock  func(ctx context.Context, productID string, delta int64, now time.Time) (domain.Product, error)
	listLowStock func(ctx context.Context, threshold int64, limit int) ([]domain.Product, error)
}

func (s *stubProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, product)
}

func (s *stubProductRepository) Update(ctx context.Context, product domain.Product) error {
	if s.update == nil {
		return nil
	}
	return s.update(ctx, product)
}

func (s *stubProductRepository) Delete(ctx context.Context, productID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, productID)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByID == nil {
		return domain.Product{}, errRepoNotFound
	}
	return s.findByID(ctx, productID)
}

func (s *stubProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if s.findBySlug == nil {
		return domain.Product{}, errRepoNotFound
	}
	return s.findBySlug(ctx, slug)
}

func (s *stubProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findByIDs == nil {
		return map[string]domain.Product{}, nil
	}
	return s.findByIDs(ctx, productIDs)
}

func (s *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.list == nil {
		return domain.CursorPage[domain.Product]{}, nil
	}
	return s.list(ctx, filter)
}

func (s *stubProductRepository) AdjustStock(ctx context.Context, productID string, delta int64, now time.Time) (domain.Product, error) {
	if s.adjustStock == nil {
		return domain.Product{}, errRepoNotFound
	}
	return s.adjustStock(ctx, productID, delta, now)
}

func (s *stubProductRepository) ListLowStock(ctx context.Context, threshold int64, limit int) ([]domain.Product, error) {
	if s.listLowStock == nil {
		return nil, nil
	}
	return s.listLowStock(ctx, threshold, limit)
}

func newTestCartService(t *testing.T, carts repositories.CartRepository, products repositories.ProductRepository) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts:           carts,
		Products:        products,
		Clock:           func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		DefaultCurrency: "INR",
		IDGenerator:     func() string { return "item-test" },
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func TestAddItemCreatesCartLazily(t *testing.T) {
	ctx := context.Background()

	var upserted *domain.Cart
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, errRepoNotFound
		},
		upsertCart: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			upserted = &cart
			return cart, nil
		},
	}
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{ID: "prod-1", Name: "Linen Shirt", Price: 2499, Currency: "INR", Stock: 10, IsActive: true}, nil
		},
	}

	view, err := newTestCartService(t, carts, products).AddItem(ctx, AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	if upserted == nil {
		t.Fatalf("expected cart document to be created")
	}
	if len(view.Cart.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(view.Cart.Items))
	}
	if view.Cart.Items[0].UnitPrice != 2499 {
		t.Fatalf("expected unit price stamped from product, got %d", view.Cart.Items[0].UnitPrice)
	}
	if view.Totals.Subtotal != 4998 || view.Totals.ItemCount != 2 {
		t.Fatalf("unexpected totals: %+v", view.Totals)
	}
}

func TestAddItemMergesExistingLine(t *testing.T) {
	ctx := context.Background()

	existing := domain.Cart{
		ID:     "user-1",
		UserID: "user-1",
		Items: []domain.CartItem{
			{ID: "line-1", ProductID: "prod-1", Name: "Linen Shirt", UnitPrice: 2000, Quantity: 2},
		},
		Currency: "INR",
	}

	var replaced []domain.CartItem
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) { return existing, nil },
		replaceItems: func(_ context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
			replaced = items
			cart := existing
			cart.Items = items
			return cart, nil
		},
	}
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{ID: "prod-1", Name: "Linen Shirt", Price: 2499, Currency: "INR", Stock: 10, IsActive: true}, nil
		},
	}

	view, err := newTestCartService(t, carts, products).AddItem(ctx, AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	if len(replaced) != 1 {
		t.Fatalf("expected merge into one line, got %d lines", len(replaced))
	}
	if replaced[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", replaced[0].Quantity)
	}
	if replaced[0].UnitPrice != 2499 {
		t.Fatalf("expected unit price re-stamped to 2499, got %d", replaced[0].UnitPrice)
	}
	if view.Totals.Subtotal != 5*2499 {
		t.Fatalf("expected subtotal recomputed from items, got %d", view.Totals.Subtotal)
	}
}

func TestAddItemMergedQuantityCappedByStock(t *testing.T) {
	ctx := context.Background()

	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{
				ID:     "user-1",
				UserID: "user-1",
				Items: []domain.CartItem{
					{ID: "line-1", ProductID: "prod-1", UnitPrice: 2000, Quantity: 4},
				},
			}, nil
		},
		replaceItems: func(context.Context, string, []domain.CartItem) (domain.Cart, error) {
			t.Fatalf("unexpected write on capped add")
			return domain.Cart{}, nil
		},
	}
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{ID: "prod-1", Price: 2000, Stock: 5, IsActive: true}, nil
		},
	}

	_, err := newTestCartService(t, carts, products).AddItem(ctx, AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  2,
	})

	var stockErr *StockLimitError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockLimitError, got %v", err)
	}
	if stockErr.Available != 5 {
		t.Fatalf("expected available 5, got %d", stockErr.Available)
	}
}

func TestUpdateItemQuantityBeyondStock(t *testing.T) {
	ctx := context.Background()

	writes := 0
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{
				ID:     "user-1",
				UserID: "user-1",
				Items: []domain.CartItem{
					{ID: "line-1", ProductID: "prod-1", UnitPrice: 2000, Quantity: 2},
				},
			}, nil
		},
		replaceItems: func(_ context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
			writes++
			return domain.Cart{ID: userID, UserID: userID, Items: items}, nil
		},
	}
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{ID: "prod-1", Price: 2000, Stock: 5, IsActive: true}, nil
		},
	}

	svc := newTestCartService(t, carts, products)

	_, err := svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: 6})
	var stockErr *StockLimitError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockLimitError, got %v", err)
	}
	if got := stockErr.Error(); got != "Only 5 items available in stock" {
		t.Fatalf("unexpected message: %q", got)
	}
	if writes != 0 {
		t.Fatalf("expected no persisted write, got %d", writes)
	}

	view, err := svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ItemID: "line-1", Quantity: 5})
	if err != nil {
		t.Fatalf("update within stock: %v", err)
	}
	if view.Cart.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", view.Cart.Items[0].Quantity)
	}
}

func TestRemoveItemUnknownLine(t *testing.T) {
	ctx := context.Background()
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{ID: "user-1", UserID: "user-1", Items: []domain.CartItem{{ID: "line-1", ProductID: "prod-1", Quantity: 1}}}, nil
		},
	}
	svc := newTestCartService(t, carts, &stubProductRepository{})

	if _, err := svc.RemoveItem(ctx, RemoveCartItemCommand{UserID: "user-1", ItemID: "line-404"}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestClearCartToleratesMissingCart(t *testing.T) {
	carts := &stubCartRepository{
		clear: func(context.Context, string) error { return errRepoNotFound },
	}
	svc := newTestCartService(t, carts, &stubProductRepository{})
	if err := svc.ClearCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected clear of missing cart to succeed, got %v", err)
	}
}

func TestValidateCart(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart is invalid", func(t *testing.T) {
		carts := &stubCartRepository{
			getCart: func(context.Context, string) (domain.Cart, error) { return domain.Cart{}, errRepoNotFound },
		}
		result, err := newTestCartService(t, carts, &stubProductRepository{}).ValidateCart(ctx, "user-1")
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if result.IsValid {
			t.Fatalf("expected empty cart to be invalid")
		}
	})

	t.Run("inactive and overstocked lines are reported", func(t *testing.T) {
		carts := &stubCartRepository{
			getCart: func(context.Context, string) (domain.Cart, error) {
				return domain.Cart{
					ID:     "user-1",
					UserID: "user-1",
					Items: []domain.CartItem{
						{ID: "line-1", ProductID: "prod-1", Name: "Linen Shirt", Quantity: 2},
						{ID: "line-2", ProductID: "prod-2", Name: "Denim Jacket", Quantity: 9},
					},
				}, nil
			},
		}
		products := &stubProductRepository{
			findByIDs: func(context.Context, []string) (map[string]domain.Product, error) {
				return map[string]domain.Product{
					"prod-1": {ID: "prod-1", Name: "Linen Shirt", Stock: 5, IsActive: false},
					"prod-2": {ID: "prod-2", Name: "Denim Jacket", Stock: 3, IsActive: true},
				}, nil
			},
		}

		result, err := newTestCartService(t, carts, products).ValidateCart(ctx, "user-1")
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if result.IsValid {
			t.Fatalf("expected invalid result")
		}
		if len(result.UnavailableItems) != 1 || result.UnavailableItems[0].ProductID != "prod-1" {
			t.Fatalf("unexpected unavailable items: %+v", result.UnavailableItems)
		}
		if len(result.InsufficientStockItems) != 1 || result.InsufficientStockItems[0].Available != 3 {
			t.Fatalf("unexpected insufficient stock items: %+v", result.InsufficientStockItems)
		}
	})

	t.Run("lookup failure folds into report", func(t *testing.T) {
		carts := &stubCartRepository{
			getCart: func(context.Context, string) (domain.Cart, error) {
				return domain.Cart{ID: "user-1", UserID: "user-1", Items: []domain.CartItem{{ID: "line-1", ProductID: "prod-1", Quantity: 1}}}, nil
			},
		}
		products := &stubProductRepository{
			findByIDs: func(context.Context, []string) (map[string]domain.Product, error) {
				return nil, &stubRepoError{unavailable: true}
			},
		}

		result, err := newTestCartService(t, carts, products).ValidateCart(ctx, "user-1")
		if err != nil {
			t.Fatalf("expected folded report, got error %v", err)
		}
		if result.IsValid || len(result.Errors) == 0 {
			t.Fatalf("expected invalid report with generic error, got %+v", result)
		}
	})
}
