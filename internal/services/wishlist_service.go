package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/velora-shop/api/internal/repositories"
)

var (
	// ErrWishlistInvalidInput indicates the caller supplied invalid wishlist parameters.
	ErrWishlistInvalidInput = errors.New("wishlist: invalid input")
	// ErrWishlistUnavailable indicates wishlist dependencies are currently unavailable.
	ErrWishlistUnavailable = errors.New("wishlist: unavailable")
)

// WishlistServiceDeps bundles collaborators for the wishlist service.
type WishlistServiceDeps struct {
	Wishlists repositories.WishlistRepository
	Products  repositories.ProductRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type wishlistService struct {
	wishlists repositories.WishlistRepository
	products  repositories.ProductRepository
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewWishlistService constructs a WishlistService.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Wishlists == nil {
		return nil, errors.New("wishlist service: wishlist repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("wishlist service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &wishlistService{
		wishlists: deps.Wishlists,
		products:  deps.Products,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// List returns saved items hydrated with their current product snapshot.
// Products deleted since saving show up with a nil Product so clients can
// render a placeholder.
func (s *wishlistService) List(ctx context.Context, userID string) ([]WishlistEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrWishlistInvalidInput)
	}

	items, err := s.wishlists.List(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, nil
		}
		return nil, ErrWishlistUnavailable
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		s.logger(ctx, "wishlist.hydrate_failed", map[string]any{"userId": userID, "error": err.Error()})
		found = nil
	}

	entries := make([]WishlistEntry, 0, len(items))
	for _, item := range items {
		entry := WishlistEntry{Item: item}
		if product, ok := found[item.ProductID]; ok {
			copied := product
			entry.Product = &copied
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Add saves a product. Re-adding an already saved product is a no-op.
func (s *wishlistService) Add(ctx context.Context, userID string, productID string) error {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return fmt.Errorf("%w: user id and product id are required", ErrWishlistInvalidInput)
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: product not found", ErrWishlistInvalidInput)
		}
		return ErrWishlistUnavailable
	}

	if err := s.wishlists.Put(ctx, userID, productID, s.now()); err != nil {
		return ErrWishlistUnavailable
	}
	return nil
}

// Remove drops a product from the wishlist. Removing an absent product is a
// no-op.
func (s *wishlistService) Remove(ctx context.Context, userID string, productID string) error {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return fmt.Errorf("%w: user id and product id are required", ErrWishlistInvalidInput)
	}
	if err := s.wishlists.Delete(ctx, userID, productID); err != nil && !isRepoNotFound(err) {
		return ErrWishlistUnavailable
	}
	return nil
}
