package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/velora-shop/api/internal/platform/firestore"
	"github.com/velora-shop/api/internal/repositories"
)

// Registry bundles all Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	products   *ProductRepository
	categories *CategoryRepository
	carts      *CartRepository
	orders     *OrderRepository
	users      *UserRepository
	addresses  *AddressRepository
	reviews    *ReviewRepository
	wishlists  *WishlistRepository
	auditLogs  *AuditLogRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

// RegistryOption customises registry construction.
type RegistryOption func(*Registry)

// WithHealthRepository attaches a dependency health repository. Health checks
// reach beyond Firestore, so the probe set is assembled by the caller.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		r.health = health
	}
}

// NewRegistry constructs every Firestore repository on top of one provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	reg := &Registry{provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}

	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.categories, err = NewCategoryRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.reviews, err = NewReviewRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.wishlists, err = NewWishlistRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return reg, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Users() repositories.UserRepository          { return r.users }
func (r *Registry) Addresses() repositories.AddressRepository   { return r.addresses }
func (r *Registry) Reviews() repositories.ReviewRepository      { return r.reviews }
func (r *Registry) Wishlists() repositories.WishlistRepository  { return r.wishlists }
func (r *Registry) AuditLogs() repositories.AuditLogRepository  { return r.auditLogs }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

// Ensure interface compliance.
var _ repositories.Registry = (*Registry)(nil)
