package repositories

import (
	"context"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Categories() CategoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Users() UserRepository
	Addresses() AddressRepository
	Reviews() ReviewRepository
	Wishlists() WishlistRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalog products including their stock counters.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// AdjustStock applies a relative stock change guarded by "stock+delta >= 0".
	AdjustStock(ctx context.Context, productID string, delta int64, now time.Time) (domain.Product, error)
	ListLowStock(ctx context.Context, threshold int64, limit int) ([]domain.Product, error)
}

// CategoryRepository persists storefront navigation categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (domain.Category, error)
	List(ctx context.Context, onlyActive bool) ([]domain.Category, error)
}

// CartRepository owns cart header + items persistence. The cart document id is
// the owning user id, one cart per user.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// OrderSettlement asks the repository to mark an order paid. The state
// transition and every per-item stock decrement happen inside one transaction;
// a stock shortfall or disallowed transition aborts the whole settlement.
type OrderSettlement struct {
	OrderID    string
	GatewayRef string
	Now        time.Time
}

// OrderStateChange carries a guarded lifecycle move without stock effects.
type OrderStateChange struct {
	OrderID string
	To      domain.OrderState
	Now     time.Time
}

// OrderCancellation cancels an order, optionally restoring stock already
// decremented at placement time.
type OrderCancellation struct {
	OrderID      string
	RestoreStock bool
	Now          time.Time
}

// OrderRepository persists order snapshots and owns the transactional
// settlement path.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// InsertPlaced stores the order and conditionally decrements stock for
	// every item in the same transaction.
	InsertPlaced(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIntentID(ctx context.Context, gateway domain.PaymentGateway, intentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Settle(ctx context.Context, req OrderSettlement) (domain.Order, error)
	UpdateState(ctx context.Context, req OrderStateChange) (domain.Order, error)
	Cancel(ctx context.Context, req OrderCancellation) (domain.Order, error)
	Stats(ctx context.Context, since time.Time) (OrderStats, error)
}

// OrderStats aggregates dashboard figures over orders.
type OrderStats struct {
	CountsByState map[domain.OrderState]int64
	Revenue       int64
	Currency      string
}

// UserRepository stores shop-side user profiles keyed by identity-provider UID.
type UserRepository interface {
	Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	List(ctx context.Context, filter UserListFilter) (domain.CursorPage[domain.UserProfile], error)
	Delete(ctx context.Context, userID string) error
}

// AddressRepository stores shipping addresses. Guest checkout inserts an
// address document with an empty owner.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
	InsertGuest(ctx context.Context, addr domain.Address) (domain.Address, error)
}

// ReviewRepository stores product reviews, one per user per product.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	FindByUserAndProduct(ctx context.Context, userID string, productID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	Delete(ctx context.Context, reviewID string) error
}

// WishlistRepository tracks saved products per user.
type WishlistRepository interface {
	List(ctx context.Context, userID string) ([]domain.WishlistItem, error)
	Put(ctx context.Context, userID string, productID string, addedAt time.Time) error
	Delete(ctx context.Context, userID string, productID string) error
	Clear(ctx context.Context, userID string) error
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	CategoryID *string
	OnlyActive bool
	Search     string
	MinPrice   *int64
	MaxPrice   *int64
	Pagination domain.Pagination
}

type OrderListFilter struct {
	UserID     string
	States     []domain.OrderState
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type UserListFilter struct {
	Role       *string
	Disabled   *bool
	Pagination domain.Pagination
}

type AuditLogFilter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
