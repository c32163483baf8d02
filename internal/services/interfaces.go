package services

import (
	"context"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Product              = domain.Product
	Category             = domain.Category
	Cart                 = domain.Cart
	CartItem             = domain.CartItem
	CartTotals           = domain.CartTotals
	CartValidationResult = domain.CartValidationResult
	Order                = domain.Order
	OrderItem            = domain.OrderItem
	OrderState           = domain.OrderState
	OrderAmounts         = domain.OrderAmounts
	PaymentGateway       = domain.PaymentGateway
	Address              = domain.Address
	Review               = domain.Review
	WishlistItem         = domain.WishlistItem
	UserProfile          = domain.UserProfile
	AuditLogEntry        = domain.AuditLogEntry
	SystemHealthReport   = domain.SystemHealthReport
)

// CartService manages the per-user cart and its checkout preconditions.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
	ValidateCart(ctx context.Context, userID string) (CartValidationResult, error)
}

// CheckoutService turns a validated cart into an order awaiting payment plus
// the gateway-side intent the storefront client completes.
type CheckoutService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (CheckoutIntent, error)
}

// SettlementService is the single settlement path shared by client confirms
// and both gateway webhooks. SettlePayment is idempotent: the first caller to
// move an order into its paid state wins, later callers get ErrAlreadySettled.
type SettlementService interface {
	SettlePayment(ctx context.Context, cmd SettlePaymentCommand) (Order, error)
	ConfirmClient(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	MarkPaymentFailed(ctx context.Context, cmd FailPaymentCommand) (Order, error)
}

// OrderService covers buyer-facing order reads, guest placement, cancellation,
// and the admin lifecycle surface.
type OrderService interface {
	PlaceGuestOrder(ctx context.Context, cmd PlaceGuestOrderCommand) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, query OrderReadQuery) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	AdminListOrders(ctx context.Context, query AdminOrderListQuery) (domain.CursorPage[Order], error)
	TransitionState(ctx context.Context, cmd OrderTransitionCommand) (Order, error)
	DashboardStats(ctx context.Context, query DashboardQuery) (DashboardStats, error)
}

// CatalogService serves the public product and category surfaces and the
// admin CRUD behind them.
type CatalogService interface {
	ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, idOrSlug string) (Product, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]Category, error)
	GetCategory(ctx context.Context, slug string) (Category, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteEntityCommand) error
	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, cmd DeleteEntityCommand) error
}

// UserService mirrors identity-provider accounts into profiles and manages
// address books plus the admin user surface.
type UserService interface {
	SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error)
	GetUser(ctx context.Context, userID string) (UserProfile, error)
	ListUsers(ctx context.Context, query UserListQuery) (domain.CursorPage[UserProfile], error)
	UpdateUser(ctx context.Context, cmd UpdateUserCommand) (UserProfile, error)
	DeleteUser(ctx context.Context, cmd DeleteUserCommand) error
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error
}

// ReviewService manages buyer product reviews.
type ReviewService interface {
	ListByProduct(ctx context.Context, query ReviewListQuery) (domain.CursorPage[Review], error)
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	Delete(ctx context.Context, cmd DeleteReviewCommand) error
}

// WishlistService manages the per-user saved-product list.
type WishlistService interface {
	List(ctx context.Context, userID string) ([]WishlistEntry, error)
	Add(ctx context.Context, userID, productID string) error
	Remove(ctx context.Context, userID, productID string) error
}

// ChatService answers shopping-assistant messages with storefront context.
type ChatService interface {
	Reply(ctx context.Context, cmd ChatCommand) (ChatReply, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, query AuditLogQuery) (domain.CursorPage[AuditLogEntry], error)
}

// CounterService issues monotonic sequences such as order numbers.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// UploadService issues signed Cloud Storage upload URLs for admin media.
type UploadService interface {
	IssueProductImageUpload(ctx context.Context, cmd ProductImageUploadCommand) (SignedUpload, error)
}

// SystemService aggregates dependency health for readiness reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher fans order lifecycle events out to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// OrderEventMessage is the payload published on order lifecycle transitions.
type OrderEventMessage struct {
	Event       string         `json:"event"`
	OrderID     string         `json:"orderId"`
	OrderNumber string         `json:"orderNumber"`
	Gateway     string         `json:"gateway"`
	UserID      string         `json:"userId,omitempty"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	State       string         `json:"state"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Command and DTO definitions ------------------------------------------------

// CartView pairs the persisted cart with totals recomputed from its items.
type CartView struct {
	Cart   Cart
	Totals CartTotals
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
}

type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int64
}

type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

type CreateIntentCommand struct {
	UserID         string
	Email          string
	Gateway        PaymentGateway
	AddressID      string
	Address        *Address
	BillingAddress *Address
	Notes          string
}

// CheckoutIntent carries the client-side parameters for completing payment.
type CheckoutIntent struct {
	OrderID      string
	OrderNumber  string
	Gateway      PaymentGateway
	IntentID     string
	ClientSecret string
	PublicKey    string
	Amount       int64
	Currency     string
}

type SettlePaymentCommand struct {
	OrderID    string
	GatewayRef string
	Source     string
}

type ConfirmPaymentCommand struct {
	UserID    string
	OrderID   string
	Gateway   PaymentGateway
	PaymentID string
	Signature string
}

type FailPaymentCommand struct {
	OrderID string
	Reason  string
	Source  string
}

type PlaceGuestOrderCommand struct {
	Email          string
	Items          []GuestOrderItem
	Address        Address
	BillingAddress *Address
	Notes          string
}

type GuestOrderItem struct {
	ProductID string
	Quantity  int64
}

type OrderListQuery struct {
	UserID     string
	Pagination Pagination
}

type OrderReadQuery struct {
	OrderID string
	UserID  string
	IsAdmin bool
}

type CancelOrderCommand struct {
	OrderID string
	UserID  string
	IsAdmin bool
	Reason  string
}

type AdminOrderListQuery struct {
	States     []OrderState
	UserID     string
	CreatedAt  domain.RangeQuery[time.Time]
	Pagination Pagination
}

type OrderTransitionCommand struct {
	OrderID string
	To      OrderState
	ActorID string
	Reason  string
}

type DashboardQuery struct {
	Since             *time.Time
	LowStockThreshold int64
}

// DashboardStats aggregates the admin overview panels.
type DashboardStats struct {
	CountsByState map[OrderState]int64
	Revenue       int64
	Currency      string
	LowStock      []Product
	GeneratedAt   time.Time
}

type ProductListQuery struct {
	CategoryID string
	Search     string
	OnlyActive bool
	MinPrice   *int64
	MaxPrice   *int64
	Pagination Pagination
}

type UpsertProductCommand struct {
	ProductID   string
	ActorID     string
	Slug        *string
	Name        *string
	Description *string
	Price       *int64
	Currency    *string
	StockDelta  *int64
	Stock       *int64
	IsActive    *bool
	CategoryID  *string
	ImageURL    *string
	Tags        []string
}

type UpsertCategoryCommand struct {
	CategoryID  string
	ActorID     string
	Slug        *string
	Name        *string
	Description *string
	Position    *int
	IsActive    *bool
}

type DeleteEntityCommand struct {
	ID      string
	ActorID string
}

type SyncProfileCommand struct {
	UserID      string
	Email       string
	DisplayName string
	Roles       []string
}

type UserListQuery struct {
	Role       string
	Disabled   *bool
	Pagination Pagination
}

type UpdateUserCommand struct {
	UserID   string
	ActorID  string
	Roles    []string
	Disabled *bool
}

type DeleteUserCommand struct {
	UserID  string
	ActorID string
}

type UpsertAddressCommand struct {
	UserID    string
	AddressID *string
	Address   Address
	IsDefault bool
}

type DeleteAddressCommand struct {
	UserID    string
	AddressID string
}

type ReviewListQuery struct {
	ProductID  string
	Pagination Pagination
}

type CreateReviewCommand struct {
	ProductID string
	UserID    string
	Rating    int
	Title     string
	Comment   string
}

type DeleteReviewCommand struct {
	ReviewID string
	ActorID  string
	IsAdmin  bool
}

// WishlistEntry pairs the saved marker with the product when it still exists.
type WishlistEntry struct {
	Item    WishlistItem
	Product *Product
}

type ChatCommand struct {
	UserID  string
	Message string
	History []ChatTurn
}

type ChatTurn struct {
	Role    string
	Content string
}

type ChatReply struct {
	Reply string
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

type AuditLogQuery struct {
	EntityType string
	EntityID   string
	ActorID    string
	Action     string
	OccurredAt domain.RangeQuery[time.Time]
	Pagination Pagination
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, value int64) string
}

// CounterValue reports the raw and formatted counter result.
type CounterValue struct {
	Value     int64
	Formatted string
}

type ProductImageUploadCommand struct {
	ActorID     string
	ProductID   string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// SignedUpload describes an issued signed upload URL.
type SignedUpload struct {
	URL        string
	Method     string
	Headers    map[string]string
	ObjectPath string
	ExpiresAt  time.Time
}
