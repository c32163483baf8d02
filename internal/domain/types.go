package domain

import "time"

// Product is a sellable catalog entry. Price is stored in the smallest
// currency unit (e.g. cents, paise).
type Product struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Price       int64
	Currency    string
	Stock       int64
	IsActive    bool
	CategoryID  string
	ImageURL    string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category groups products for storefront navigation.
type Category struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Position    int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Cart is the per-user collection of pending line items. A cart is created
// lazily on first add and cleared when its order settles.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem is a single cart line. UnitPrice is the product price captured at
// add or last update time.
type CartItem struct {
	ID        string
	ProductID string
	Name      string
	ImageURL  string
	UnitPrice int64
	Quantity  int64
}

// CartTotals are derived from the persisted cart items, never cached.
type CartTotals struct {
	Subtotal  int64
	ItemCount int64
	Currency  string
}

// CartValidationIssue describes one line item blocking checkout.
type CartValidationIssue struct {
	ProductID string
	Name      string
	Requested int64
	Available int64
	Reason    string
}

// CartValidationResult is the checkout precondition report.
type CartValidationResult struct {
	IsValid                bool
	Errors                 []string
	UnavailableItems       []CartValidationIssue
	InsufficientStockItems []CartValidationIssue
}

// OrderState is the single joint lifecycle of an order. Payment progress and
// fulfilment progress share one enumeration so contradictory combinations
// cannot be stored.
type OrderState string

const (
	OrderStateCreated         OrderState = "created"
	OrderStateAwaitingPayment OrderState = "awaiting_payment"
	OrderStatePaid            OrderState = "paid"
	OrderStateFulfilling      OrderState = "fulfilling"
	OrderStateShipped         OrderState = "shipped"
	OrderStateDelivered       OrderState = "delivered"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateRefunded        OrderState = "refunded"
)

// PaymentGateway identifies the external processor backing an order.
type PaymentGateway string

const (
	GatewayStripe         PaymentGateway = "stripe"
	GatewayRazorpay       PaymentGateway = "razorpay"
	GatewayCashOnDelivery PaymentGateway = "cod"
)

// Address is a shipping or billing snapshot. Guest orders reference an
// address with no owning user.
type Address struct {
	ID         string
	UserID     string
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderItem is a frozen copy of a cart line taken at checkout time.
type OrderItem struct {
	ProductID string
	Name      string
	ImageURL  string
	UnitPrice int64
	Quantity  int64
}

// OrderAmounts are the computed totals frozen on the order snapshot.
type OrderAmounts struct {
	Subtotal int64
	Shipping int64
	Tax      int64
	Total    int64
	Currency string
}

// OrderPayment tracks the gateway handle attached to an order. GatewayRef is
// the processor-side identifier recorded when the payment settles.
type OrderPayment struct {
	Gateway    PaymentGateway
	IntentID   string
	GatewayRef string
	SettledAt  *time.Time
}

// Order is the checkout snapshot: items, address, and computed totals at the
// moment the buyer committed. UserID is empty for guest orders.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Email           string
	Items           []OrderItem
	ShippingAddress Address
	BillingAddress  *Address
	Amounts         OrderAmounts
	State           OrderState
	Payment         OrderPayment
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Review is a buyer rating on a product. One review per user per product.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	Rating    int
	Title     string
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WishlistItem marks a product saved by a user.
type WishlistItem struct {
	ProductID string
	AddedAt   time.Time
}

// UserProfile mirrors the identity-provider account plus shop-side fields.
type UserProfile struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []string
	Disabled    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WebhookLogEntry records one gateway callback receipt, accepted or not.
type WebhookLogEntry struct {
	ID         string
	Gateway    PaymentGateway
	EventType  string
	Reference  string
	Status     string
	ReceivedAt time.Time
}

// AuditLogEntry records an admin mutation for traceability.
type AuditLogEntry struct {
	ID         string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items      []T
	NextCursor string
}

// Pagination carries cursor paging inputs through repository filters.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery bounds a filter between optional endpoints.
type RangeQuery[T any] struct {
	From *T
	To   *T
}

// HealthStatus enumerates dependency probe outcomes.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck captures a single dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks for readiness reporting.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
