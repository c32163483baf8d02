package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/payments"
	"github.com/velora-shop/api/internal/repositories"
)

const (
	defaultLowStockThreshold = int64(5)
	lowStockPanelSize        = 10
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid order parameters.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order service: unavailable")
	// ErrOrderInvalidTransition indicates the requested lifecycle move is not allowed.
	ErrOrderInvalidTransition = errors.New("order service: invalid transition")
	// ErrOrderRefundFailed indicates the gateway rejected the refund request.
	ErrOrderRefundFailed = errors.New("order service: refund failed")
)

// paymentRefunder is the slice of payments.Manager used for admin refunds.
type paymentRefunder interface {
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// auditRecorder is the slice of AuditLogService order mutations report into.
type auditRecorder interface {
	Record(ctx context.Context, record AuditLogRecord)
}

// OrderServiceDeps wires the dependencies of the order service.
type OrderServiceDeps struct {
	Orders                repositories.OrderRepository
	Products              repositories.ProductRepository
	Addresses             repositories.AddressRepository
	Counters              orderNumberSource
	Publisher             OrderEventPublisher
	Audit                 auditRecorder
	Payments              paymentRefunder
	Clock                 func() time.Time
	Logger                func(ctx context.Context, event string, fields map[string]any)
	IDGenerator           func() string
	ShippingFee           int64
	FreeShippingThreshold int64
	TaxRateBasisPoints    int64
	DefaultCurrency       string
}

type orderService struct {
	orders            repositories.OrderRepository
	products          repositories.ProductRepository
	addresses         repositories.AddressRepository
	counters          orderNumberSource
	publisher         OrderEventPublisher
	audit             auditRecorder
	payments          paymentRefunder
	now               func() time.Time
	logger            func(context.Context, string, map[string]any)
	newID             func() string
	shippingFee       int64
	freeShippingAbove int64
	taxBasisPoints    int64
	currency          string
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
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
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}
	shippingFee := deps.ShippingFee
	if shippingFee == 0 {
		shippingFee = defaultShippingFee
	}
	threshold := deps.FreeShippingThreshold
	if threshold <= 0 {
		threshold = defaultFreeShippingThreshold
	}
	taxBps := deps.TaxRateBasisPoints
	if taxBps == 0 {
		taxBps = defaultTaxRateBasisPoints
	}

	return &orderService{
		orders:    deps.Orders,
		products:  deps.Products,
		addresses: deps.Addresses,
		counters:  deps.Counters,
		publisher: deps.Publisher,
		audit:     deps.Audit,
		payments:  deps.Payments,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:            logger,
		newID:             idGen,
		shippingFee:       shippingFee,
		freeShippingAbove: threshold,
		taxBasisPoints:    taxBps,
		currency:          currency,
	}, nil
}

// PlaceGuestOrder creates a cash-on-delivery order without a signed-in user.
// Stock is decremented conditionally in the same transaction that stores the
// order, so a shortfall aborts placement.
func (s *orderService) PlaceGuestOrder(ctx context.Context, cmd PlaceGuestOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	email := strings.TrimSpace(cmd.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Order{}, fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if err := validateAddress(cmd.Address); err != nil {
		return Order{}, fmt.Errorf("%w: shipping address incomplete", ErrOrderInvalidInput)
	}

	// Merge duplicate lines so the stock guard sees the combined quantity
	// per product, not each line in isolation.
	quantities := make(map[string]int64, len(cmd.Items))
	ids := make([]string, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return Order{}, fmt.Errorf("%w: product_id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be greater than zero", ErrOrderInvalidInput)
		}
		if _, seen := quantities[id]; !seen {
			ids = append(ids, id)
		}
		quantities[id] += line.Quantity
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return Order{}, ErrOrderUnavailable
	}

	items := make([]domain.OrderItem, 0, len(ids))
	var subtotal int64
	for _, id := range ids {
		product, ok := products[id]
		if !ok || !product.IsActive {
			return Order{}, fmt.Errorf("%w: product %s is not available", ErrOrderInvalidInput, id)
		}
		quantity := quantities[id]
		if quantity > product.Stock {
			return Order{}, &StockLimitError{ProductID: product.ID, Available: product.Stock}
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  quantity,
		})
		subtotal += product.Price * quantity
	}

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, ErrOrderUnavailable
	}

	now := s.now()
	shipping := s.shippingFee
	if subtotal >= s.freeShippingAbove {
		shipping = 0
	}
	tax := subtotal * s.taxBasisPoints / 10000

	address := cmd.Address
	if s.addresses != nil {
		if saved, err := s.addresses.InsertGuest(ctx, address); err == nil {
			address = saved
		} else {
			s.logger(ctx, "order.guest_address_persist_failed", map[string]any{"error": err.Error()})
		}
	}

	order := domain.Order{
		ID:              s.newID(),
		OrderNumber:     orderNumber,
		Email:           email,
		Items:           items,
		ShippingAddress: address,
		BillingAddress:  cmd.BillingAddress,
		Amounts: domain.OrderAmounts{
			Subtotal: subtotal,
			Shipping: shipping,
			Tax:      tax,
			Total:    subtotal + shipping + tax,
			Currency: s.currency,
		},
		State:     domain.OrderStateCreated,
		Payment:   domain.OrderPayment{Gateway: domain.GatewayCashOnDelivery},
		Notes:     strings.TrimSpace(cmd.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.InsertPlaced(ctx, order); err != nil {
		return Order{}, s.translateOrderError(err)
	}

	s.logger(ctx, "order.guest_placed", map[string]any{
		"orderId":     order.ID,
		"orderNumber": orderNumber,
		"total":       order.Amounts.Total,
	})
	s.publishEvent(ctx, order, "order.placed")
	return order, nil
}

// ListOrders returns the caller's own orders, newest first.
func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	uid := strings.TrimSpace(query.UserID)
	if uid == "" {
		return domain.CursorPage[Order]{}, ErrOrderInvalidInput
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     uid,
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateOrderError(err)
	}
	return page, nil
}

// GetOrder returns an order the caller owns, or any order for admins.
func (s *orderService) GetOrder(ctx context.Context, query OrderReadQuery) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}
	if !query.IsAdmin && order.UserID != strings.TrimSpace(query.UserID) {
		// Ownership mismatches read as absence, never as forbidden.
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// CancelOrder cancels an unpaid order. Guest orders decremented stock at
// placement, so cancellation restores it.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}
	if !cmd.IsAdmin && order.UserID != strings.TrimSpace(cmd.UserID) {
		return Order{}, ErrOrderNotFound
	}

	cancelled, err := s.orders.Cancel(ctx, repositories.OrderCancellation{
		OrderID:      orderID,
		RestoreStock: order.State == domain.OrderStateCreated,
		Now:          s.now(),
	})
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": cancelled.ID,
		"reason":  strings.TrimSpace(cmd.Reason),
	})
	if cmd.IsAdmin {
		s.recordAudit(ctx, cmd.UserID, "order.cancel", cancelled.ID, map[string]any{"reason": cmd.Reason})
	}
	s.publishEvent(ctx, cancelled, "order.cancelled")
	return cancelled, nil
}

// AdminListOrders lists orders across users with state and date filters.
func (s *orderService) AdminListOrders(ctx context.Context, query AdminOrderListQuery) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	for _, state := range query.States {
		if !domain.ValidOrderState(state) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown state %q", ErrOrderInvalidInput, state)
		}
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(query.UserID),
		States:     query.States,
		DateRange:  query.CreatedAt,
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateOrderError(err)
	}
	return page, nil
}

// TransitionState applies an admin lifecycle move. Moving into the refunded
// state first refunds the payment through the gateway.
func (s *orderService) TransitionState(ctx context.Context, cmd OrderTransitionCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if !domain.ValidOrderState(cmd.To) {
		return Order{}, fmt.Errorf("%w: unknown state %q", ErrOrderInvalidInput, cmd.To)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}
	if !domain.CanTransition(order.State, cmd.To) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.State, cmd.To)
	}

	if cmd.To == domain.OrderStateRefunded {
		if err := s.refundThroughGateway(ctx, order); err != nil {
			return Order{}, err
		}
	}

	updated, err := s.orders.UpdateState(ctx, repositories.OrderStateChange{
		OrderID: orderID,
		To:      cmd.To,
		Now:     s.now(),
	})
	if err != nil {
		return Order{}, s.translateOrderError(err)
	}

	s.recordAudit(ctx, cmd.ActorID, "order.transition", updated.ID, map[string]any{
		"from":   string(order.State),
		"to":     string(cmd.To),
		"reason": strings.TrimSpace(cmd.Reason),
	})
	s.publishEvent(ctx, updated, "order."+string(cmd.To))
	return updated, nil
}

// DashboardStats aggregates the admin overview using concurrent reads.
func (s *orderService) DashboardStats(ctx context.Context, query DashboardQuery) (DashboardStats, error) {
	if s == nil || s.orders == nil {
		return DashboardStats{}, ErrOrderUnavailable
	}

	since := time.Time{}
	if query.Since != nil {
		since = query.Since.UTC()
	}
	threshold := query.LowStockThreshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}

	var (
		wg       sync.WaitGroup
		stats    repositories.OrderStats
		statsErr error
		lowStock []domain.Product
		stockErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, statsErr = s.orders.Stats(ctx, since)
	}()
	go func() {
		defer wg.Done()
		lowStock, stockErr = s.products.ListLowStock(ctx, threshold, lowStockPanelSize)
	}()
	wg.Wait()

	if statsErr != nil {
		return DashboardStats{}, s.translateOrderError(statsErr)
	}
	if stockErr != nil {
		return DashboardStats{}, ErrOrderUnavailable
	}

	return DashboardStats{
		CountsByState: stats.CountsByState,
		Revenue:       stats.Revenue,
		Currency:      stats.Currency,
		LowStock:      lowStock,
		GeneratedAt:   s.now(),
	}, nil
}

func (s *orderService) refundThroughGateway(ctx context.Context, order domain.Order) error {
	if order.Payment.Gateway == domain.GatewayCashOnDelivery {
		return nil
	}
	if s.payments == nil {
		return ErrOrderUnavailable
	}
	_, err := s.payments.Refund(ctx,
		payments.PaymentContext{PreferredProvider: string(order.Payment.Gateway)},
		payments.RefundRequest{
			IntentID:       order.Payment.IntentID,
			PaymentID:      order.Payment.GatewayRef,
			IdempotencyKey: order.ID + ":refund",
			Metadata:       map[string]string{"orderId": order.ID},
		},
	)
	if err != nil {
		s.logger(ctx, "order.refund_failed", map[string]any{
			"orderId": order.ID,
			"gateway": string(order.Payment.Gateway),
			"error":   err.Error(),
		})
		return ErrOrderRefundFailed
	}
	return nil
}

func (s *orderService) recordAudit(ctx context.Context, actorID, action, orderID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		ActorID:    strings.TrimSpace(actorID),
		Action:     action,
		EntityType: "order",
		EntityID:   orderID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	})
}

func (s *orderService) publishEvent(ctx context.Context, order domain.Order, event string) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishOrderEvent(ctx, OrderEventMessage{
		Event:       event,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Gateway:     string(order.Payment.Gateway),
		UserID:      order.UserID,
		Amount:      order.Amounts.Total,
		Currency:    order.Amounts.Currency,
		State:       string(order.State),
		OccurredAt:  s.now(),
	})
	if err != nil {
		s.logger(ctx, "order.publish_failed", map[string]any{
			"orderId": order.ID,
			"event":   event,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateOrderError(err error) error {
	if err == nil {
		return nil
	}

	var transitionErr *domain.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, transitionErr.From, transitionErr.To)
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return &StockLimitError{ProductID: stockErr.ProductID, Available: stockErr.Available}
		case repositories.StockErrorProductNotFound, repositories.StockErrorProductInactive:
			return fmt.Errorf("%w: product %s is not available", ErrOrderInvalidInput, stockErr.ProductID)
		}
		return ErrOrderUnavailable
	}

	if isRepoNotFound(err) {
		return ErrOrderNotFound
	}
	return ErrOrderUnavailable
}
