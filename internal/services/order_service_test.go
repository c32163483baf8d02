package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/payments"
	"github.com/velora-shop/api/internal/repositories"
)

type stubRefunder struct {
	refund func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

func (s *stubRefunder) Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	if s.refund == nil {
		return payments.PaymentDetails{Status: payments.StatusRefunded}, nil
	}
	return s.refund(ctx, paymentCtx, req)
}

type stubAuditRecorder struct {
	records []AuditLogRecord
}

func (s *stubAuditRecorder) Record(_ context.Context, record AuditLogRecord) {
	s.records = append(s.records, record)
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Products == nil {
		deps.Products = &stubProductRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubOrderNumberSource{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "order-test" }
	}
	if deps.ShippingFee == 0 {
		deps.ShippingFee = 500
	}
	if deps.FreeShippingThreshold == 0 {
		deps.FreeShippingThreshold = 10000
	}
	if deps.TaxRateBasisPoints == 0 {
		deps.TaxRateBasisPoints = 1800
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestPlaceGuestOrder(t *testing.T) {
	ctx := context.Background()

	var placed *domain.Order
	orders := &stubOrderRepository{
		insertPlaced: func(_ context.Context, order domain.Order) error {
			placed = &order
			return nil
		},
	}
	products := &stubProductRepository{
		findByIDs: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{
				"prod-1": {ID: "prod-1", Name: "Linen Shirt", Price: 2499, Stock: 10, IsActive: true},
			}, nil
		},
	}
	publisher := &stubPublisher{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:    orders,
		Products:  products,
		Addresses: &stubAddressRepository{},
		Publisher: publisher,
	})

	order, err := svc.PlaceGuestOrder(ctx, PlaceGuestOrderCommand{
		Email:   "guest@example.com",
		Items:   []GuestOrderItem{{ProductID: "prod-1", Quantity: 2}},
		Address: testCheckoutAddress(),
	})
	if err != nil {
		t.Fatalf("place guest order: %v", err)
	}

	if placed == nil {
		t.Fatalf("expected InsertPlaced to be called")
	}
	if placed.UserID != "" {
		t.Fatalf("expected empty user id on guest order, got %q", placed.UserID)
	}
	if placed.State != domain.OrderStateCreated {
		t.Fatalf("expected created state, got %s", placed.State)
	}
	if placed.Payment.Gateway != domain.GatewayCashOnDelivery {
		t.Fatalf("expected cod gateway, got %s", placed.Payment.Gateway)
	}
	if placed.Amounts.Subtotal != 4998 {
		t.Fatalf("unexpected subtotal %d", placed.Amounts.Subtotal)
	}
	if order.OrderNumber != "VL-2026-000042" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if len(publisher.events) != 1 || publisher.events[0].Event != "order.placed" {
		t.Fatalf("expected order.placed event, got %+v", publisher.events)
	}
}

func TestPlaceGuestOrderInsufficientStock(t *testing.T) {
	products := &stubProductRepository{
		findByIDs: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{
				"prod-1": {ID: "prod-1", Price: 2499, Stock: 1, IsActive: true},
			}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepository{}, Products: products})
	_, err := svc.PlaceGuestOrder(context.Background(), PlaceGuestOrderCommand{
		Email:   "guest@example.com",
		Items:   []GuestOrderItem{{ProductID: "prod-1", Quantity: 3}},
		Address: testCheckoutAddress(),
	})

	var stockErr *StockLimitError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockLimitError, got %v", err)
	}
	if stockErr.Available != 1 {
		t.Fatalf("expected available 1, got %d", stockErr.Available)
	}
}

func TestPlaceGuestOrderMergesDuplicateLines(t *testing.T) {
	ctx := context.Background()

	var placed *domain.Order
	orders := &stubOrderRepository{
		insertPlaced: func(_ context.Context, order domain.Order) error {
			placed = &order
			return nil
		},
	}
	products := &stubProductRepository{
		findByIDs: func(context.Context, []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{
				"prod-1": {ID: "prod-1", Name: "Linen Shirt", Price: 2499, Stock: 5, IsActive: true},
			}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:    orders,
		Products:  products,
		Addresses: &stubAddressRepository{},
	})

	// Split across two lines the quantities exceed stock together, so the
	// guard must reject even though each line alone would pass.
	_, err := svc.PlaceGuestOrder(ctx, PlaceGuestOrderCommand{
		Email: "guest@example.com",
		Items: []GuestOrderItem{
			{ProductID: "prod-1", Quantity: 3},
			{ProductID: "prod-1", Quantity: 4},
		},
		Address: testCheckoutAddress(),
	})
	var stockErr *StockLimitError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockLimitError for combined quantity, got %v", err)
	}
	if stockErr.Available != 5 {
		t.Fatalf("expected available 5, got %d", stockErr.Available)
	}
	if placed != nil {
		t.Fatalf("order must not be placed, got %+v", placed)
	}

	// Within stock the duplicate lines collapse into one with the summed
	// quantity.
	order, err := svc.PlaceGuestOrder(ctx, PlaceGuestOrderCommand{
		Email: "guest@example.com",
		Items: []GuestOrderItem{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-1", Quantity: 3},
		},
		Address: testCheckoutAddress(),
	})
	if err != nil {
		t.Fatalf("place guest order: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected one merged line, got %+v", order.Items)
	}
	if order.Items[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", order.Items[0].Quantity)
	}
	if order.Amounts.Subtotal != 12495 {
		t.Fatalf("unexpected subtotal %d", order.Amounts.Subtotal)
	}
}

func TestGetOrderOwnership(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "order-1", UserID: "user-1"}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	if _, err := svc.GetOrder(ctx, OrderReadQuery{OrderID: "order-1", UserID: "someone-else"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, OrderReadQuery{OrderID: "order-1", UserID: "someone-else", IsAdmin: true}); err != nil {
		t.Fatalf("expected admin read to succeed, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, OrderReadQuery{OrderID: "order-1", UserID: "user-1"}); err != nil {
		t.Fatalf("expected owner read to succeed, got %v", err)
	}
}

func TestCancelOrderRestoresStockForPlacedOrders(t *testing.T) {
	ctx := context.Background()

	state := domain.OrderStateCreated
	var cancellation *repositories.OrderCancellation
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "order-1", UserID: "user-1", State: state}, nil
		},
		cancel: func(_ context.Context, req repositories.OrderCancellation) (domain.Order, error) {
			cancellation = &req
			return domain.Order{ID: "order-1", UserID: "user-1", State: domain.OrderStateCancelled}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	if _, err := svc.CancelOrder(ctx, CancelOrderCommand{OrderID: "order-1", UserID: "user-1"}); err != nil {
		t.Fatalf("cancel placed order: %v", err)
	}
	if cancellation == nil || !cancellation.RestoreStock {
		t.Fatalf("expected stock restore for placed order, got %+v", cancellation)
	}

	state = domain.OrderStateAwaitingPayment
	if _, err := svc.CancelOrder(ctx, CancelOrderCommand{OrderID: "order-1", UserID: "user-1"}); err != nil {
		t.Fatalf("cancel awaiting order: %v", err)
	}
	if cancellation.RestoreStock {
		t.Fatalf("expected no stock restore before decrement")
	}
}

func TestTransitionStateRejectsInvalidMove(t *testing.T) {
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "order-1", State: domain.OrderStateDelivered}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})
	_, err := svc.TransitionState(context.Background(), OrderTransitionCommand{
		OrderID: "order-1",
		To:      domain.OrderStatePaid,
		ActorID: "admin-1",
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestTransitionToRefundedRefundsThroughGateway(t *testing.T) {
	ctx := context.Background()

	paid := domain.Order{
		ID:      "order-1",
		State:   domain.OrderStatePaid,
		Payment: domain.OrderPayment{Gateway: domain.GatewayStripe, IntentID: "pi_1", GatewayRef: "ch_1"},
		Amounts: domain.OrderAmounts{Total: 5898, Currency: "INR"},
	}

	refunded := false
	updates := 0
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return paid, nil },
		updateState: func(_ context.Context, req repositories.OrderStateChange) (domain.Order, error) {
			updates++
			order := paid
			order.State = req.To
			return order, nil
		},
	}
	refunder := &stubRefunder{
		refund: func(_ context.Context, _ payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
			refunded = true
			if req.IntentID != "pi_1" || req.PaymentID != "ch_1" {
				t.Fatalf("unexpected refund request: %+v", req)
			}
			return payments.PaymentDetails{Status: payments.StatusRefunded}, nil
		},
	}
	audit := &stubAuditRecorder{}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Payments: refunder, Audit: audit})
	order, err := svc.TransitionState(ctx, OrderTransitionCommand{OrderID: "order-1", To: domain.OrderStateRefunded, ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("transition to refunded: %v", err)
	}
	if !refunded {
		t.Fatalf("expected gateway refund before transition")
	}
	if order.State != domain.OrderStateRefunded {
		t.Fatalf("unexpected state %s", order.State)
	}
	if len(audit.records) != 1 || audit.records[0].Action != "order.transition" {
		t.Fatalf("expected audit record, got %+v", audit.records)
	}

	// Gateway failure blocks the transition entirely.
	refunder.refund = func(context.Context, payments.PaymentContext, payments.RefundRequest) (payments.PaymentDetails, error) {
		return payments.PaymentDetails{}, errors.New("gateway down")
	}
	updates = 0
	if _, err := svc.TransitionState(ctx, OrderTransitionCommand{OrderID: "order-1", To: domain.OrderStateRefunded}); !errors.Is(err, ErrOrderRefundFailed) {
		t.Fatalf("expected ErrOrderRefundFailed, got %v", err)
	}
	if updates != 0 {
		t.Fatalf("expected no state write after refund failure")
	}
}

func TestDashboardStats(t *testing.T) {
	orders := &stubOrderRepository{
		stats: func(context.Context, time.Time) (repositories.OrderStats, error) {
			return repositories.OrderStats{
				CountsByState: map[domain.OrderState]int64{domain.OrderStatePaid: 3},
				Revenue:       17694,
				Currency:      "INR",
			}, nil
		},
	}
	products := &stubProductRepository{
		listLowStock: func(_ context.Context, threshold int64, limit int) ([]domain.Product, error) {
			if threshold != 5 {
				t.Fatalf("expected default threshold 5, got %d", threshold)
			}
			return []domain.Product{{ID: "prod-1", Stock: 2}}, nil
		},
	}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Products: products})
	stats, err := svc.DashboardStats(context.Background(), DashboardQuery{})
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if stats.Revenue != 17694 || stats.CountsByState[domain.OrderStatePaid] != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.LowStock) != 1 {
		t.Fatalf("expected low stock panel, got %+v", stats.LowStock)
	}
}
