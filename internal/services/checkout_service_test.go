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

type stubOrderRepository struct {
	insert         func(ctx context.Context, order domain.Order) error
	insertPlaced   func(ctx context.Context, order domain.Order) error
	update         func(ctx context.Context, order domain.Order) error
	findByID       func(ctx context.Context, orderID string) (domain.Order, error)
	findByIntentID func(ctx context.Context, gateway domain.PaymentGateway, intentID string) (domain.Order, error)
	list           func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	settle         func(ctx context.Context, req repositories.OrderSettlement) (domain.Order, error)
	updateState    func(ctx context.Context, req repositories.OrderStateChange) (domain.Order, error)
	cancel         func(ctx context.Context, req repositories.OrderCancellation) (domain.Order, error)
	stats          func(ctx context.Context, since time.Time) (repositories.OrderStats, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, order)
}

func (s *stubOrderRepository) InsertPlaced(ctx context.Context, order domain.Order) error {
	if s.insertPlaced == nil {
		return nil
	}
	return s.insertPlaced(ctx, order)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.update == nil {
		return nil
	}
	return s.update(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByID == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.findByID(ctx, orderID)
}

func (s *stubOrderRepository) FindByIntentID(ctx context.Context, gateway domain.PaymentGateway, intentID string) (domain.Order, error) {
	if s.findByIntentID == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.findByIntentID(ctx, gateway, intentID)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.list == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.list(ctx, filter)
}

func (s *stubOrderRepository) Settle(ctx context.Context, req repositories.OrderSettlement) (domain.Order, error) {
	if s.settle == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.settle(ctx, req)
}

func (s *stubOrderRepository) UpdateState(ctx context.Context, req repositories.OrderStateChange) (domain.Order, error) {
	if s.updateState == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.updateState(ctx, req)
}

func (s *stubOrderRepository) Cancel(ctx context.Context, req repositories.OrderCancellation) (domain.Order, error) {
	if s.cancel == nil {
		return domain.Order{}, errRepoNotFound
	}
	return s.cancel(ctx, req)
}

func (s *stubOrderRepository) Stats(ctx context.Context, since time.Time) (repositories.OrderStats, error) {
	if s.stats == nil {
		return repositories.OrderStats{}, nil
	}
	return s.stats(ctx, since)
}

type stubAddressRepository struct {
	list        func(ctx context.Context, userID string) ([]domain.Address, error)
	get         func(ctx context.Context, userID string, addressID string) (domain.Address, error)
	upsert      func(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	deleteFn    func(ctx context.Context, userID string, addressID string) error
	insertGuest func(ctx context.Context, addr domain.Address) (domain.Address, error)
}

func (s *stubAddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, userID)
}

func (s *stubAddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	if s.get == nil {
		return domain.Address{}, errRepoNotFound
	}
	return s.get(ctx, userID, addressID)
}

func (s *stubAddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	if s.upsert == nil {
		return addr, nil
	}
	return s.upsert(ctx, userID, addressID, addr)
}

func (s *stubAddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, addressID)
}

func (s *stubAddressRepository) InsertGuest(ctx context.Context, addr domain.Address) (domain.Address, error) {
	if s.insertGuest == nil {
		addr.ID = "guest-addr"
		return addr, nil
	}
	return s.insertGuest(ctx, addr)
}

type stubCartValidator struct {
	validate func(ctx context.Context, userID string) (CartValidationResult, error)
}

func (s *stubCartValidator) ValidateCart(ctx context.Context, userID string) (CartValidationResult, error) {
	if s.validate == nil {
		return CartValidationResult{IsValid: true}, nil
	}
	return s.validate(ctx, userID)
}

type stubIntentCreator struct {
	createIntent func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
}

func (s *stubIntentCreator) CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
	if s.createIntent == nil {
		return payments.Intent{ID: "pi_test", Provider: paymentCtx.PreferredProvider, ClientSecret: "secret_test"}, nil
	}
	return s.createIntent(ctx, paymentCtx, req)
}

type stubOrderNumberSource struct {
	next func(ctx context.Context) (string, error)
}

func (s *stubOrderNumberSource) NextOrderNumber(ctx context.Context) (string, error) {
	if s.next == nil {
		return "VL-2026-000042", nil
	}
	return s.next(ctx)
}

func testCheckoutAddress() domain.Address {
	return domain.Address{
		Name:       "Asha Rao",
		Line1:      "12 Residency Road",
		City:       "Bengaluru",
		PostalCode: "560025",
		Country:    "IN",
	}
}

func newTestCheckoutService(t *testing.T, deps CheckoutServiceDeps) CheckoutService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "order-test" }
	}
	if deps.Validator == nil {
		deps.Validator = &stubCartValidator{}
	}
	if deps.Payments == nil {
		deps.Payments = &stubIntentCreator{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubOrderNumberSource{}
	}
	if deps.Addresses == nil {
		deps.Addresses = &stubAddressRepository{}
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
	svc, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func TestCreateIntentSnapshotsOrder(t *testing.T) {
	ctx := context.Background()

	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "user-1",
				UserID:   "user-1",
				Currency: "INR",
				Items: []domain.CartItem{
					{ID: "line-1", ProductID: "prod-1", Name: "Linen Shirt", UnitPrice: 2499, Quantity: 2},
				},
			}, nil
		},
	}

	var inserted *domain.Order
	orders := &stubOrderRepository{
		insert: func(_ context.Context, order domain.Order) error {
			inserted = &order
			return nil
		},
	}

	var intentReq payments.IntentRequest
	gateway := &stubIntentCreator{
		createIntent: func(_ context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
			intentReq = req
			return payments.Intent{ID: "pi_123", Provider: "stripe", ClientSecret: "cs_123"}, nil
		},
	}

	svc := newTestCheckoutService(t, CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Payments: gateway,
	})

	result, err := svc.CreateIntent(ctx, CreateIntentCommand{
		UserID:  "user-1",
		Email:   "asha@example.com",
		Gateway: domain.GatewayStripe,
		Address: func() *domain.Address { a := testCheckoutAddress(); return &a }(),
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if inserted == nil {
		t.Fatalf("expected order to be persisted")
	}
	if inserted.State != domain.OrderStateAwaitingPayment {
		t.Fatalf("expected awaiting_payment state, got %s", inserted.State)
	}
	if inserted.Payment.IntentID != "pi_123" {
		t.Fatalf("expected intent id persisted, got %q", inserted.Payment.IntentID)
	}

	// subtotal 4998, below the free-shipping threshold: shipping 500, tax 18%.
	wantTax := int64(4998) * 1800 / 10000
	if inserted.Amounts.Subtotal != 4998 || inserted.Amounts.Shipping != 500 || inserted.Amounts.Tax != wantTax {
		t.Fatalf("unexpected amounts: %+v", inserted.Amounts)
	}
	if inserted.Amounts.Total != 4998+500+wantTax {
		t.Fatalf("unexpected total: %d", inserted.Amounts.Total)
	}

	if intentReq.Amount != inserted.Amounts.Total {
		t.Fatalf("expected gateway amount %d, got %d", inserted.Amounts.Total, intentReq.Amount)
	}
	if intentReq.Metadata["orderId"] != inserted.ID {
		t.Fatalf("expected order id in intent metadata")
	}
	if result.ClientSecret != "cs_123" || result.OrderNumber != "VL-2026-000042" {
		t.Fatalf("unexpected intent result: %+v", result)
	}
}

func TestCreateIntentFreeShippingAboveThreshold(t *testing.T) {
	ctx := context.Background()

	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "user-1",
				UserID:   "user-1",
				Currency: "INR",
				Items: []domain.CartItem{
					{ID: "line-1", ProductID: "prod-1", UnitPrice: 6000, Quantity: 2},
				},
			}, nil
		},
	}

	var inserted *domain.Order
	orders := &stubOrderRepository{
		insert: func(_ context.Context, order domain.Order) error {
			inserted = &order
			return nil
		},
	}

	svc := newTestCheckoutService(t, CheckoutServiceDeps{Carts: carts, Orders: orders})
	if _, err := svc.CreateIntent(ctx, CreateIntentCommand{
		UserID:  "user-1",
		Email:   "asha@example.com",
		Gateway: domain.GatewayRazorpay,
		Address: func() *domain.Address { a := testCheckoutAddress(); return &a }(),
	}); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if inserted.Amounts.Shipping != 0 {
		t.Fatalf("expected free shipping at threshold, got %d", inserted.Amounts.Shipping)
	}
}

func TestCreateIntentRejectsInvalidCart(t *testing.T) {
	ctx := context.Background()

	validator := &stubCartValidator{
		validate: func(context.Context, string) (CartValidationResult, error) {
			return CartValidationResult{IsValid: false, Errors: []string{"cart is empty"}}, nil
		},
	}
	svc := newTestCheckoutService(t, CheckoutServiceDeps{
		Carts:     &stubCartRepository{},
		Orders:    &stubOrderRepository{},
		Validator: validator,
	})

	_, err := svc.CreateIntent(ctx, CreateIntentCommand{
		UserID:  "user-1",
		Email:   "asha@example.com",
		Gateway: domain.GatewayStripe,
		Address: func() *domain.Address { a := testCheckoutAddress(); return &a }(),
	})

	var notReady *CartNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected CartNotReadyError, got %v", err)
	}
	if len(notReady.Result.Errors) != 1 {
		t.Fatalf("expected validation errors carried, got %+v", notReady.Result)
	}
}

func TestCreateIntentGatewayNotConfigured(t *testing.T) {
	ctx := context.Background()

	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{
				ID: "user-1", UserID: "user-1", Currency: "INR",
				Items: []domain.CartItem{{ID: "line-1", ProductID: "prod-1", UnitPrice: 1000, Quantity: 1}},
			}, nil
		},
	}
	gateway := &stubIntentCreator{
		createIntent: func(context.Context, payments.PaymentContext, payments.IntentRequest) (payments.Intent, error) {
			return payments.Intent{}, payments.ErrUnsupportedProvider
		},
	}

	svc := newTestCheckoutService(t, CheckoutServiceDeps{
		Carts:    carts,
		Orders:   &stubOrderRepository{},
		Payments: gateway,
	})

	_, err := svc.CreateIntent(ctx, CreateIntentCommand{
		UserID:  "user-1",
		Email:   "asha@example.com",
		Gateway: domain.GatewayRazorpay,
		Address: func() *domain.Address { a := testCheckoutAddress(); return &a }(),
	})
	if !errors.Is(err, ErrCheckoutGatewayUnavailable) {
		t.Fatalf("expected ErrCheckoutGatewayUnavailable, got %v", err)
	}
}

func TestCreateIntentVerifiesAddressOwnership(t *testing.T) {
	ctx := context.Background()

	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{
				ID: "user-1", UserID: "user-1", Currency: "INR",
				Items: []domain.CartItem{{ID: "line-1", ProductID: "prod-1", UnitPrice: 1000, Quantity: 1}},
			}, nil
		},
	}
	addresses := &stubAddressRepository{
		get: func(context.Context, string, string) (domain.Address, error) {
			return domain.Address{}, errRepoNotFound
		},
	}

	svc := newTestCheckoutService(t, CheckoutServiceDeps{
		Carts:     carts,
		Orders:    &stubOrderRepository{},
		Addresses: addresses,
	})

	_, err := svc.CreateIntent(ctx, CreateIntentCommand{
		UserID:    "user-1",
		Email:     "asha@example.com",
		Gateway:   domain.GatewayStripe,
		AddressID: "addr-of-someone-else",
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}
