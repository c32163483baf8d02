package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/payments"
	"github.com/velora-shop/api/internal/repositories"
)

const (
	defaultShippingFee           = int64(9900)
	defaultFreeShippingThreshold = int64(99900)
	defaultTaxRateBasisPoints    = int64(1800)
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid checkout parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutGatewayUnavailable indicates the requested payment gateway is not configured.
	ErrCheckoutGatewayUnavailable = errors.New("checkout: payment gateway unavailable")
	// ErrCheckoutPaymentFailed indicates the gateway rejected the intent request.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment intent failed")
)

// CartNotReadyError carries the validation report blocking checkout.
type CartNotReadyError struct {
	Result CartValidationResult
}

// Error implements the error interface.
func (e *CartNotReadyError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Result.Errors) > 0 {
		return "checkout: cart is not ready: " + strings.Join(e.Result.Errors, "; ")
	}
	return "checkout: cart is not ready"
}

// cartValidator is the slice of CartService checkout depends on.
type cartValidator interface {
	ValidateCart(ctx context.Context, userID string) (CartValidationResult, error)
}

// intentCreator abstracts payments.Manager for easier testing.
type intentCreator interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
}

// orderNumberSource issues the next human readable order number.
type orderNumberSource interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts                 repositories.CartRepository
	Orders                repositories.OrderRepository
	Addresses             repositories.AddressRepository
	Validator             cartValidator
	Payments              intentCreator
	Counters              orderNumberSource
	Clock                 func() time.Time
	Logger                func(ctx context.Context, event string, fields map[string]any)
	IDGenerator           func() string
	ShippingFee           int64
	FreeShippingThreshold int64
	TaxRateBasisPoints    int64
}

type checkoutService struct {
	carts             repositories.CartRepository
	orders            repositories.OrderRepository
	addresses         repositories.AddressRepository
	validator         cartValidator
	payments          intentCreator
	counters          orderNumberSource
	now               func() time.Time
	logger            func(context.Context, string, map[string]any)
	newID             func() string
	shippingFee       int64
	freeShippingAbove int64
	taxBasisPoints    int64
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout service: address repository is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("checkout service: cart validator is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter service is required")
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

	shippingFee := deps.ShippingFee
	if shippingFee < 0 {
		return nil, errors.New("checkout service: shipping fee must be non-negative")
	}
	if shippingFee == 0 {
		shippingFee = defaultShippingFee
	}
	threshold := deps.FreeShippingThreshold
	if threshold <= 0 {
		threshold = defaultFreeShippingThreshold
	}
	taxBps := deps.TaxRateBasisPoints
	if taxBps < 0 {
		return nil, errors.New("checkout service: tax rate must be non-negative")
	}
	if taxBps == 0 {
		taxBps = defaultTaxRateBasisPoints
	}

	return &checkoutService{
		carts:     deps.Carts,
		orders:    deps.Orders,
		addresses: deps.Addresses,
		validator: deps.Validator,
		payments:  deps.Payments,
		counters:  deps.Counters,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:            logger,
		newID:             idGen,
		shippingFee:       shippingFee,
		freeShippingAbove: threshold,
		taxBasisPoints:    taxBps,
	}, nil
}

// CreateIntent snapshots the validated cart into an order awaiting payment and
// opens the gateway intent the client completes. Stock is not touched here;
// the decrement happens inside settlement.
func (s *checkoutService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (CheckoutIntent, error) {
	if s == nil || s.carts == nil {
		return CheckoutIntent{}, ErrCheckoutUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutIntent{}, ErrCheckoutInvalidInput
	}
	gateway := domain.PaymentGateway(strings.ToLower(strings.TrimSpace(string(cmd.Gateway))))
	if gateway != domain.GatewayStripe && gateway != domain.GatewayRazorpay {
		return CheckoutIntent{}, fmt.Errorf("%w: unsupported gateway %q", ErrCheckoutInvalidInput, cmd.Gateway)
	}
	email := strings.TrimSpace(cmd.Email)
	if email == "" {
		return CheckoutIntent{}, fmt.Errorf("%w: email is required", ErrCheckoutInvalidInput)
	}

	report, err := s.validator.ValidateCart(ctx, uid)
	if err != nil {
		return CheckoutIntent{}, ErrCheckoutUnavailable
	}
	if !report.IsValid {
		return CheckoutIntent{}, &CartNotReadyError{Result: report}
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutIntent{}, &CartNotReadyError{Result: CartValidationResult{Errors: []string{"cart is empty"}}}
		}
		return CheckoutIntent{}, ErrCheckoutUnavailable
	}
	if len(cart.Items) == 0 {
		return CheckoutIntent{}, &CartNotReadyError{Result: CartValidationResult{Errors: []string{"cart is empty"}}}
	}

	shipping, err := s.resolveAddress(ctx, uid, cmd.AddressID, cmd.Address)
	if err != nil {
		return CheckoutIntent{}, err
	}

	amounts := s.computeAmounts(cart)
	now := s.now()

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		s.logger(ctx, "checkout.order_number_failed", map[string]any{"userId": uid, "error": err.Error()})
		return CheckoutIntent{}, ErrCheckoutUnavailable
	}

	order := domain.Order{
		ID:              s.newID(),
		OrderNumber:     orderNumber,
		UserID:          uid,
		Email:           email,
		Items:           orderItemsFromCart(cart.Items),
		ShippingAddress: shipping,
		BillingAddress:  cmd.BillingAddress,
		Amounts:         amounts,
		State:           domain.OrderStateAwaitingPayment,
		Payment:         domain.OrderPayment{Gateway: gateway},
		Notes:           strings.TrimSpace(cmd.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	intent, err := s.payments.CreateIntent(ctx,
		payments.PaymentContext{
			PreferredProvider: string(gateway),
			Currency:          amounts.Currency,
		},
		payments.IntentRequest{
			Amount:         amounts.Total,
			Currency:       amounts.Currency,
			CustomerEmail:  email,
			Description:    "Velora order " + orderNumber,
			IdempotencyKey: order.ID,
			Receipt:        orderNumber,
			Metadata: map[string]string{
				"orderId":     order.ID,
				"orderNumber": orderNumber,
			},
		},
	)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return CheckoutIntent{}, ErrCheckoutGatewayUnavailable
		}
		s.logger(ctx, "checkout.intent_failed", map[string]any{
			"userId":  uid,
			"gateway": string(gateway),
			"error":   err.Error(),
		})
		return CheckoutIntent{}, ErrCheckoutPaymentFailed
	}

	order.Payment.IntentID = intent.ID
	if err := s.orders.Insert(ctx, order); err != nil {
		s.logger(ctx, "checkout.order_persist_failed", map[string]any{
			"orderId":  order.ID,
			"intentId": intent.ID,
			"error":    err.Error(),
		})
		return CheckoutIntent{}, ErrCheckoutUnavailable
	}

	s.logger(ctx, "checkout.intent_created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": orderNumber,
		"gateway":     string(gateway),
		"amount":      amounts.Total,
	})

	return CheckoutIntent{
		OrderID:      order.ID,
		OrderNumber:  orderNumber,
		Gateway:      gateway,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		PublicKey:    intent.PublicKey,
		Amount:       amounts.Total,
		Currency:     amounts.Currency,
	}, nil
}

func (s *checkoutService) resolveAddress(ctx context.Context, userID, addressID string, inline *Address) (domain.Address, error) {
	addressID = strings.TrimSpace(addressID)
	if addressID != "" {
		addr, err := s.addresses.Get(ctx, userID, addressID)
		if err != nil {
			if isRepoNotFound(err) {
				return domain.Address{}, fmt.Errorf("%w: address not found", ErrCheckoutInvalidInput)
			}
			return domain.Address{}, ErrCheckoutUnavailable
		}
		return addr, nil
	}
	if inline == nil {
		return domain.Address{}, fmt.Errorf("%w: shipping address is required", ErrCheckoutInvalidInput)
	}
	if err := validateAddress(*inline); err != nil {
		return domain.Address{}, err
	}
	return *inline, nil
}

func (s *checkoutService) computeAmounts(cart domain.Cart) domain.OrderAmounts {
	totals := computeCartTotals(cart)
	shipping := s.shippingFee
	if totals.Subtotal >= s.freeShippingAbove {
		shipping = 0
	}
	tax := totals.Subtotal * s.taxBasisPoints / 10000
	return domain.OrderAmounts{
		Subtotal: totals.Subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    totals.Subtotal + shipping + tax,
		Currency: totals.Currency,
	}
}

func orderItemsFromCart(items []domain.CartItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		out = append(out, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return out
}

func validateAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.Name) == "" {
		return fmt.Errorf("%w: address name is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: address line1 is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: address city is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return fmt.Errorf("%w: address postal code is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: address country is required", ErrCheckoutInvalidInput)
	}
	return nil
}
