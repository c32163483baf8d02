package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/payments"
	"github.com/velora-shop/api/internal/repositories"
)

var (
	// ErrAlreadySettled indicates the order has already been paid. Settlement
	// races resolve by first successful transition; later callers get this.
	ErrAlreadySettled = errors.New("settlement: order already settled")
	// ErrSettlementInvalidInput indicates the caller supplied invalid parameters.
	ErrSettlementInvalidInput = errors.New("settlement: invalid input")
	// ErrSettlementOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrSettlementOrderNotFound = errors.New("settlement: order not found")
	// ErrSettlementInvalidState indicates the order cannot be settled from its current state.
	ErrSettlementInvalidState = errors.New("settlement: order not payable")
	// ErrSettlementInsufficientStock indicates stock ran out between checkout and payment.
	ErrSettlementInsufficientStock = errors.New("settlement: insufficient stock")
	// ErrSettlementBadSignature indicates the client confirm signature failed verification.
	ErrSettlementBadSignature = errors.New("settlement: signature verification failed")
	// ErrSettlementPaymentIncomplete indicates the gateway does not report the payment as succeeded.
	ErrSettlementPaymentIncomplete = errors.New("settlement: payment not completed")
	// ErrSettlementUnavailable indicates settlement dependencies are currently unavailable.
	ErrSettlementUnavailable = errors.New("settlement: unavailable")
)

// paymentLookup is the slice of payments.Manager the settlement path needs.
type paymentLookup interface {
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// SettlementServiceDeps wires the dependencies of the settlement service.
type SettlementServiceDeps struct {
	Orders                repositories.OrderRepository
	Carts                 repositories.CartRepository
	Payments              paymentLookup
	Publisher             OrderEventPublisher
	RazorpayConfirmSecret string
	Clock                 func() time.Time
	Logger                func(ctx context.Context, event string, fields map[string]any)
}

type settlementService struct {
	orders        repositories.OrderRepository
	carts         repositories.CartRepository
	payments      paymentLookup
	publisher     OrderEventPublisher
	confirmSecret string
	now           func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewSettlementService constructs the settlement service validating required dependencies.
func NewSettlementService(deps SettlementServiceDeps) (SettlementService, error) {
	if deps.Orders == nil {
		return nil, errors.New("settlement service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("settlement service: cart repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &settlementService{
		orders:        deps.Orders,
		carts:         deps.Carts,
		payments:      deps.Payments,
		publisher:     deps.Publisher,
		confirmSecret: strings.TrimSpace(deps.RazorpayConfirmSecret),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// SettlePayment moves the order into its paid state and decrements stock, both
// inside one repository transaction. The call is idempotent: once an order is
// settled every further attempt returns ErrAlreadySettled and stock stays
// decremented exactly once.
func (s *settlementService) SettlePayment(ctx context.Context, cmd SettlePaymentCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrSettlementUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrSettlementInvalidInput
	}

	order, err := s.orders.Settle(ctx, repositories.OrderSettlement{
		OrderID:    orderID,
		GatewayRef: strings.TrimSpace(cmd.GatewayRef),
		Now:        s.now(),
	})
	if err != nil {
		return Order{}, s.translateSettleError(err)
	}

	s.logger(ctx, "settlement.settled", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"gateway":     string(order.Payment.Gateway),
		"source":      strings.TrimSpace(cmd.Source),
		"amount":      order.Amounts.Total,
	})

	s.afterSettle(ctx, order)
	return order, nil
}

// ConfirmClient verifies a storefront-side payment completion and settles
// through the shared path.
func (s *settlementService) ConfirmClient(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrSettlementUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrSettlementInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrSettlementOrderNotFound
		}
		return Order{}, ErrSettlementUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if order.UserID != "" && order.UserID != uid {
		return Order{}, ErrSettlementOrderNotFound
	}
	if order.State.IsSettled() {
		return Order{}, ErrAlreadySettled
	}

	gateway := domain.PaymentGateway(strings.ToLower(strings.TrimSpace(string(cmd.Gateway))))
	if gateway != order.Payment.Gateway {
		return Order{}, fmt.Errorf("%w: gateway mismatch", ErrSettlementInvalidInput)
	}

	var gatewayRef string
	switch gateway {
	case domain.GatewayRazorpay:
		if !payments.VerifyRazorpayConfirmSignature(order.Payment.IntentID, cmd.PaymentID, cmd.Signature, s.confirmSecret) {
			return Order{}, ErrSettlementBadSignature
		}
		gatewayRef = strings.TrimSpace(cmd.PaymentID)
	case domain.GatewayStripe:
		if s.payments == nil {
			return Order{}, ErrSettlementUnavailable
		}
		details, err := s.payments.LookupPayment(ctx,
			payments.PaymentContext{PreferredProvider: string(domain.GatewayStripe)},
			payments.LookupRequest{IntentID: order.Payment.IntentID},
		)
		if err != nil {
			s.logger(ctx, "settlement.lookup_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			return Order{}, ErrSettlementUnavailable
		}
		if details.Status != payments.StatusSucceeded {
			return Order{}, ErrSettlementPaymentIncomplete
		}
		gatewayRef = details.PaymentID
		if gatewayRef == "" {
			gatewayRef = details.IntentID
		}
	default:
		return Order{}, fmt.Errorf("%w: unsupported gateway %q", ErrSettlementInvalidInput, cmd.Gateway)
	}

	return s.SettlePayment(ctx, SettlePaymentCommand{
		OrderID:    order.ID,
		GatewayRef: gatewayRef,
		Source:     "client",
	})
}

// MarkPaymentFailed cancels an unpaid order after a failed or aborted payment.
func (s *settlementService) MarkPaymentFailed(ctx context.Context, cmd FailPaymentCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrSettlementUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrSettlementInvalidInput
	}

	order, err := s.orders.UpdateState(ctx, repositories.OrderStateChange{
		OrderID: orderID,
		To:      domain.OrderStateCancelled,
		Now:     s.now(),
	})
	if err != nil {
		return Order{}, s.translateSettleError(err)
	}

	s.logger(ctx, "settlement.payment_failed", map[string]any{
		"orderId": order.ID,
		"reason":  strings.TrimSpace(cmd.Reason),
		"source":  strings.TrimSpace(cmd.Source),
	})
	s.publish(ctx, order, "order.cancelled")
	return order, nil
}

// afterSettle runs the post-commit side effects. Failures are logged, never
// surfaced: the settlement itself has already committed.
func (s *settlementService) afterSettle(ctx context.Context, order domain.Order) {
	if uid := strings.TrimSpace(order.UserID); uid != "" {
		if err := s.carts.Clear(ctx, uid); err != nil && !isRepoNotFound(err) {
			s.logger(ctx, "settlement.cart_clear_failed", map[string]any{
				"orderId": order.ID,
				"userId":  uid,
				"error":   err.Error(),
			})
		}
	}
	s.publish(ctx, order, "order.paid")
}

func (s *settlementService) publish(ctx context.Context, order domain.Order, event string) {
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
		s.logger(ctx, "settlement.publish_failed", map[string]any{
			"orderId": order.ID,
			"event":   event,
			"error":   err.Error(),
		})
	}
}

func (s *settlementService) translateSettleError(err error) error {
	if err == nil {
		return nil
	}

	var transitionErr *domain.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		if transitionErr.From.IsSettled() {
			return ErrAlreadySettled
		}
		return fmt.Errorf("%w: %s", ErrSettlementInvalidState, transitionErr.From)
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Code == repositories.StockErrorInsufficient {
			return fmt.Errorf("%w: product %s has %d left", ErrSettlementInsufficientStock, stockErr.ProductID, stockErr.Available)
		}
		return fmt.Errorf("%w: %s", ErrSettlementInsufficientStock, stockErr.Message)
	}

	if isRepoNotFound(err) {
		return ErrSettlementOrderNotFound
	}
	return ErrSettlementUnavailable
}
