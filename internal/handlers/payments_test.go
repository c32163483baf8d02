package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/services"
)

type stubCheckoutService struct {
	createIntent func(ctx context.Context, cmd services.CreateIntentCommand) (services.CheckoutIntent, error)
}

func (s *stubCheckoutService) CreateIntent(ctx context.Context, cmd services.CreateIntentCommand) (services.CheckoutIntent, error) {
	if s.createIntent == nil {
		return services.CheckoutIntent{}, nil
	}
	return s.createIntent(ctx, cmd)
}

func newPaymentRouter(checkout services.CheckoutService, settlement services.SettlementService) chi.Router {
	handler := NewPaymentHandlers(nil, checkout, settlement)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)
	return router
}

func TestCreateIntentReturnsClientParameters(t *testing.T) {
	var got services.CreateIntentCommand
	checkout := &stubCheckoutService{
		createIntent: func(ctx context.Context, cmd services.CreateIntentCommand) (services.CheckoutIntent, error) {
			got = cmd
			return services.CheckoutIntent{
				OrderID:     "order-1",
				OrderNumber: "VL-2026-000042",
				Gateway:     domain.GatewayRazorpay,
				IntentID:    "rzp_order_1",
				PublicKey:   "rzp_test_key",
				Amount:      459700,
				Currency:    "inr",
			}, nil
		},
	}
	router := newPaymentRouter(checkout, &stubSettlementService{})

	body := strings.NewReader(`{"gateway":"Razorpay","address_id":"addr-1"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/payments/intent", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UserID != "user-7" || got.Gateway != domain.GatewayRazorpay || got.AddressID != "addr-1" {
		t.Fatalf("unexpected intent command %+v", got)
	}
	var payload checkoutIntentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.OrderNumber != "VL-2026-000042" || payload.Currency != "INR" {
		t.Fatalf("unexpected intent payload %+v", payload)
	}
}

func TestCreateIntentCartNotReady(t *testing.T) {
	checkout := &stubCheckoutService{
		createIntent: func(ctx context.Context, cmd services.CreateIntentCommand) (services.CheckoutIntent, error) {
			return services.CheckoutIntent{}, &services.CartNotReadyError{
				Result: services.CartValidationResult{
					IsValid: false,
					Errors:  []string{"Only 2 items available in stock"},
				},
			}
		},
	}
	router := newPaymentRouter(checkout, &stubSettlementService{})

	body := strings.NewReader(`{"gateway":"stripe","address_id":"addr-1"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/payments/intent", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "cart_not_ready" {
		t.Fatalf("expected cart_not_ready, got %v", payload["error"])
	}
	errs, ok := payload["validation_errors"].([]any)
	if !ok || len(errs) != 1 {
		t.Fatalf("expected one validation error, got %v", payload["validation_errors"])
	}
}

func TestCreateIntentRequiresIdentity(t *testing.T) {
	router := newPaymentRouter(&stubCheckoutService{}, &stubSettlementService{})

	body := strings.NewReader(`{"gateway":"stripe"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/intent", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestConfirmPaymentReturnsOrder(t *testing.T) {
	var got services.ConfirmPaymentCommand
	settlement := &stubSettlementService{
		confirm: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
			got = cmd
			return domain.Order{ID: cmd.OrderID, OrderNumber: "VL-2026-000042", State: domain.OrderStatePaid}, nil
		},
	}
	router := newPaymentRouter(&stubCheckoutService{}, settlement)

	body := strings.NewReader(`{"order_id":"order-1","gateway":"razorpay","payment_id":"pay_1","signature":"sig"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/payments/confirm", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UserID != "user-7" || got.OrderID != "order-1" || got.PaymentID != "pay_1" {
		t.Fatalf("unexpected confirm command %+v", got)
	}
	var payload orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Order.State != string(domain.OrderStatePaid) {
		t.Fatalf("expected paid state, got %q", payload.Order.State)
	}
}

func TestConfirmPaymentAlreadySettled(t *testing.T) {
	settlement := &stubSettlementService{
		confirm: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrAlreadySettled
		},
	}
	router := newPaymentRouter(&stubCheckoutService{}, settlement)

	body := strings.NewReader(`{"order_id":"order-1","gateway":"razorpay","payment_id":"pay_1","signature":"sig"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/payments/confirm", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "already_settled" {
		t.Fatalf("expected already_settled, got %v", payload["error"])
	}
}

func TestConfirmPaymentBadSignature(t *testing.T) {
	settlement := &stubSettlementService{
		confirm: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrSettlementBadSignature
		},
	}
	router := newPaymentRouter(&stubCheckoutService{}, settlement)

	body := strings.NewReader(`{"order_id":"order-1","gateway":"razorpay","payment_id":"pay_1","signature":"bad"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/payments/confirm", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "invalid_signature" {
		t.Fatalf("expected invalid_signature, got %v", payload["error"])
	}
}
