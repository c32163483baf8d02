package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/platform/auth"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/services"
)

const maxPaymentBodySize = 32 * 1024

// PaymentHandlers exposes the authenticated checkout surface: intent creation
// and client-side payment confirmation.
type PaymentHandlers struct {
	authn      *auth.Authenticator
	checkout   services.CheckoutService
	settlement services.SettlementService
}

// NewPaymentHandlers constructs the payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, checkout services.CheckoutService, settlement services.SettlementService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:      authn,
		checkout:   checkout,
		settlement: settlement,
	}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/intent", h.createIntent)
	r.Post("/confirm", h.confirmPayment)
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createIntentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.CreateIntentCommand{
		UserID:    identity.UID,
		Email:     identity.Email,
		Gateway:   domain.PaymentGateway(strings.ToLower(strings.TrimSpace(req.Gateway))),
		AddressID: strings.TrimSpace(req.AddressID),
		Notes:     req.Notes,
	}
	if req.Address != nil {
		addr := req.Address.toDomain()
		cmd.Address = &addr
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	intent, err := h.checkout.CreateIntent(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutIntentResponse{
		OrderID:      intent.OrderID,
		OrderNumber:  intent.OrderNumber,
		Gateway:      string(intent.Gateway),
		IntentID:     intent.IntentID,
		ClientSecret: intent.ClientSecret,
		PublicKey:    intent.PublicKey,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(intent.Currency)),
	})
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settlement == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settlement_unavailable", "settlement service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req confirmPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	order, err := h.settlement.ConfirmClient(ctx, services.ConfirmPaymentCommand{
		UserID:    identity.UID,
		OrderID:   strings.TrimSpace(req.OrderID),
		Gateway:   domain.PaymentGateway(strings.ToLower(strings.TrimSpace(req.Gateway))),
		PaymentID: strings.TrimSpace(req.PaymentID),
		Signature: strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writeSettlementError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var notReady *services.CartNotReadyError
	if errors.As(err, &notReady) {
		errs := notReady.Result.Errors
		if errs == nil {
			errs = []string{}
		}
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_ready", "cart failed checkout validation", http.StatusBadRequest).
			WithDetails(map[string]any{"validation_errors": errs}))
		return
	}

	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_intent_failed", "payment gateway rejected the intent", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout request failed", http.StatusInternalServerError))
	}
}

func writeSettlementError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAlreadySettled):
		httpx.WriteError(ctx, w, httpx.NewError("already_settled", "order has already been paid", http.StatusBadRequest))
	case errors.Is(err, services.ErrSettlementBadSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrSettlementPaymentIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("payment_incomplete", "gateway does not report the payment as completed", http.StatusBadRequest))
	case errors.Is(err, services.ErrSettlementInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_state", "order cannot be settled from its current state", http.StatusBadRequest))
	case errors.Is(err, services.ErrSettlementInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrSettlementInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSettlementOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSettlementUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("settlement_unavailable", "settlement service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("settlement_error", "payment confirmation failed", http.StatusInternalServerError))
	}
}

type createIntentRequest struct {
	Gateway        string          `json:"gateway"`
	AddressID      string          `json:"address_id"`
	Address        *addressRequest `json:"address"`
	BillingAddress *addressRequest `json:"billing_address"`
	Notes          string          `json:"notes"`
}

type confirmPaymentRequest struct {
	OrderID   string `json:"order_id"`
	Gateway   string `json:"gateway"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type checkoutIntentResponse struct {
	OrderID      string `json:"order_id"`
	OrderNumber  string `json:"order_number"`
	Gateway      string `json:"gateway"`
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	PublicKey    string `json:"public_key,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}
