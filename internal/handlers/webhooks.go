package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/payments"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/platform/webhooklog"
	"github.com/velora-shop/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

const (
	webhookStatusAccepted = "accepted"
	webhookStatusRejected = "rejected"
	webhookStatusIgnored  = "ignored"
	webhookStatusFailed   = "failed"
)

// WebhookHandlers receives gateway callbacks. Signature verification happens
// before any order mutation; every receipt is appended to the webhook log,
// accepted or not.
type WebhookHandlers struct {
	settlement     services.SettlementService
	log            webhooklog.Store
	stripeSecret   string
	razorpaySecret string
	clock          func() time.Time
	idGenerator    func() string
}

// WebhookHandlersDeps wires the webhook handler dependencies.
type WebhookHandlersDeps struct {
	Settlement     services.SettlementService
	Log            webhooklog.Store
	StripeSecret   string
	RazorpaySecret string
	Clock          func() time.Time
	IDGenerator    func() string
}

// NewWebhookHandlers constructs the gateway webhook handlers.
func NewWebhookHandlers(deps WebhookHandlersDeps) *WebhookHandlers {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &WebhookHandlers{
		settlement:     deps.Settlement,
		log:            deps.Log,
		stripeSecret:   strings.TrimSpace(deps.StripeSecret),
		razorpaySecret: strings.TrimSpace(deps.RazorpaySecret),
		clock:          func() time.Time { return clock().UTC() },
		idGenerator:    idGen,
	}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
	r.Post("/razorpay", h.handleRazorpay)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		h.appendLog(ctx, domain.GatewayStripe, "", "", webhookStatusRejected)
		writeBodyError(ctx, w, err)
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		h.appendLog(ctx, domain.GatewayStripe, "", "", webhookStatusRejected)
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	eventType := string(event.Type)
	var intent stripe.PaymentIntent
	if event.Data != nil && len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			h.appendLog(ctx, domain.GatewayStripe, eventType, "", webhookStatusRejected)
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed event payload", http.StatusBadRequest))
			return
		}
	}

	orderID := strings.TrimSpace(intent.Metadata["orderId"])

	switch eventType {
	case "payment_intent.succeeded":
		h.settle(ctx, w, domain.GatewayStripe, eventType, orderID, intent.ID, "stripe_webhook")
	case "payment_intent.payment_failed", "payment_intent.canceled":
		h.fail(ctx, w, domain.GatewayStripe, eventType, orderID, "stripe_webhook")
	default:
		h.appendLog(ctx, domain.GatewayStripe, eventType, intent.ID, webhookStatusIgnored)
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
	}
}

func (h *WebhookHandlers) handleRazorpay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		h.appendLog(ctx, domain.GatewayRazorpay, "", "", webhookStatusRejected)
		writeBodyError(ctx, w, err)
		return
	}

	if !payments.VerifyRazorpayWebhookSignature(body, r.Header.Get("X-Razorpay-Signature"), h.razorpaySecret) {
		h.appendLog(ctx, domain.GatewayRazorpay, "", "", webhookStatusRejected)
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	var event razorpayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.appendLog(ctx, domain.GatewayRazorpay, "", "", webhookStatusRejected)
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed event payload", http.StatusBadRequest))
		return
	}

	payment := event.Payload.Payment.Entity
	orderID := strings.TrimSpace(payment.Notes["orderId"])

	switch event.Event {
	case "payment.captured", "order.paid":
		h.settle(ctx, w, domain.GatewayRazorpay, event.Event, orderID, payment.ID, "razorpay_webhook")
	case "payment.failed":
		h.fail(ctx, w, domain.GatewayRazorpay, event.Event, orderID, "razorpay_webhook")
	default:
		h.appendLog(ctx, domain.GatewayRazorpay, event.Event, payment.ID, webhookStatusIgnored)
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
	}
}

// settle runs the shared settlement path. Replays and unknown orders are
// acknowledged so the gateway stops retrying; transient failures return 500
// to request a retry.
func (h *WebhookHandlers) settle(ctx context.Context, w http.ResponseWriter, gateway domain.PaymentGateway, eventType, orderID, gatewayRef, source string) {
	if orderID == "" {
		h.appendLog(ctx, gateway, eventType, gatewayRef, webhookStatusIgnored)
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
		return
	}
	if h.settlement == nil {
		h.appendLog(ctx, gateway, eventType, gatewayRef, webhookStatusFailed)
		httpx.WriteError(ctx, w, httpx.NewError("settlement_unavailable", "settlement service is unavailable", http.StatusInternalServerError))
		return
	}

	_, err := h.settlement.SettlePayment(ctx, services.SettlePaymentCommand{
		OrderID:    orderID,
		GatewayRef: gatewayRef,
		Source:     source,
	})
	switch {
	case err == nil:
		h.appendLog(ctx, gateway, eventType, gatewayRef, webhookStatusAccepted)
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
	case errors.Is(err, services.ErrAlreadySettled):
		h.appendLog(ctx, gateway, eventType, gatewayRef, webhookStatusIgnored)
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
	case errors.Is(err, services.ErrSettlementOrderNotFound),
		errors.Is(err, services.ErrSettlementInvalidState),
		errors.Is(err, services.ErrSettlementInsufficientStock):
		h.appendLog(ctx, gateway, eventType, gatewayRef, webhookStatusFailed)
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
	default:
		h.appendLog(ctx, gateway, eventType, gatewayRef, webhookStatusFailed)
		httpx.WriteError(ctx, w, httpx.NewError("settlement_error", "settlement failed", http.StatusInternalServerError))
	}
}

func (h *WebhookHandlers) fail(ctx context.Context, w http.ResponseWriter, gateway domain.PaymentGateway, eventType, orderID, source string) {
	if orderID == "" || h.settlement == nil {
		h.appendLog(ctx, gateway, eventType, "", webhookStatusIgnored)
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
		return
	}

	_, err := h.settlement.MarkPaymentFailed(ctx, services.FailPaymentCommand{
		OrderID: orderID,
		Reason:  eventType,
		Source:  source,
	})
	switch {
	case err == nil:
		h.appendLog(ctx, gateway, eventType, "", webhookStatusAccepted)
	case errors.Is(err, services.ErrAlreadySettled),
		errors.Is(err, services.ErrSettlementInvalidState),
		errors.Is(err, services.ErrSettlementOrderNotFound):
		h.appendLog(ctx, gateway, eventType, "", webhookStatusIgnored)
	default:
		h.appendLog(ctx, gateway, eventType, "", webhookStatusFailed)
		httpx.WriteError(ctx, w, httpx.NewError("settlement_error", "failure transition failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
}

func (h *WebhookHandlers) appendLog(ctx context.Context, gateway domain.PaymentGateway, eventType, reference, status string) {
	if h.log == nil {
		return
	}
	// Log failures never affect the webhook response.
	_ = h.log.Append(ctx, domain.WebhookLogEntry{
		ID:         h.idGenerator(),
		Gateway:    gateway,
		EventType:  eventType,
		Reference:  reference,
		Status:     status,
		ReceivedAt: h.clock(),
	})
}

type webhookAckResponse struct {
	Received bool `json:"received"`
}

type razorpayWebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Status  string            `json:"status"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}
