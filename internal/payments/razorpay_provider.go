package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayClients struct {
	orders   razorpayOrderAPI
	payments razorpayPaymentAPI
}

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID     string
	KeySecret string
	Logger    RazorpayLogger
	Clock     func() time.Time
	Clients   *razorpayClients
}

// RazorpayProvider implements the Provider interface using Razorpay Orders.
// The gateway order id doubles as the intent id the storefront confirms.
type RazorpayProvider struct {
	api    razorpayClients
	keyID  string
	clock  func() time.Time
	logger RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if (keyID == "" || keySecret == "") && cfg.Clients == nil {
		return nil, errors.New("razorpay: key id and key secret are required")
	}

	var clients razorpayClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		rc := razorpay.NewClient(keyID, keySecret)
		clients = razorpayClients{
			orders:   rc.Order,
			payments: rc.Payment,
		}
	}

	if clients.orders == nil || clients.payments == nil {
		return nil, errors.New("razorpay: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		api:   clients,
		keyID: keyID,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a Razorpay Order for the checkout total.
func (p *RazorpayProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, errors.New("razorpay: amount must be positive")
	}
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(strings.TrimSpace(req.Currency)),
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if len(req.Metadata) > 0 {
		notes := make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			notes[k] = v
		}
		data["notes"] = notes
	}

	order, err := p.api.orders.Create(data, nil)
	if err != nil {
		return Intent{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	orderID := stringField(order, "id")
	if orderID == "" {
		return Intent{}, errors.New("razorpay: order response misses id")
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"orderId":  orderID,
		"amount":   req.Amount,
		"currency": data["currency"],
	})

	return Intent{
		ID:        orderID,
		Provider:  "razorpay",
		PublicKey: p.keyID,
		Amount:    req.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(req.Currency)),
		Raw:       order,
	}, nil
}

// LookupPayment retrieves a Razorpay payment by its payment id.
func (p *RazorpayProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return PaymentDetails{}, errors.New("razorpay: payment id is required")
	}
	if err := ctx.Err(); err != nil {
		return PaymentDetails{}, err
	}

	payment, err := p.api.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: fetch payment: %w", err)
	}
	return p.paymentDetails(payment), nil
}

// Refund refunds a captured Razorpay payment. A nil amount refunds in full.
func (p *RazorpayProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return PaymentDetails{}, errors.New("razorpay: payment id is required")
	}
	if err := ctx.Err(); err != nil {
		return PaymentDetails{}, err
	}

	amount := int64(0)
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		payment, err := p.api.payments.Fetch(paymentID, nil, nil)
		if err != nil {
			return PaymentDetails{}, fmt.Errorf("razorpay: fetch payment for refund: %w", err)
		}
		amount = int64Field(payment, "amount")
	}
	if amount <= 0 {
		return PaymentDetails{}, errors.New("razorpay: refund amount must be positive")
	}

	data := map[string]interface{}{}
	if len(req.Metadata) > 0 {
		notes := make(map[string]interface{}, len(req.Metadata))
		for k, v := range req.Metadata {
			notes[k] = v
		}
		data["notes"] = notes
	}

	if _, err := p.api.payments.Refund(paymentID, int(amount), data, nil); err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: refund payment: %w", err)
	}
	p.logger(ctx, "payments.razorpay.payment.refunded", map[string]any{
		"paymentId": paymentID,
		"amount":    amount,
	})
	return p.LookupPayment(ctx, LookupRequest{PaymentID: paymentID})
}

func (p *RazorpayProvider) paymentDetails(payment map[string]interface{}) PaymentDetails {
	status := StatusPending
	switch strings.ToLower(stringField(payment, "status")) {
	case "captured":
		status = StatusSucceeded
	case "refunded":
		status = StatusRefunded
	case "failed":
		status = StatusFailed
	case "created", "authorized":
		status = StatusPending
	}

	var capturedAt *time.Time
	captured := status == StatusSucceeded
	if captured {
		if created := int64Field(payment, "created_at"); created > 0 {
			t := time.Unix(created, 0).UTC()
			capturedAt = &t
		} else {
			t := p.clock()
			capturedAt = &t
		}
	}
	var refundedAt *time.Time
	if status == StatusRefunded {
		t := p.clock()
		refundedAt = &t
	}

	return PaymentDetails{
		Provider:   "razorpay",
		IntentID:   stringField(payment, "order_id"),
		PaymentID:  stringField(payment, "id"),
		Status:     status,
		Amount:     int64Field(payment, "amount"),
		Currency:   strings.ToUpper(stringField(payment, "currency")),
		Captured:   captured,
		CapturedAt: capturedAt,
		RefundedAt: refundedAt,
		Raw:        payment,
	}
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if value, ok := data[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func int64Field(data map[string]interface{}, key string) int64 {
	if data == nil {
		return 0
	}
	switch value := data[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}
