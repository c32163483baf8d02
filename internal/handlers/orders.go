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

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes buyer-facing order endpoints. Guest placement is the
// only unauthenticated operation in the group.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs the order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeGuestOrder)
	r.Group(func(authed chi.Router) {
		if h.authn != nil {
			authed.Use(h.authn.RequireFirebaseAuth())
		}
		authed.Get("/", h.listOrders)
		authed.Get("/{orderID}", h.getOrder)
		authed.Post("/{orderID}/cancel", h.cancelOrder)
	})
}

func (h *OrderHandlers) placeGuestOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req guestOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	items := make([]services.GuestOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.GuestOrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	cmd := services.PlaceGuestOrderCommand{
		Email:   strings.TrimSpace(req.Email),
		Items:   items,
		Address: req.Address.toDomain(),
		Notes:   req.Notes,
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	order, err := h.orders.PlaceGuestOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	pager, err := parsePageQuery(r, 20, 100)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListQuery{
		UserID:     identity.UID,
		Pagination: pager,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        buildOrderPayloads(page.Items),
		NextPageToken: page.NextCursor,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderReadQuery{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		UserID:  identity.UID,
		IsAdmin: identityIsAdmin(identity),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var reason string
	if r.ContentLength > 0 {
		body, err := readLimitedBody(r, maxOrderBodySize)
		if err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(ctx, w, err)
			return
		}
		if len(body) > 0 {
			var req cancelOrderRequest
			if err := json.Unmarshal(body, &req); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
				return
			}
			reason = strings.TrimSpace(req.Reason)
		}
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		UserID:  identity.UID,
		IsAdmin: identityIsAdmin(identity),
		Reason:  reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stockErr *services.StockLimitError
	if errors.As(err, &stockErr) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{
				"product_id": stockErr.ProductID,
				"available":  stockErr.Available,
			}))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderRefundFailed):
		httpx.WriteError(ctx, w, httpx.NewError("refund_failed", "gateway refund failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order request failed", http.StatusInternalServerError))
	}
}

type guestOrderRequest struct {
	Email          string                  `json:"email"`
	Items          []guestOrderItemRequest `json:"items"`
	Address        addressRequest          `json:"address"`
	BillingAddress *addressRequest         `json:"billing_address"`
	Notes          string                  `json:"notes"`
}

type guestOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"order_number"`
	UserID          string              `json:"user_id,omitempty"`
	Email           string              `json:"email"`
	Items           []orderItemPayload  `json:"items"`
	ShippingAddress addressPayload      `json:"shipping_address"`
	BillingAddress  *addressPayload     `json:"billing_address,omitempty"`
	Amounts         orderAmountsPayload `json:"amounts"`
	State           string              `json:"state"`
	Payment         orderPaymentPayload `json:"payment"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       string              `json:"created_at,omitempty"`
	UpdatedAt       string              `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type orderAmountsPayload struct {
	Subtotal int64  `json:"subtotal"`
	Shipping int64  `json:"shipping"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type orderPaymentPayload struct {
	Gateway    string `json:"gateway"`
	IntentID   string `json:"intent_id,omitempty"`
	GatewayRef string `json:"gateway_ref,omitempty"`
	SettledAt  string `json:"settled_at,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.UnitPrice * item.Quantity,
		})
	}

	payload := orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Email:           order.Email,
		Items:           items,
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Amounts: orderAmountsPayload{
			Subtotal: order.Amounts.Subtotal,
			Shipping: order.Amounts.Shipping,
			Tax:      order.Amounts.Tax,
			Total:    order.Amounts.Total,
			Currency: strings.ToUpper(strings.TrimSpace(order.Amounts.Currency)),
		},
		State: string(order.State),
		Payment: orderPaymentPayload{
			Gateway:    string(order.Payment.Gateway),
			IntentID:   order.Payment.IntentID,
			GatewayRef: order.Payment.GatewayRef,
		},
		Notes:     order.Notes,
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if order.BillingAddress != nil {
		billing := buildAddressPayload(*order.BillingAddress)
		payload.BillingAddress = &billing
	}
	if order.Payment.SettledAt != nil {
		payload.Payment.SettledAt = formatTime(*order.Payment.SettledAt)
	}
	return payload
}

func buildOrderPayloads(orders []domain.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}
