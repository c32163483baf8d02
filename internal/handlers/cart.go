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

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Post("/", h.addItem)
	r.Delete("/", h.clearCart)
	r.Post("/validate", h.validateCart)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	view, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	view, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemCommand{
		UserID:   identity.UID,
		ItemID:   strings.TrimSpace(chi.URLParam(r, "itemID")),
		Quantity: req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID: identity.UID,
		ItemID: strings.TrimSpace(chi.URLParam(r, "itemID")),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(view))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, identity.UID); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) validateCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	result, err := h.carts.ValidateCart(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildValidationPayload(result))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
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
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart request failed", http.StatusInternalServerError))
	}
}

func buildCartResponse(view services.CartView) cartResponse {
	items := make([]cartItemPayload, 0, len(view.Cart.Items))
	for _, item := range view.Cart.Items {
		items = append(items, cartItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.UnitPrice * item.Quantity,
		})
	}

	return cartResponse{
		Cart: cartPayload{
			ID:        view.Cart.ID,
			UserID:    view.Cart.UserID,
			Currency:  strings.ToUpper(strings.TrimSpace(view.Cart.Currency)),
			Items:     items,
			UpdatedAt: formatTime(view.Cart.UpdatedAt),
		},
		Totals: cartTotalsPayload{
			Subtotal:  view.Totals.Subtotal,
			ItemCount: view.Totals.ItemCount,
			Currency:  strings.ToUpper(strings.TrimSpace(view.Totals.Currency)),
		},
	}
}

func buildValidationPayload(result domain.CartValidationResult) cartValidationPayload {
	payload := cartValidationPayload{
		IsValid:                result.IsValid,
		Errors:                 result.Errors,
		UnavailableItems:       buildValidationIssues(result.UnavailableItems),
		InsufficientStockItems: buildValidationIssues(result.InsufficientStockItems),
	}
	if payload.Errors == nil {
		payload.Errors = []string{}
	}
	return payload
}

func buildValidationIssues(issues []domain.CartValidationIssue) []cartIssuePayload {
	out := make([]cartIssuePayload, 0, len(issues))
	for _, issue := range issues {
		out = append(out, cartIssuePayload{
			ProductID: issue.ProductID,
			Name:      issue.Name,
			Requested: issue.Requested,
			Available: issue.Available,
			Reason:    issue.Reason,
		})
	}
	return out
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

type cartResponse struct {
	Cart   cartPayload       `json:"cart"`
	Totals cartTotalsPayload `json:"totals"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Currency  string            `json:"currency"`
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type cartTotalsPayload struct {
	Subtotal  int64  `json:"subtotal"`
	ItemCount int64  `json:"item_count"`
	Currency  string `json:"currency"`
}

type cartValidationPayload struct {
	IsValid                bool               `json:"is_valid"`
	Errors                 []string           `json:"errors"`
	UnavailableItems       []cartIssuePayload `json:"unavailable_items"`
	InsufficientStockItems []cartIssuePayload `json:"insufficient_stock_items"`
}

type cartIssuePayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Requested int64  `json:"requested,omitempty"`
	Available int64  `json:"available"`
	Reason    string `json:"reason"`
}
