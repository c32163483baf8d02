package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velora-shop/api/internal/platform/auth"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/services"
)

// WishlistHandlers exposes the authenticated saved-product list.
type WishlistHandlers struct {
	authn    *auth.Authenticator
	wishlist services.WishlistService
}

// NewWishlistHandlers constructs the wishlist handlers.
func NewWishlistHandlers(authn *auth.Authenticator, wishlist services.WishlistService) *WishlistHandlers {
	return &WishlistHandlers{
		authn:    authn,
		wishlist: wishlist,
	}
}

// Routes wires the /wishlist endpoints onto the provided router.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listWishlist)
	r.Put("/{productID}", h.addToWishlist)
	r.Delete("/{productID}", h.removeFromWishlist)
}

func (h *WishlistHandlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	entries, err := h.wishlist.List(ctx, identity.UID)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}

	items := make([]wishlistItemPayload, 0, len(entries))
	for _, entry := range entries {
		item := wishlistItemPayload{
			ProductID: entry.Item.ProductID,
			AddedAt:   formatTime(entry.Item.AddedAt),
		}
		if entry.Product != nil {
			product := buildProductPayload(*entry.Product)
			item.Product = &product
		}
		items = append(items, item)
	}

	writeJSONResponse(w, http.StatusOK, wishlistResponse{Items: items})
}

func (h *WishlistHandlers) addToWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if err := h.wishlist.Add(ctx, identity.UID, productID); err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WishlistHandlers) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if err := h.wishlist.Remove(ctx, identity.UID, productID); err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeWishlistError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrWishlistInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWishlistUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_error", "wishlist request failed", http.StatusInternalServerError))
	}
}

type wishlistResponse struct {
	Items []wishlistItemPayload `json:"items"`
}

type wishlistItemPayload struct {
	ProductID string          `json:"product_id"`
	AddedAt   string          `json:"added_at,omitempty"`
	Product   *productPayload `json:"product,omitempty"`
}
