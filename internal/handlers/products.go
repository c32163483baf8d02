package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/services"
)

// ProductHandlers exposes the public product catalog. Reviews are nested
// under each product.
type ProductHandlers struct {
	catalog services.CatalogService
	reviews *ReviewHandlers
}

// NewProductHandlers constructs the public product handlers.
func NewProductHandlers(catalog services.CatalogService, reviews *ReviewHandlers) *ProductHandlers {
	return &ProductHandlers{
		catalog: catalog,
		reviews: reviews,
	}
}

// Routes wires the /products endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
	if h.reviews != nil {
		r.Route("/{productID}/reviews", h.reviews.Routes)
	}
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePageQuery(r, 24, 100)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.ProductListQuery{
		CategoryID: strings.TrimSpace(r.URL.Query().Get("category")),
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		OnlyActive: true,
		Pagination: pager,
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("min_price")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "min_price must be a non-negative integer", http.StatusBadRequest))
			return
		}
		query.MinPrice = &value
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("max_price")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "max_price must be a non-negative integer", http.StatusBadRequest))
			return
		}
		query.MaxPrice = &value
	}

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      buildProductPayloads(page.Items),
		NextPageToken: page.NextCursor,
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	// The path segment is accepted as either the document id or the slug.
	key := strings.TrimSpace(chi.URLParam(r, "productID"))
	product, err := h.catalog.GetProduct(ctx, key)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "catalog entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog request failed", http.StatusInternalServerError))
	}
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency"`
	Stock       int64    `json:"stock"`
	InStock     bool     `json:"in_stock"`
	IsActive    bool     `json:"is_active"`
	CategoryID  string   `json:"category_id,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Slug:        product.Slug,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(product.Currency)),
		Stock:       product.Stock,
		InStock:     product.Stock > 0,
		IsActive:    product.IsActive,
		CategoryID:  product.CategoryID,
		ImageURL:    product.ImageURL,
		Tags:        product.Tags,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func buildProductPayloads(products []domain.Product) []productPayload {
	out := make([]productPayload, 0, len(products))
	for _, product := range products {
		out = append(out, buildProductPayload(product))
	}
	return out
}
