package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/services"
)

func (h *AdminHandlers) adminListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePageQuery(r, 50, 200)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	// Admins see inactive products too.
	page, err := h.catalog.ListProducts(ctx, services.ProductListQuery{
		CategoryID: strings.TrimSpace(r.URL.Query().Get("category")),
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		OnlyActive: false,
		Pagination: pager,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      buildProductPayloads(page.Items),
		NextPageToken: page.NextCursor,
	})
}

func (h *AdminHandlers) adminGetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, "")
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, strings.TrimSpace(chi.URLParam(r, "productID")))
}

func (h *AdminHandlers) upsertProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req upsertProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.UpsertProductCommand{
		ProductID:   productID,
		ActorID:     identity.UID,
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Stock:       req.Stock,
		StockDelta:  req.StockDelta,
		IsActive:    req.IsActive,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		Tags:        req.Tags,
	}

	var product services.Product
	status := http.StatusOK
	if productID == "" {
		product, err = h.catalog.CreateProduct(ctx, cmd)
		status = http.StatusCreated
	} else {
		product, err = h.catalog.UpdateProduct(ctx, cmd)
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	err := h.catalog.DeleteProduct(ctx, services.DeleteEntityCommand{
		ID:      strings.TrimSpace(chi.URLParam(r, "productID")),
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) adminListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx, true)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Categories: buildCategoryPayloads(categories)})
}

func (h *AdminHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, "")
}

func (h *AdminHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, strings.TrimSpace(chi.URLParam(r, "categoryID")))
}

func (h *AdminHandlers) upsertCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req upsertCategoryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.UpsertCategoryCommand{
		CategoryID:  categoryID,
		ActorID:     identity.UID,
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Position:    req.Position,
		IsActive:    req.IsActive,
	}

	var category services.Category
	status := http.StatusOK
	if categoryID == "" {
		category, err = h.catalog.CreateCategory(ctx, cmd)
		status = http.StatusCreated
	} else {
		category, err = h.catalog.UpdateCategory(ctx, cmd)
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *AdminHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	err := h.catalog.DeleteCategory(ctx, services.DeleteEntityCommand{
		ID:      strings.TrimSpace(chi.URLParam(r, "categoryID")),
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertProductRequest struct {
	Slug        *string  `json:"slug"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *int64   `json:"price"`
	Currency    *string  `json:"currency"`
	Stock       *int64   `json:"stock"`
	StockDelta  *int64   `json:"stock_delta"`
	IsActive    *bool    `json:"is_active"`
	CategoryID  *string  `json:"category_id"`
	ImageURL    *string  `json:"image_url"`
	Tags        []string `json:"tags"`
}

type upsertCategoryRequest struct {
	Slug        *string `json:"slug"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Position    *int    `json:"position"`
	IsActive    *bool   `json:"is_active"`
}
