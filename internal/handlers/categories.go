package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/services"
)

// CategoryHandlers exposes the public storefront navigation tree.
type CategoryHandlers struct {
	catalog services.CatalogService
}

// NewCategoryHandlers constructs the public category handlers.
func NewCategoryHandlers(catalog services.CatalogService) *CategoryHandlers {
	return &CategoryHandlers{catalog: catalog}
}

// Routes wires the /categories endpoints onto the provided router.
func (h *CategoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Get("/{slug}", h.getCategory)
}

func (h *CategoryHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx, false)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, categoryListResponse{
		Categories: buildCategoryPayloads(categories),
	})
}

func (h *CategoryHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	category, err := h.catalog.GetCategory(ctx, slug)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type categoryListResponse struct {
	Categories []categoryPayload `json:"categories"`
}

type categoryPayload struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:          category.ID,
		Slug:        category.Slug,
		Name:        category.Name,
		Description: category.Description,
		Position:    category.Position,
		IsActive:    category.IsActive,
		CreatedAt:   formatTime(category.CreatedAt),
		UpdatedAt:   formatTime(category.UpdatedAt),
	}
}

func buildCategoryPayloads(categories []domain.Category) []categoryPayload {
	out := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		out = append(out, buildCategoryPayload(category))
	}
	return out
}
