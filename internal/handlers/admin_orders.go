package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/services"
)

func (h *AdminHandlers) adminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePageQuery(r, 50, 200)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.AdminOrderListQuery{
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
		Pagination: pager,
	}
	for _, raw := range r.URL.Query()["state"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			query.States = append(query.States, domain.OrderState(part))
		}
	}

	page, err := h.orders.AdminListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        buildOrderPayloads(page.Items),
		NextPageToken: page.NextCursor,
	})
}

func (h *AdminHandlers) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderReadQuery{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		IsAdmin: true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
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

	var req orderTransitionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	state := strings.ToLower(strings.TrimSpace(req.State))
	if state == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "state is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionState(ctx, services.OrderTransitionCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		To:      domain.OrderState(state),
		ActorID: identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) dashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.DashboardQuery{}
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "since must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		query.Since = &since
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("low_stock_threshold")); raw != "" {
		threshold, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || threshold < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "low_stock_threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		query.LowStockThreshold = threshold
	}

	stats, err := h.orders.DashboardStats(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	counts := make(map[string]int64, len(stats.CountsByState))
	for state, count := range stats.CountsByState {
		counts[string(state)] = count
	}

	writeJSONResponse(w, http.StatusOK, dashboardStatsResponse{
		CountsByState: counts,
		Revenue:       stats.Revenue,
		Currency:      strings.ToUpper(strings.TrimSpace(stats.Currency)),
		LowStock:      buildProductPayloads(stats.LowStock),
		GeneratedAt:   formatTime(stats.GeneratedAt),
	})
}

type orderTransitionRequest struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
}

type dashboardStatsResponse struct {
	CountsByState map[string]int64 `json:"counts_by_state"`
	Revenue       int64            `json:"revenue"`
	Currency      string           `json:"currency"`
	LowStock      []productPayload `json:"low_stock"`
	GeneratedAt   string           `json:"generated_at,omitempty"`
}
