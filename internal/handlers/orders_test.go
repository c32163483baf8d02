package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/services"
)

type stubOrderService struct {
	placeGuest func(ctx context.Context, cmd services.PlaceGuestOrderCommand) (domain.Order, error)
	list       func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[domain.Order], error)
	get        func(ctx context.Context, query services.OrderReadQuery) (domain.Order, error)
	cancel     func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	adminList  func(ctx context.Context, query services.AdminOrderListQuery) (domain.CursorPage[domain.Order], error)
	transition func(ctx context.Context, cmd services.OrderTransitionCommand) (domain.Order, error)
	dashboard  func(ctx context.Context, query services.DashboardQuery) (services.DashboardStats, error)
}

func (s *stubOrderService) PlaceGuestOrder(ctx context.Context, cmd services.PlaceGuestOrderCommand) (domain.Order, error) {
	if s.placeGuest == nil {
		return domain.Order{}, nil
	}
	return s.placeGuest(ctx, cmd)
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	if s.list == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.list(ctx, query)
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.OrderReadQuery) (domain.Order, error) {
	if s.get == nil {
		return domain.Order{}, nil
	}
	return s.get(ctx, query)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancel == nil {
		return domain.Order{}, nil
	}
	return s.cancel(ctx, cmd)
}

func (s *stubOrderService) AdminListOrders(ctx context.Context, query services.AdminOrderListQuery) (domain.CursorPage[domain.Order], error) {
	if s.adminList == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.adminList(ctx, query)
}

func (s *stubOrderService) TransitionState(ctx context.Context, cmd services.OrderTransitionCommand) (domain.Order, error) {
	if s.transition == nil {
		return domain.Order{}, nil
	}
	return s.transition(ctx, cmd)
}

func (s *stubOrderService) DashboardStats(ctx context.Context, query services.DashboardQuery) (services.DashboardStats, error) {
	if s.dashboard == nil {
		return services.DashboardStats{}, nil
	}
	return s.dashboard(ctx, query)
}

func newOrderRouter(svc services.OrderService) chi.Router {
	handler := NewOrderHandlers(nil, svc)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func TestPlaceGuestOrderWithoutIdentity(t *testing.T) {
	var got services.PlaceGuestOrderCommand
	svc := &stubOrderService{
		placeGuest: func(ctx context.Context, cmd services.PlaceGuestOrderCommand) (domain.Order, error) {
			got = cmd
			return domain.Order{
				ID:          "order-1",
				OrderNumber: "VL-2026-000007",
				Email:       cmd.Email,
				State:       domain.OrderStateCreated,
				Amounts:     domain.OrderAmounts{Subtotal: 219900, Shipping: 9900, Tax: 41364, Total: 271164, Currency: "inr"},
			}, nil
		},
	}
	router := newOrderRouter(svc)

	body := strings.NewReader(`{
		"email": "guest@example.com",
		"items": [{"product_id": "prod-1", "quantity": 1}],
		"address": {"name": "Asha", "phone": "+911234567890", "line1": "12 MG Road", "city": "Bengaluru", "state": "KA", "postal_code": "560001", "country": "IN"}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/orders/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Email != "guest@example.com" || len(got.Items) != 1 || got.Items[0].ProductID != "prod-1" {
		t.Fatalf("unexpected guest order command %+v", got)
	}
	var payload orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Order.OrderNumber != "VL-2026-000007" {
		t.Fatalf("unexpected order number %q", payload.Order.OrderNumber)
	}
	if payload.Order.Amounts.Currency != "INR" {
		t.Fatalf("expected uppercased currency, got %q", payload.Order.Amounts.Currency)
	}
}

func TestPlaceGuestOrderStockLimit(t *testing.T) {
	svc := &stubOrderService{
		placeGuest: func(ctx context.Context, cmd services.PlaceGuestOrderCommand) (domain.Order, error) {
			return domain.Order{}, &services.StockLimitError{ProductID: "prod-1", Available: 2}
		},
	}
	router := newOrderRouter(svc)

	body := strings.NewReader(`{"email":"guest@example.com","items":[{"product_id":"prod-1","quantity":5}],"address":{"name":"Asha","line1":"12 MG Road","city":"Bengaluru","postal_code":"560001","country":"IN"}}`)
	req := httptest.NewRequest(http.MethodPost, "/orders/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock, got %v", payload["error"])
	}
}

func TestListOrdersScopedToIdentity(t *testing.T) {
	var got services.OrderListQuery
	svc := &stubOrderService{
		list: func(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[domain.Order], error) {
			got = query
			return domain.CursorPage[domain.Order]{
				Items:      []domain.Order{{ID: "order-1", State: domain.OrderStatePaid}},
				NextCursor: "cursor-2",
			}, nil
		},
	}
	router := newOrderRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders/?pageSize=5", nil), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UserID != "user-7" || got.Pagination.PageSize != 5 {
		t.Fatalf("unexpected list query %+v", got)
	}
	var payload orderListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Orders) != 1 || payload.NextPageToken != "cursor-2" {
		t.Fatalf("unexpected list payload %+v", payload)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		get: func(ctx context.Context, query services.OrderReadQuery) (domain.Order, error) {
			if query.OrderID != "order-404" || query.UserID != "user-7" || query.IsAdmin {
				t.Fatalf("unexpected read query %+v", query)
			}
			return domain.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrderRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/orders/order-404", nil), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelOrderInvalidTransition(t *testing.T) {
	svc := &stubOrderService{
		cancel: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidTransition
		},
	}
	router := newOrderRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1/cancel", nil), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "invalid_order_state" {
		t.Fatalf("expected invalid_order_state, got %v", payload["error"])
	}
}

func TestCancelOrderPassesReason(t *testing.T) {
	var got services.CancelOrderCommand
	svc := &stubOrderService{
		cancel: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			got = cmd
			return domain.Order{ID: cmd.OrderID, State: domain.OrderStateCancelled}, nil
		},
	}
	router := newOrderRouter(svc)

	body := strings.NewReader(`{"reason":"changed my mind"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/orders/order-1/cancel", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != "order-1" || got.UserID != "user-7" || got.Reason != "changed my mind" {
		t.Fatalf("unexpected cancel command %+v", got)
	}
}
