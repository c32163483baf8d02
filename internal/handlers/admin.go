package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velora-shop/api/internal/platform/auth"
	"github.com/velora-shop/api/internal/platform/httpx"
	"github.com/velora-shop/api/internal/platform/webhooklog"
	"github.com/velora-shop/api/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers groups the role-restricted management surface. Every route
// requires an authenticated admin; destructive routes require super_admin.
type AdminHandlers struct {
	authn      *auth.Authenticator
	users      services.UserService
	catalog    services.CatalogService
	orders     services.OrderService
	uploads    services.UploadService
	audit      services.AuditLogService
	webhookLog webhooklog.Store
}

// AdminHandlersDeps wires the services backing the admin surface.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Users         services.UserService
	Catalog       services.CatalogService
	Orders        services.OrderService
	Uploads       services.UploadService
	Audit         services.AuditLogService
	WebhookLog    webhooklog.Store
}

// NewAdminHandlers constructs the admin handlers.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:      deps.Authenticator,
		users:      deps.Users,
		catalog:    deps.Catalog,
		orders:     deps.Orders,
		uploads:    deps.Uploads,
		audit:      deps.Audit,
		webhookLog: deps.WebhookLog,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Use(auth.RequireRoles(auth.RoleAdmin, auth.RoleSuperAdmin))

	superOnly := auth.RequireRoles(auth.RoleSuperAdmin)

	r.Route("/users", func(ur chi.Router) {
		ur.Get("/", h.listUsers)
		ur.Get("/{userID}", h.getUser)
		ur.Patch("/{userID}", h.updateUser)
		ur.With(superOnly).Delete("/{userID}", h.deleteUser)
	})

	r.Route("/products", func(pr chi.Router) {
		pr.Get("/", h.adminListProducts)
		pr.Post("/", h.createProduct)
		pr.Get("/{productID}", h.adminGetProduct)
		pr.Patch("/{productID}", h.updateProduct)
		pr.With(superOnly).Delete("/{productID}", h.deleteProduct)
	})

	r.Route("/categories", func(cr chi.Router) {
		cr.Get("/", h.adminListCategories)
		cr.Post("/", h.createCategory)
		cr.Patch("/{categoryID}", h.updateCategory)
		cr.With(superOnly).Delete("/{categoryID}", h.deleteCategory)
	})

	r.Route("/orders", func(or chi.Router) {
		or.Get("/", h.adminListOrders)
		or.Get("/{orderID}", h.adminGetOrder)
		or.Patch("/{orderID}", h.transitionOrder)
	})

	r.Get("/stats", h.dashboardStats)
	r.Get("/webhooks/logs", h.webhookLogs)
	r.Get("/audit-logs", h.auditLogs)
	r.Post("/uploads/product-image", h.issueProductImageUpload)
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePageQuery(r, 50, 200)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.UserListQuery{
		Role:       strings.TrimSpace(r.URL.Query().Get("role")),
		Pagination: pager,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("disabled")); raw != "" {
		disabled, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "disabled must be a boolean", http.StatusBadRequest))
			return
		}
		query.Disabled = &disabled
	}

	page, err := h.users.ListUsers(ctx, query)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	profiles := make([]profilePayload, 0, len(page.Items))
	for _, profile := range page.Items {
		profiles = append(profiles, buildProfilePayload(profile))
	}
	writeJSONResponse(w, http.StatusOK, adminUserListResponse{
		Users:         profiles,
		NextPageToken: page.NextCursor,
	})
}

func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}

	profile, err := h.users.GetUser(ctx, strings.TrimSpace(chi.URLParam(r, "userID")))
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *AdminHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
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

	var req adminUpdateUserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	profile, err := h.users.UpdateUser(ctx, services.UpdateUserCommand{
		UserID:   strings.TrimSpace(chi.URLParam(r, "userID")),
		ActorID:  identity.UID,
		Roles:    req.Roles,
		Disabled: req.Disabled,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *AdminHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	err := h.users.DeleteUser(ctx, services.DeleteUserCommand{
		UserID:  strings.TrimSpace(chi.URLParam(r, "userID")),
		ActorID: identity.UID,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) webhookLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhookLog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_log_unavailable", "webhook log store is unavailable", http.StatusServiceUnavailable))
		return
	}

	limit := webhooklog.DefaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = value
	}

	entries, err := h.webhookLog.Recent(ctx, limit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_log_unavailable", "webhook log store is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload := make([]webhookLogPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, webhookLogPayload{
			ID:         entry.ID,
			Gateway:    string(entry.Gateway),
			EventType:  entry.EventType,
			Reference:  entry.Reference,
			Status:     entry.Status,
			ReceivedAt: formatTime(entry.ReceivedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, webhookLogListResponse{Logs: payload})
}

func (h *AdminHandlers) auditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_log_unavailable", "audit log service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePageQuery(r, 50, 200)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.audit.List(ctx, services.AuditLogQuery{
		EntityType: strings.TrimSpace(r.URL.Query().Get("entity_type")),
		EntityID:   strings.TrimSpace(r.URL.Query().Get("entity_id")),
		ActorID:    strings.TrimSpace(r.URL.Query().Get("actor_id")),
		Action:     strings.TrimSpace(r.URL.Query().Get("action")),
		Pagination: pager,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_log_error", "audit log request failed", http.StatusInternalServerError))
		return
	}

	entries := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		entries = append(entries, auditLogPayload{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			Action:     entry.Action,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Metadata:   entry.Metadata,
			OccurredAt: formatTime(entry.OccurredAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, auditLogListResponse{
		Entries:       entries,
		NextPageToken: page.NextCursor,
	})
}

func (h *AdminHandlers) issueProductImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_unavailable", "upload service is unavailable", http.StatusServiceUnavailable))
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

	var req productImageUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	upload, err := h.uploads.IssueProductImageUpload(ctx, services.ProductImageUploadCommand{
		ActorID:     identity.UID,
		ProductID:   strings.TrimSpace(req.ProductID),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		if errors.Is(err, services.ErrUploadInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("upload_unavailable", "signed upload could not be issued", http.StatusServiceUnavailable))
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, signedUploadResponse{
		URL:        upload.URL,
		Method:     upload.Method,
		Headers:    upload.Headers,
		ObjectPath: upload.ObjectPath,
		ExpiresAt:  formatTime(upload.ExpiresAt),
	})
}

type adminUpdateUserRequest struct {
	Roles    []string `json:"roles"`
	Disabled *bool    `json:"disabled"`
}

type adminUserListResponse struct {
	Users         []profilePayload `json:"users"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type webhookLogListResponse struct {
	Logs []webhookLogPayload `json:"logs"`
}

type webhookLogPayload struct {
	ID         string `json:"id"`
	Gateway    string `json:"gateway"`
	EventType  string `json:"event_type,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Status     string `json:"status"`
	ReceivedAt string `json:"received_at"`
}

type auditLogListResponse struct {
	Entries       []auditLogPayload `json:"entries"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt string         `json:"occurred_at"`
}

type productImageUploadRequest struct {
	ProductID   string `json:"product_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type signedUploadResponse struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ObjectPath string            `json:"object_path"`
	ExpiresAt  string            `json:"expires_at,omitempty"`
}
