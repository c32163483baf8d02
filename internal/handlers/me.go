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

const maxAddressBodySize = 16 * 1024

// MeHandlers exposes the authenticated profile and address book.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before invoking the user service.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Route("/addresses", func(ar chi.Router) {
		ar.Get("/", h.listAddresses)
		ar.Post("/", h.createAddress)
		ar.Put("/{addressID}", h.updateAddress)
		ar.Delete("/{addressID}", h.deleteAddress)
	})
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	profile, err := h.users.GetUser(ctx, identity.UID)
	if errors.Is(err, services.ErrUserNotFound) {
		// First sighting of this account: mirror the token claims into a profile.
		profile, err = h.users.SyncProfile(ctx, services.SyncProfileCommand{
			UserID: identity.UID,
			Email:  identity.Email,
			Roles:  identity.Roles,
		})
	}
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	addresses, err := h.users.ListAddresses(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	payload := make([]addressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payload = append(payload, buildAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, addressListResponse{Addresses: payload})
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	h.upsertAddress(w, r, nil)
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	h.upsertAddress(w, r, &addressID)
}

func (h *MeHandlers) upsertAddress(w http.ResponseWriter, r *http.Request, addressID *string) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAddressBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	addr, err := h.users.UpsertAddress(ctx, services.UpsertAddressCommand{
		UserID:    identity.UID,
		AddressID: addressID,
		Address:   req.toDomain(),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if addressID == nil {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, addressResponse{Address: buildAddressPayload(addr)})
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	err := h.users.DeleteAddress(ctx, services.DeleteAddressCommand{
		UserID:    identity.UID,
		AddressID: strings.TrimSpace(chi.URLParam(r, "addressID")),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "profile request failed", http.StatusInternalServerError))
	}
}

type profileResponse struct {
	Profile profilePayload `json:"profile"`
}

type profilePayload struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles"`
	Disabled    bool     `json:"disabled"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func buildProfilePayload(profile domain.UserProfile) profilePayload {
	roles := profile.Roles
	if roles == nil {
		roles = []string{}
	}
	return profilePayload{
		ID:          profile.ID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		Roles:       roles,
		Disabled:    profile.Disabled,
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}
}

type addressResponse struct {
	Address addressPayload `json:"address"`
}

type addressListResponse struct {
	Addresses []addressPayload `json:"addresses"`
}
