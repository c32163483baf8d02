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
	"github.com/velora-shop/api/internal/platform/auth"
	"github.com/velora-shop/api/internal/services"
)

func newMeRouter(svc services.UserService) chi.Router {
	handler := NewMeHandlers(nil, svc)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)
	return router
}

func TestGetProfileReturnsExisting(t *testing.T) {
	svc := &stubUserService{
		getUser: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.UserProfile{ID: "user-7", Email: "user-7@example.com", Roles: []string{"user"}}, nil
		},
		syncProfile: func(ctx context.Context, cmd services.SyncProfileCommand) (domain.UserProfile, error) {
			t.Fatal("sync must not run when the profile exists")
			return domain.UserProfile{}, nil
		},
	}
	router := newMeRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/me/", nil), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload profileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Profile.ID != "user-7" || payload.Profile.Email != "user-7@example.com" {
		t.Fatalf("unexpected profile %+v", payload.Profile)
	}
}

func TestGetProfileProvisionsOnFirstSighting(t *testing.T) {
	var synced services.SyncProfileCommand
	svc := &stubUserService{
		getUser: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{}, services.ErrUserNotFound
		},
		syncProfile: func(ctx context.Context, cmd services.SyncProfileCommand) (domain.UserProfile, error) {
			synced = cmd
			return domain.UserProfile{ID: cmd.UserID, Email: cmd.Email, Roles: cmd.Roles}, nil
		},
	}
	router := newMeRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodGet, "/me/", nil), "user-7", auth.RoleUser)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if synced.UserID != "user-7" || synced.Email != "user-7@example.com" {
		t.Fatalf("unexpected sync command %+v", synced)
	}
	if len(synced.Roles) != 1 || synced.Roles[0] != auth.RoleUser {
		t.Fatalf("token roles must seed the profile, got %+v", synced.Roles)
	}
}

func TestCreateAddressReturnsCreated(t *testing.T) {
	var got services.UpsertAddressCommand
	svc := &stubUserService{
		upsertAddress: func(ctx context.Context, cmd services.UpsertAddressCommand) (domain.Address, error) {
			got = cmd
			addr := cmd.Address
			addr.ID = "addr-1"
			addr.UserID = cmd.UserID
			return addr, nil
		},
	}
	router := newMeRouter(svc)

	body := strings.NewReader(`{"name":"Asha","phone":"+911234567890","line1":"12 MG Road","city":"Bengaluru","state":"KA","postal_code":"560001","country":"IN","is_default":true}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/me/addresses/", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UserID != "user-7" || got.AddressID != nil || !got.IsDefault {
		t.Fatalf("unexpected upsert command %+v", got)
	}
	if got.Address.City != "Bengaluru" || got.Address.PostalCode != "560001" {
		t.Fatalf("unexpected address %+v", got.Address)
	}
}

func TestUpdateAddressUsesPathID(t *testing.T) {
	var got services.UpsertAddressCommand
	svc := &stubUserService{
		upsertAddress: func(ctx context.Context, cmd services.UpsertAddressCommand) (domain.Address, error) {
			got = cmd
			return cmd.Address, nil
		},
	}
	router := newMeRouter(svc)

	body := strings.NewReader(`{"name":"Asha","line1":"14 MG Road","city":"Bengaluru","postal_code":"560001","country":"IN"}`)
	req := withTestIdentity(httptest.NewRequest(http.MethodPut, "/me/addresses/addr-1", body), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.AddressID == nil || *got.AddressID != "addr-1" {
		t.Fatalf("expected address id from path, got %+v", got.AddressID)
	}
}

func TestDeleteAddressNotFound(t *testing.T) {
	svc := &stubUserService{
		deleteAddress: func(ctx context.Context, cmd services.DeleteAddressCommand) error {
			return services.ErrUserAddressNotFound
		},
	}
	router := newMeRouter(svc)

	req := withTestIdentity(httptest.NewRequest(http.MethodDelete, "/me/addresses/addr-9", nil), "user-7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != "address_not_found" {
		t.Fatalf("expected address_not_found, got %v", payload["error"])
	}
}

func TestMeRequiresIdentity(t *testing.T) {
	router := newMeRouter(&stubUserService{})

	req := httptest.NewRequest(http.MethodGet, "/me/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
