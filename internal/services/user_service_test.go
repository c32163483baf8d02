package services

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

type stubUserRepository struct {
	upsert   func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	findByID func(ctx context.Context, userID string) (domain.UserProfile, error)
	list     func(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error)
	deleteFn func(ctx context.Context, userID string) error
}

func (s *stubUserRepository) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if s.upsert == nil {
		return profile, nil
	}
	return s.upsert(ctx, profile)
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findByID == nil {
		return domain.UserProfile{}, errRepoNotFound
	}
	return s.findByID(ctx, userID)
}

func (s *stubUserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error) {
	if s.list == nil {
		return domain.CursorPage[domain.UserProfile]{}, nil
	}
	return s.list(ctx, filter)
}

func (s *stubUserRepository) Delete(ctx context.Context, userID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID)
}

type stubWishlistRepository struct {
	list     func(ctx context.Context, userID string) ([]domain.WishlistItem, error)
	put      func(ctx context.Context, userID string, productID string, addedAt time.Time) error
	deleteFn func(ctx context.Context, userID string, productID string) error
	clear    func(ctx context.Context, userID string) error
}

func (s *stubWishlistRepository) List(ctx context.Context, userID string) ([]domain.WishlistItem, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, userID)
}

func (s *stubWishlistRepository) Put(ctx context.Context, userID string, productID string, addedAt time.Time) error {
	if s.put == nil {
		return nil
	}
	return s.put(ctx, userID, productID, addedAt)
}

func (s *stubWishlistRepository) Delete(ctx context.Context, userID string, productID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, productID)
}

func (s *stubWishlistRepository) Clear(ctx context.Context, userID string) error {
	if s.clear == nil {
		return nil
	}
	return s.clear(ctx, userID)
}

func newTestUserService(t *testing.T, deps UserServiceDeps) UserService {
	t.Helper()
	if deps.Users == nil {
		deps.Users = &stubUserRepository{}
	}
	if deps.Addresses == nil {
		deps.Addresses = &stubAddressRepository{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	}
	svc, err := NewUserService(deps)
	if err != nil {
		t.Fatalf("new user service: %v", err)
	}
	return svc
}

func TestSyncProfileCreatesNewUser(t *testing.T) {
	var saved *domain.UserProfile
	users := &stubUserRepository{
		upsert: func(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
			saved = &profile
			return profile, nil
		},
	}

	svc := newTestUserService(t, UserServiceDeps{Users: users})
	profile, err := svc.SyncProfile(context.Background(), SyncProfileCommand{
		UserID:      "uid-1",
		Email:       "Asha@Example.com",
		DisplayName: "Asha Rao",
	})
	if err != nil {
		t.Fatalf("sync profile: %v", err)
	}
	if saved == nil {
		t.Fatalf("expected upsert to be called")
	}
	if profile.Email != "asha@example.com" {
		t.Fatalf("expected lowercased email, got %q", profile.Email)
	}
	if !slices.Contains(profile.Roles, "user") {
		t.Fatalf("expected default user role, got %v", profile.Roles)
	}
}

func TestSyncProfileKeepsGrantedRoles(t *testing.T) {
	users := &stubUserRepository{
		findByID: func(context.Context, string) (domain.UserProfile, error) {
			return domain.UserProfile{
				ID:        "uid-1",
				Email:     "asha@example.com",
				Roles:     []string{"user", "admin"},
				CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	svc := newTestUserService(t, UserServiceDeps{Users: users})
	profile, err := svc.SyncProfile(context.Background(), SyncProfileCommand{
		UserID: "uid-1",
		Email:  "asha@example.com",
		Roles:  []string{"user"},
	})
	if err != nil {
		t.Fatalf("sync profile: %v", err)
	}
	if !slices.Contains(profile.Roles, "admin") {
		t.Fatalf("expected admin role to survive sync, got %v", profile.Roles)
	}
	if profile.CreatedAt.Year() != 2025 {
		t.Fatalf("expected original creation time to be kept, got %v", profile.CreatedAt)
	}
}

func TestUpdateUserRejectsUnknownRole(t *testing.T) {
	users := &stubUserRepository{
		findByID: func(context.Context, string) (domain.UserProfile, error) {
			return domain.UserProfile{ID: "uid-1", Roles: []string{"user"}}, nil
		},
	}

	svc := newTestUserService(t, UserServiceDeps{Users: users})
	_, err := svc.UpdateUser(context.Background(), UpdateUserCommand{
		UserID:  "uid-1",
		ActorID: "admin-1",
		Roles:   []string{"root"},
	})
	if !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput, got %v", err)
	}
}

func TestUpdateUserDisablesAccount(t *testing.T) {
	users := &stubUserRepository{
		findByID: func(context.Context, string) (domain.UserProfile, error) {
			return domain.UserProfile{ID: "uid-1", Roles: []string{"user"}}, nil
		},
	}
	audit := &stubAuditRecorder{}

	svc := newTestUserService(t, UserServiceDeps{Users: users, Audit: audit})
	disabled := true
	profile, err := svc.UpdateUser(context.Background(), UpdateUserCommand{
		UserID:   "uid-1",
		ActorID:  "admin-1",
		Disabled: &disabled,
	})
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if !profile.Disabled {
		t.Fatalf("expected disabled profile")
	}
	if len(audit.records) != 1 || audit.records[0].Action != "user.update" {
		t.Fatalf("expected user.update audit record, got %+v", audit.records)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	deletedAddresses := []string{}
	wishlistCleared := false
	cartCleared := false
	profileDeleted := false

	users := &stubUserRepository{
		findByID: func(context.Context, string) (domain.UserProfile, error) {
			return domain.UserProfile{ID: "uid-1"}, nil
		},
		deleteFn: func(context.Context, string) error {
			profileDeleted = true
			return nil
		},
	}
	addresses := &stubAddressRepository{
		list: func(context.Context, string) ([]domain.Address, error) {
			return []domain.Address{{ID: "addr-1"}, {ID: "addr-2"}}, nil
		},
		deleteFn: func(_ context.Context, _ string, addressID string) error {
			deletedAddresses = append(deletedAddresses, addressID)
			return nil
		},
	}
	wishlists := &stubWishlistRepository{
		clear: func(context.Context, string) error {
			wishlistCleared = true
			return nil
		},
	}
	carts := &stubCartRepository{
		clear: func(context.Context, string) error {
			cartCleared = true
			return nil
		},
	}

	svc := newTestUserService(t, UserServiceDeps{Users: users, Addresses: addresses, Wishlists: wishlists, Carts: carts})
	if err := svc.DeleteUser(context.Background(), DeleteUserCommand{UserID: "uid-1", ActorID: "admin-1"}); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if len(deletedAddresses) != 2 {
		t.Fatalf("expected both addresses deleted, got %v", deletedAddresses)
	}
	if !wishlistCleared || !cartCleared || !profileDeleted {
		t.Fatalf("expected full cascade, got wishlist=%v cart=%v profile=%v", wishlistCleared, cartCleared, profileDeleted)
	}
}

func TestUpsertAddressFirstBecomesDefault(t *testing.T) {
	addresses := &stubAddressRepository{
		list: func(context.Context, string) ([]domain.Address, error) {
			return nil, nil
		},
		upsert: func(_ context.Context, _ string, _ *string, addr domain.Address) (domain.Address, error) {
			return addr, nil
		},
	}

	svc := newTestUserService(t, UserServiceDeps{Addresses: addresses})
	saved, err := svc.UpsertAddress(context.Background(), UpsertAddressCommand{
		UserID:  "uid-1",
		Address: testCheckoutAddress(),
	})
	if err != nil {
		t.Fatalf("upsert address: %v", err)
	}
	if !saved.IsDefault {
		t.Fatalf("expected first address to become default")
	}
}

func TestUpsertAddressRejectsForeignAddress(t *testing.T) {
	addresses := &stubAddressRepository{
		get: func(context.Context, string, string) (domain.Address, error) {
			return domain.Address{}, errRepoNotFound
		},
	}

	svc := newTestUserService(t, UserServiceDeps{Addresses: addresses})
	addressID := "addr-owned-by-someone-else"
	_, err := svc.UpsertAddress(context.Background(), UpsertAddressCommand{
		UserID:    "uid-1",
		AddressID: &addressID,
		Address:   testCheckoutAddress(),
	})
	if !errors.Is(err, ErrUserAddressNotFound) {
		t.Fatalf("expected ErrUserAddressNotFound, got %v", err)
	}
}

func TestDeleteAddressPromotesNewDefault(t *testing.T) {
	var promoted *domain.Address
	addresses := &stubAddressRepository{
		get: func(context.Context, string, string) (domain.Address, error) {
			return domain.Address{ID: "addr-1", IsDefault: true}, nil
		},
		list: func(context.Context, string) ([]domain.Address, error) {
			return []domain.Address{
				{ID: "addr-3", CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
				{ID: "addr-2", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			}, nil
		},
		upsert: func(_ context.Context, _ string, _ *string, addr domain.Address) (domain.Address, error) {
			promoted = &addr
			return addr, nil
		},
	}

	svc := newTestUserService(t, UserServiceDeps{Addresses: addresses})
	if err := svc.DeleteAddress(context.Background(), DeleteAddressCommand{UserID: "uid-1", AddressID: "addr-1"}); err != nil {
		t.Fatalf("delete address: %v", err)
	}
	if promoted == nil || promoted.ID != "addr-2" || !promoted.IsDefault {
		t.Fatalf("expected oldest address promoted to default, got %+v", promoted)
	}
}
