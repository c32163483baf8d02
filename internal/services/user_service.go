package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/platform/auth"
	"github.com/velora-shop/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates the caller supplied invalid user parameters.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the user profile does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserAddressNotFound indicates the requested address does not exist for the user.
	ErrUserAddressNotFound = errors.New("user: address not found")
	// ErrUserUnavailable indicates user dependencies are currently unavailable.
	ErrUserUnavailable = errors.New("user: unavailable")
)

// knownRoles is the closed set of assignable roles.
var knownRoles = map[string]struct{}{
	auth.RoleUser:       {},
	auth.RoleAdmin:      {},
	auth.RoleSuperAdmin: {},
}

// UserServiceDeps bundles the dependencies required to construct a user service instance.
type UserServiceDeps struct {
	Users     repositories.UserRepository
	Addresses repositories.AddressRepository
	Wishlists repositories.WishlistRepository
	Carts     repositories.CartRepository
	Audit     auditRecorder
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	addresses repositories.AddressRepository
	wishlists repositories.WishlistRepository
	carts     repositories.CartRepository
	audit     auditRecorder
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("user service: address repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:     deps.Users,
		addresses: deps.Addresses,
		wishlists: deps.Wishlists,
		carts:     deps.Carts,
		audit:     deps.Audit,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// SyncProfile mirrors the identity-provider account into the shop-side profile.
// Roles already granted in the store win over token claims so an admin does not
// lose the role on their next login.
func (s *userService) SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	now := s.now()
	profile := domain.UserProfile{
		ID:          userID,
		Email:       strings.ToLower(strings.TrimSpace(cmd.Email)),
		DisplayName: strings.TrimSpace(cmd.DisplayName),
		Roles:       normalizeRoles(cmd.Roles),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := s.users.FindByID(ctx, userID)
	switch {
	case err == nil:
		profile.Roles = mergeRoles(existing.Roles, profile.Roles)
		profile.Disabled = existing.Disabled
		profile.CreatedAt = existing.CreatedAt
		if profile.Email == "" {
			profile.Email = existing.Email
		}
		if profile.DisplayName == "" {
			profile.DisplayName = existing.DisplayName
		}
	case isRepoNotFound(err):
		if len(profile.Roles) == 0 {
			profile.Roles = []string{auth.RoleUser}
		}
	default:
		return UserProfile{}, s.translateUserError(err)
	}

	saved, err := s.users.Upsert(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateUserError(err)
	}
	s.logger(ctx, "user.synced", map[string]any{"userId": saved.ID})
	return saved, nil
}

// GetUser fetches a single profile by identity-provider UID.
func (s *userService) GetUser(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return UserProfile{}, s.translateUserError(err)
	}
	return profile, nil
}

// ListUsers serves the admin user listing.
func (s *userService) ListUsers(ctx context.Context, query UserListQuery) (domain.CursorPage[UserProfile], error) {
	filter := repositories.UserListFilter{
		Disabled:   query.Disabled,
		Pagination: query.Pagination,
	}
	if role := strings.ToLower(strings.TrimSpace(query.Role)); role != "" {
		if _, ok := knownRoles[role]; !ok {
			return domain.CursorPage[UserProfile]{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, role)
		}
		filter.Role = &role
	}

	page, err := s.users.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[UserProfile]{}, s.translateUserError(err)
	}
	return page, nil
}

// UpdateUser applies admin changes to roles and the disabled flag.
func (s *userService) UpdateUser(ctx context.Context, cmd UpdateUserCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return UserProfile{}, s.translateUserError(err)
	}

	changes := map[string]any{}
	if cmd.Roles != nil {
		roles := normalizeRoles(cmd.Roles)
		for _, role := range roles {
			if _, ok := knownRoles[role]; !ok {
				return UserProfile{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, role)
			}
		}
		if len(roles) == 0 {
			roles = []string{auth.RoleUser}
		}
		changes["roles"] = roles
		profile.Roles = roles
	}
	if cmd.Disabled != nil {
		changes["disabled"] = *cmd.Disabled
		profile.Disabled = *cmd.Disabled
	}
	if len(changes) == 0 {
		return profile, nil
	}

	profile.UpdatedAt = s.now()
	saved, err := s.users.Upsert(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateUserError(err)
	}

	s.recordUserAudit(ctx, cmd.ActorID, "user.update", saved.ID, changes)
	return saved, nil
}

// DeleteUser removes the profile together with its addresses, wishlist, and
// cart. The identity-provider account is managed separately.
func (s *userService) DeleteUser(ctx context.Context, cmd DeleteUserCommand) error {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return s.translateUserError(err)
	}

	addresses, err := s.addresses.List(ctx, userID)
	if err != nil && !isRepoNotFound(err) {
		return s.translateUserError(err)
	}
	for _, addr := range addresses {
		if err := s.addresses.Delete(ctx, userID, addr.ID); err != nil && !isRepoNotFound(err) {
			return s.translateUserError(err)
		}
	}
	if s.wishlists != nil {
		if err := s.wishlists.Clear(ctx, userID); err != nil && !isRepoNotFound(err) {
			s.logger(ctx, "user.wishlist_clear_failed", map[string]any{"userId": userID, "error": err.Error()})
		}
	}
	if s.carts != nil {
		if err := s.carts.Clear(ctx, userID); err != nil && !isRepoNotFound(err) {
			s.logger(ctx, "user.cart_clear_failed", map[string]any{"userId": userID, "error": err.Error()})
		}
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return s.translateUserError(err)
	}

	s.recordUserAudit(ctx, cmd.ActorID, "user.delete", userID, nil)
	return nil
}

// ListAddresses returns the address book for a user.
func (s *userService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	items, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, s.translateUserError(err)
	}
	return items, nil
}

// UpsertAddress creates or replaces an address. The first address of a user
// becomes the default automatically.
func (s *userService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if err := validateAddress(cmd.Address); err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrUserInvalidInput, err)
	}

	var addressID *string
	if cmd.AddressID != nil {
		trimmed := strings.TrimSpace(*cmd.AddressID)
		if trimmed == "" {
			return Address{}, fmt.Errorf("%w: address id cannot be empty", ErrUserInvalidInput)
		}
		// Ownership check: the lookup is scoped to the user.
		if _, err := s.addresses.Get(ctx, userID, trimmed); err != nil {
			if isRepoNotFound(err) {
				return Address{}, ErrUserAddressNotFound
			}
			return Address{}, s.translateUserError(err)
		}
		addressID = &trimmed
	}

	addr := cmd.Address
	addr.UserID = userID
	addr.IsDefault = cmd.IsDefault
	addr.UpdatedAt = s.now()
	if addressID == nil {
		existing, err := s.addresses.List(ctx, userID)
		if err != nil && !isRepoNotFound(err) {
			return Address{}, s.translateUserError(err)
		}
		if len(existing) == 0 {
			addr.IsDefault = true
		}
		addr.CreatedAt = addr.UpdatedAt
	}

	saved, err := s.addresses.Upsert(ctx, userID, addressID, addr)
	if err != nil {
		return Address{}, s.translateUserError(err)
	}
	return saved, nil
}

// DeleteAddress removes an address from the user's book.
func (s *userService) DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error {
	userID := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if userID == "" || addressID == "" {
		return fmt.Errorf("%w: user id and address id are required", ErrUserInvalidInput)
	}

	target, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		if isRepoNotFound(err) {
			return ErrUserAddressNotFound
		}
		return s.translateUserError(err)
	}
	if err := s.addresses.Delete(ctx, userID, addressID); err != nil {
		if isRepoNotFound(err) {
			return ErrUserAddressNotFound
		}
		return s.translateUserError(err)
	}

	if !target.IsDefault {
		return nil
	}

	// Promote the oldest remaining address to default.
	remaining, err := s.addresses.List(ctx, userID)
	if err != nil || len(remaining) == 0 {
		return nil
	}
	next := remaining[0]
	for _, addr := range remaining[1:] {
		if addr.CreatedAt.Before(next.CreatedAt) {
			next = addr
		}
	}
	next.IsDefault = true
	next.UpdatedAt = s.now()
	if _, err := s.addresses.Upsert(ctx, userID, &next.ID, next); err != nil {
		s.logger(ctx, "user.default_address_promote_failed", map[string]any{"userId": userID, "error": err.Error()})
	}
	return nil
}

func (s *userService) recordUserAudit(ctx context.Context, actorID, action, userID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		ActorID:    strings.TrimSpace(actorID),
		Action:     action,
		EntityType: "user",
		EntityID:   userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	})
}

func (s *userService) translateUserError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrUserNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: conflicting write", ErrUserInvalidInput)
		}
	}
	return ErrUserUnavailable
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func mergeRoles(existing, incoming []string) []string {
	merged := normalizeRoles(append(append([]string(nil), existing...), incoming...))
	if len(merged) == 0 {
		return []string{auth.RoleUser}
	}
	return merged
}
