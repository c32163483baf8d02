package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartNotFound indicates the requested cart or cart line does not exist.
	ErrCartNotFound = errors.New("cart service: not found")
	// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
	ErrCartUnavailable = errors.New("cart service: unavailable")
)

// StockLimitError reports a requested quantity above current availability.
// Its message is shown to buyers verbatim.
type StockLimitError struct {
	ProductID string
	Available int64
}

// Error implements the error interface.
func (e *StockLimitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("Only %d items available in stock", e.Available)
}

// CartServiceDeps wires the repositories backing cart operations.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Products        repositories.ProductRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(ctx context.Context, event string, fields map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
	newID    func() string
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now: func() time.Time {
			return clock().UTC()
		},
		currency: currency,
		logger:   logger,
		newID:    idGen,
	}, nil
}

// GetCart loads the user's cart. A user without a cart gets an empty view;
// the document itself is only created on the first add.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return s.view(s.emptyCart(uid)), nil
		}
		return CartView{}, s.translateRepoError(err)
	}
	return s.view(s.normaliseCart(cart, uid)), nil
}

// AddItem appends a line or merges into an existing line for the same
// product. The merged quantity is capped by current stock and the unit price
// is stamped from the product at add time.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, fmt.Errorf("%w: product not found", ErrCartInvalidInput)
		}
		return CartView{}, s.translateRepoError(err)
	}
	if !product.IsActive {
		return CartView{}, fmt.Errorf("%w: product is not available", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	exists := true
	if err != nil {
		if isRepoNotFound(err) {
			cart = s.emptyCart(uid)
			exists = false
		} else {
			return CartView{}, s.translateRepoError(err)
		}
	}
	cart = s.normaliseCart(cart, uid)

	items := cloneCartItems(cart.Items)
	idx := indexOfCartProduct(items, productID)

	requested := cmd.Quantity
	if idx >= 0 {
		requested += items[idx].Quantity
	}
	if requested > product.Stock {
		return CartView{}, &StockLimitError{ProductID: product.ID, Available: product.Stock}
	}

	if idx >= 0 {
		items[idx].Quantity = requested
		items[idx].UnitPrice = product.Price
		items[idx].Name = product.Name
		items[idx].ImageURL = product.ImageURL
	} else {
		items = append(items, domain.CartItem{
			ID:        s.newID(),
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  cmd.Quantity,
		})
	}

	cart.Items = items
	cart.UpdatedAt = s.now()

	var saved domain.Cart
	if exists {
		saved, err = s.carts.ReplaceItems(ctx, uid, items)
	} else {
		saved, err = s.carts.UpsertCart(ctx, cart)
	}
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"userId":    uid,
		"productId": product.ID,
		"quantity":  cmd.Quantity,
	})
	return s.view(s.normaliseCart(saved, uid)), nil
}

// UpdateItemQuantity sets an absolute quantity on an existing line, re-checking
// stock and re-stamping the unit price. The persisted quantity is untouched
// when the new quantity exceeds stock.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if uid == "" || itemID == "" {
		return CartView{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, ErrCartNotFound
		}
		return CartView{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, itemID)
	if idx < 0 {
		return CartView{}, ErrCartNotFound
	}

	product, err := s.products.FindByID(ctx, items[idx].ProductID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, fmt.Errorf("%w: product no longer exists", ErrCartInvalidInput)
		}
		return CartView{}, s.translateRepoError(err)
	}
	if !product.IsActive {
		return CartView{}, fmt.Errorf("%w: product is not available", ErrCartInvalidInput)
	}
	if cmd.Quantity > product.Stock {
		return CartView{}, &StockLimitError{ProductID: product.ID, Available: product.Stock}
	}

	items[idx].Quantity = cmd.Quantity
	items[idx].UnitPrice = product.Price
	items[idx].Name = product.Name
	items[idx].ImageURL = product.ImageURL

	saved, err := s.carts.ReplaceItems(ctx, uid, items)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.view(s.normaliseCart(saved, uid)), nil
}

// RemoveItem drops a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if uid == "" || itemID == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, ErrCartNotFound
		}
		return CartView{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, itemID)
	if idx < 0 {
		return CartView{}, ErrCartNotFound
	}
	items = append(items[:idx], items[idx+1:]...)

	saved, err := s.carts.ReplaceItems(ctx, uid, items)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.view(s.normaliseCart(saved, uid)), nil
}

// ClearCart removes every line. Clearing an absent cart is a no-op.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.carts.Clear(ctx, uid); err != nil && !isRepoNotFound(err) {
		return s.translateRepoError(err)
	}
	return nil
}

// ValidateCart reports checkout readiness. Lookup failures fold into the
// report instead of failing the call.
func (s *cartService) ValidateCart(ctx context.Context, userID string) (CartValidationResult, error) {
	if s == nil || s.carts == nil {
		return CartValidationResult{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartValidationResult{}, ErrCartInvalidInput
	}

	result := CartValidationResult{IsValid: true}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			result.IsValid = false
			result.Errors = append(result.Errors, "cart is empty")
			return result, nil
		}
		result.IsValid = false
		result.Errors = append(result.Errors, "cart could not be loaded")
		return result, nil
	}
	cart = s.normaliseCart(cart, uid)

	if len(cart.Items) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "cart is empty")
		return result, nil
	}

	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		s.logger(ctx, "cart.validate_lookup_failed", map[string]any{
			"userId": uid,
			"error":  err.Error(),
		})
		result.IsValid = false
		result.Errors = append(result.Errors, "product availability could not be verified")
		return result, nil
	}

	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.IsActive {
			result.IsValid = false
			result.UnavailableItems = append(result.UnavailableItems, domain.CartValidationIssue{
				ProductID: item.ProductID,
				Name:      item.Name,
				Requested: item.Quantity,
				Reason:    "product is no longer available",
			})
			result.Errors = append(result.Errors, fmt.Sprintf("%s is no longer available", item.Name))
			continue
		}
		if item.Quantity > product.Stock {
			result.IsValid = false
			result.InsufficientStockItems = append(result.InsufficientStockItems, domain.CartValidationIssue{
				ProductID: item.ProductID,
				Name:      product.Name,
				Requested: item.Quantity,
				Available: product.Stock,
				Reason:    fmt.Sprintf("Only %d items available in stock", product.Stock),
			})
			result.Errors = append(result.Errors, fmt.Sprintf("%s: Only %d items available in stock", product.Name, product.Stock))
		}
	}

	return result, nil
}

func (s *cartService) emptyCart(userID string) domain.Cart {
	return domain.Cart{
		ID:        userID,
		UserID:    userID,
		Currency:  s.currency,
		Items:     []domain.CartItem{},
		UpdatedAt: s.now(),
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, userID string) domain.Cart {
	if cart.ID = strings.TrimSpace(cart.ID); cart.ID == "" {
		cart.ID = userID
	}
	if cart.UserID = strings.TrimSpace(cart.UserID); cart.UserID == "" {
		cart.UserID = userID
	}
	cart.Currency = strings.ToUpper(strings.TrimSpace(cart.Currency))
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = s.now()
	}
	return cart
}

func (s *cartService) view(cart domain.Cart) CartView {
	return CartView{Cart: cart, Totals: computeCartTotals(cart)}
}

// computeCartTotals derives totals from persisted items, never cached values.
func computeCartTotals(cart domain.Cart) CartTotals {
	totals := CartTotals{Currency: cart.Currency}
	for _, item := range cart.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			continue
		}
		totals.Subtotal += item.UnitPrice * item.Quantity
		totals.ItemCount += item.Quantity
	}
	return totals
}

func cloneCartItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return []domain.CartItem{}
	}
	dup := make([]domain.CartItem, len(items))
	copy(dup, items)
	return dup
}

func indexOfCartItem(items []domain.CartItem, itemID string) int {
	target := strings.TrimSpace(itemID)
	if target == "" {
		return -1
	}
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ID), target) {
			return i
		}
	}
	return -1
}

func indexOfCartProduct(items []domain.CartItem, productID string) int {
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ProductID), productID) {
			return i
		}
	}
	return -1
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: concurrent modification", ErrCartInvalidInput)
		}
	}
	return ErrCartUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
