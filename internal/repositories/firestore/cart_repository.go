package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
	pfirestore "github.com/velora-shop/api/internal/platform/firestore"
	"github.com/velora-shop/api/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository persists one cart document per user with line items embedded.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// UpsertCart writes the full cart snapshot keyed by the owning user id.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := fromDomainCart(cart)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.upsert", err)
	}

	saved := doc.toDomain(uid)
	if !result.UpdateTime.IsZero() {
		saved.UpdatedAt = result.UpdateTime
	}
	return saved, nil
}

// GetCart loads the user's cart. A missing document surfaces as a not-found
// repository error which callers treat as an empty cart.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := doc.Data.toDomain(doc.ID)
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// ReplaceItems swaps the stored line items while keeping the cart header.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	existing, err := r.base.Get(ctx, uid)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); !ok || !repoErr.IsNotFound() {
			return domain.Cart{}, err
		}
		existing.Data = cartDocument{UserID: uid}
	}

	doc := existing.Data
	doc.UserID = uid
	doc.Items = fromDomainCartItems(items)
	doc.UpdatedAt = time.Now().UTC()

	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.replaceItems", err)
	}

	saved := doc.toDomain(uid)
	if !result.UpdateTime.IsZero() {
		saved.UpdatedAt = result.UpdateTime
	}
	return saved, nil
}

// Clear deletes the cart document entirely.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.clear", err)
	}
	return nil
}

type cartDocument struct {
	UserID    string             `firestore:"userId"`
	Currency  string             `firestore:"currency,omitempty"`
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string `firestore:"id"`
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"qty"`
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return domain.Cart{
		ID:        id,
		UserID:    d.UserID,
		Currency:  d.Currency,
		Items:     items,
		UpdatedAt: d.UpdatedAt,
	}
}

func fromDomainCart(cart domain.Cart) cartDocument {
	return cartDocument{
		UserID:    strings.TrimSpace(cart.UserID),
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     fromDomainCartItems(cart.Items),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
}

func fromDomainCartItems(items []domain.CartItem) []cartItemDocument {
	docs := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, cartItemDocument{
			ID:        strings.TrimSpace(item.ID),
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			ImageURL:  strings.TrimSpace(item.ImageURL),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return docs
}

// Ensure interface compliance.
var _ repositories.CartRepository = (*CartRepository)(nil)
