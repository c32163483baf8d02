package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/velora-shop/api/internal/domain"
	pfirestore "github.com/velora-shop/api/internal/platform/firestore"
	"github.com/velora-shop/api/internal/repositories"
)

const wishlistCollectionPattern = "users/%s/wishlist"

// WishlistRepository persists saved products per user, one document per
// product keyed by product id.
type WishlistRepository struct {
	provider *pfirestore.Provider
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{provider: provider}, nil
}

// List returns wishlist entries ordered by most recent addition.
func (r *WishlistRepository) List(ctx context.Context, userID string) ([]domain.WishlistItem, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("addedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var items []domain.WishlistItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("wishlist.list", err)
		}
		var doc wishlistDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode wishlist entry %s: %w", snap.Ref.ID, err)
		}
		items = append(items, domain.WishlistItem{
			ProductID: snap.Ref.ID,
			AddedAt:   doc.AddedAt,
		})
	}
	return items, nil
}

// Put stores the entry, keeping the original addedAt on repeat saves.
func (r *WishlistRepository) Put(ctx context.Context, userID string, productID string, addedAt time.Time) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return errors.New("wishlist repository: product id is required")
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(pid)
		if _, err := tx.Get(docRef); err == nil {
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		return tx.Set(docRef, wishlistDocument{
			ProductID: pid,
			AddedAt:   addedAt.UTC(),
		})
	})
	if err != nil {
		return pfirestore.WrapError("wishlist.put", err)
	}
	return nil
}

// Delete removes a single entry.
func (r *WishlistRepository) Delete(ctx context.Context, userID string, productID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return errors.New("wishlist repository: product id is required")
	}
	if _, err := coll.Doc(pid).Delete(ctx); err != nil {
		return pfirestore.WrapError("wishlist.delete", err)
	}
	return nil
}

// Clear removes every entry for the user.
func (r *WishlistRepository) Clear(ctx context.Context, userID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}

	iter := coll.Select().Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return pfirestore.WrapError("wishlist.clear", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return pfirestore.WrapError("wishlist.clear", err)
		}
	}
	return nil
}

func (r *WishlistRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("wishlist repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("wishlist repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(wishlistCollectionPattern, uid)), nil
}

type wishlistDocument struct {
	ProductID string    `firestore:"productId"`
	AddedAt   time.Time `firestore:"addedAt"`
}

// Ensure interface compliance.
var _ repositories.WishlistRepository = (*WishlistRepository)(nil)
