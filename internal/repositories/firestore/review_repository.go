package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
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

const reviewsCollection = "reviews"

// ReviewRepository persists product reviews, enforcing one review per user
// and product pair.
type ReviewRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[reviewDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[reviewDocument](provider, reviewsCollection, nil, nil)
	return &ReviewRepository{provider: provider, base: base}, nil
}

// Insert stores the review after confirming the user has not already
// reviewed the product, both inside one transaction.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	uid := strings.TrimSpace(review.UserID)
	pid := strings.TrimSpace(review.ProductID)
	if uid == "" || pid == "" {
		return domain.Review{}, errors.New("review repository: user id and product id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Review{}, err
	}

	doc := fromDomainReview(review)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		query := client.Collection(reviewsCollection).
			Where("userId", "==", uid).
			Where("productId", "==", pid).
			Limit(1)
		snaps, err := tx.Documents(query).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if len(snaps) > 0 {
			return status.Error(codes.AlreadyExists, fmt.Sprintf("review for product %s by user %s already exists", pid, uid))
		}
		return tx.Create(client.Collection(reviewsCollection).Doc(id), doc)
	})
	if err != nil {
		return domain.Review{}, pfirestore.WrapError("reviews.insert", err)
	}
	return doc.toDomain(id), nil
}

// FindByUserAndProduct loads the user's review of a product if any.
func (r *ReviewRepository) FindByUserAndProduct(ctx context.Context, userID string, productID string) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Review{}, err
	}

	iter := client.Collection(reviewsCollection).
		Where("userId", "==", strings.TrimSpace(userID)).
		Where("productId", "==", strings.TrimSpace(productID)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Review{}, pfirestore.WrapError("reviews.findByUserAndProduct", status.Error(codes.NotFound, "review not found"))
	}
	if err != nil {
		return domain.Review{}, pfirestore.WrapError("reviews.findByUserAndProduct", err)
	}
	var doc reviewDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Review{}, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByProduct returns a page of reviews for a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: product id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	query := client.Collection(reviewsCollection).
		Where("productId", "==", pid).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		decoded, err := decodeReviewPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("reviews.list: invalid page token: %w", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var reviews []domain.Review
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
		}
		reviews = append(reviews, doc.toDomain(snap.Ref.ID))
	}

	nextCursor := ""
	if len(reviews) > pageSize {
		reviews = reviews[:pageSize]
		last := reviews[len(reviews)-1]
		encoded, err := encodeReviewPageToken(reviewPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
		}
		nextCursor = encoded
	}

	return domain.CursorPage[domain.Review]{Items: reviews, NextCursor: nextCursor}, nil
}

// Delete removes the review document.
func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("reviews.delete", err)
	}
	return nil
}

type reviewDocument struct {
	ProductID string    `firestore:"productId"`
	UserID    string    `firestore:"userId"`
	Rating    int       `firestore:"rating"`
	Title     string    `firestore:"title,omitempty"`
	Comment   string    `firestore:"comment,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID:        id,
		ProductID: d.ProductID,
		UserID:    d.UserID,
		Rating:    d.Rating,
		Title:     d.Title,
		Comment:   d.Comment,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func fromDomainReview(review domain.Review) reviewDocument {
	return reviewDocument{
		ProductID: strings.TrimSpace(review.ProductID),
		UserID:    strings.TrimSpace(review.UserID),
		Rating:    review.Rating,
		Title:     strings.TrimSpace(review.Title),
		Comment:   strings.TrimSpace(review.Comment),
		CreatedAt: review.CreatedAt.UTC(),
		UpdatedAt: review.UpdatedAt.UTC(),
	}
}

type reviewPageToken struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodeReviewPageToken(token reviewPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode review page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeReviewPageToken(encoded string) (*reviewPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode review page token: %w", err)
	}
	var token reviewPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode review page token json: %w", err)
	}
	return &token, nil
}

// Ensure interface compliance.
var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
