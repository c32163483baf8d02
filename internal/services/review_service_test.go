package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/velora-shop/api/internal/domain"
)

type stubReviewRepository struct {
	insert               func(ctx context.Context, review domain.Review) (domain.Review, error)
	findByUserAndProduct func(ctx context.Context, userID string, productID string) (domain.Review, error)
	listByProduct        func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	deleteFn             func(ctx context.Context, reviewID string) error
}

func (s *stubReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if s.insert == nil {
		return review, nil
	}
	return s.insert(ctx, review)
}

func (s *stubReviewRepository) FindByUserAndProduct(ctx context.Context, userID string, productID string) (domain.Review, error) {
	if s.findByUserAndProduct == nil {
		return domain.Review{}, errRepoNotFound
	}
	return s.findByUserAndProduct(ctx, userID, productID)
}

func (s *stubReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByProduct == nil {
		return domain.CursorPage[domain.Review]{}, nil
	}
	return s.listByProduct(ctx, productID, pager)
}

func (s *stubReviewRepository) Delete(ctx context.Context, reviewID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, reviewID)
}

func newTestReviewService(t *testing.T, reviews *stubReviewRepository, deps ReviewServiceDeps) ReviewService {
	t.Helper()
	if reviews == nil {
		reviews = &stubReviewRepository{}
	}
	deps.Reviews = reviews
	if deps.Products == nil {
		deps.Products = &stubProductRepository{
			findByID: func(_ context.Context, productID string) (domain.Product, error) {
				return domain.Product{ID: productID, IsActive: true}, nil
			},
		}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "rev_test" }
	}
	svc, err := NewReviewService(deps)
	if err != nil {
		t.Fatalf("new review service: %v", err)
	}
	return svc
}

func TestCreateReviewSanitizesComment(t *testing.T) {
	var inserted *domain.Review
	reviews := &stubReviewRepository{
		insert: func(_ context.Context, review domain.Review) (domain.Review, error) {
			inserted = &review
			return review, nil
		},
	}

	svc := newTestReviewService(t, reviews, ReviewServiceDeps{})
	review, err := svc.Create(context.Background(), CreateReviewCommand{
		ProductID: "prod-1",
		UserID:    "user-1",
		Rating:    4,
		Title:     "  Lovely drape ",
		Comment:   "Fits  well.\r\nGreat   fabric.\x00",
	})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if inserted == nil {
		t.Fatalf("expected insert to be called")
	}
	if review.Title != "Lovely drape" {
		t.Fatalf("unexpected title %q", review.Title)
	}
	if review.Comment != "Fits well.\nGreat fabric." {
		t.Fatalf("unexpected comment %q", review.Comment)
	}
}

func TestCreateReviewRejectsBadRating(t *testing.T) {
	svc := newTestReviewService(t, nil, ReviewServiceDeps{})
	for _, rating := range []int{0, 6, -1} {
		_, err := svc.Create(context.Background(), CreateReviewCommand{
			ProductID: "prod-1",
			UserID:    "user-1",
			Rating:    rating,
			Comment:   "fine",
		})
		if !errors.Is(err, ErrReviewInvalidInput) {
			t.Fatalf("rating %d: expected ErrReviewInvalidInput, got %v", rating, err)
		}
	}
}

func TestCreateReviewRejectsProfanity(t *testing.T) {
	svc := newTestReviewService(t, nil, ReviewServiceDeps{})
	_, err := svc.Create(context.Background(), CreateReviewCommand{
		ProductID: "prod-1",
		UserID:    "user-1",
		Rating:    1,
		Comment:   "this shit ripped after one wash",
	})
	if !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected ErrReviewInvalidInput, got %v", err)
	}
}

func TestCreateReviewOnePerUserPerProduct(t *testing.T) {
	reviews := &stubReviewRepository{
		findByUserAndProduct: func(context.Context, string, string) (domain.Review, error) {
			return domain.Review{ID: "rev_existing"}, nil
		},
	}

	svc := newTestReviewService(t, reviews, ReviewServiceDeps{})
	_, err := svc.Create(context.Background(), CreateReviewCommand{
		ProductID: "prod-1",
		UserID:    "user-1",
		Rating:    5,
		Comment:   "again",
	})
	if !errors.Is(err, ErrReviewConflict) {
		t.Fatalf("expected ErrReviewConflict, got %v", err)
	}
}

func TestCreateReviewRequiresExistingProduct(t *testing.T) {
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, errRepoNotFound
		},
	}

	svc := newTestReviewService(t, nil, ReviewServiceDeps{Products: products})
	_, err := svc.Create(context.Background(), CreateReviewCommand{
		ProductID: "gone",
		UserID:    "user-1",
		Rating:    5,
		Comment:   "great",
	})
	if !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected ErrReviewInvalidInput, got %v", err)
	}
}

func TestDeleteReviewRequiresAdmin(t *testing.T) {
	deleted := false
	reviews := &stubReviewRepository{
		deleteFn: func(context.Context, string) error {
			deleted = true
			return nil
		},
	}
	audit := &stubAuditRecorder{}

	svc := newTestReviewService(t, reviews, ReviewServiceDeps{Audit: audit})

	if err := svc.Delete(context.Background(), DeleteReviewCommand{ReviewID: "rev_1", ActorID: "user-1"}); !errors.Is(err, ErrReviewUnauthorized) {
		t.Fatalf("expected ErrReviewUnauthorized for non-admin, got %v", err)
	}
	if deleted {
		t.Fatalf("expected no delete for non-admin")
	}

	if err := svc.Delete(context.Background(), DeleteReviewCommand{ReviewID: "rev_1", ActorID: "admin-1", IsAdmin: true}); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected delete for admin")
	}
	if len(audit.records) != 1 || audit.records[0].Action != "review.delete" {
		t.Fatalf("expected audit record, got %+v", audit.records)
	}
}
