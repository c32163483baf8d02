package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

const reviewIDPrefix = "rev_"

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates a review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewUnauthorized indicates the actor is not allowed to modify the review.
	ErrReviewUnauthorized = errors.New("review: unauthorized")
	// ErrReviewConflict signals a duplicate submission for the same product.
	ErrReviewConflict = errors.New("review: conflict")
	// ErrReviewUnavailable indicates review dependencies are currently unavailable.
	ErrReviewUnavailable = errors.New("review: unavailable")
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews          repositories.ReviewRepository
	Products         repositories.ProductRepository
	Audit            auditRecorder
	Clock            func() time.Time
	IDGenerator      func() string
	Sanitizer        func(string) string
	ProfanityChecker func(string) bool
}

type reviewService struct {
	reviews   repositories.ReviewRepository
	products  repositories.ProductRepository
	audit     auditRecorder
	now       func() time.Time
	newID     func() string
	sanitize  func(string) string
	isProfane func(string) bool
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return reviewIDPrefix + ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeReviewText
	}
	profanity := deps.ProfanityChecker
	if profanity == nil {
		profanity = basicProfanityChecker
	}

	return &reviewService{
		reviews:  deps.Reviews,
		products: deps.Products,
		audit:    deps.Audit,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitize:  sanitize,
		isProfane: profanity,
	}, nil
}

// ListByProduct returns published reviews for a product, newest first.
func (s *reviewService) ListByProduct(ctx context.Context, query ReviewListQuery) (domain.CursorPage[Review], error) {
	productID := strings.TrimSpace(query.ProductID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByProduct(ctx, productID, query.Pagination)
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapReviewError(err)
	}
	return page, nil
}

// Create stores a review after sanitisation, profanity, and duplicate checks.
// One review per user per product.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	if err := s.validateCreateCommand(cmd); err != nil {
		return Review{}, err
	}

	if _, err := s.products.FindByID(ctx, cmd.ProductID); err != nil {
		if isRepoNotFound(err) {
			return Review{}, fmt.Errorf("%w: product not found", ErrReviewInvalidInput)
		}
		return Review{}, s.mapReviewError(err)
	}

	if err := s.ensureNoExistingReview(ctx, cmd.UserID, cmd.ProductID); err != nil {
		return Review{}, err
	}

	now := s.now()
	review := domain.Review{
		ID:        s.newID(),
		ProductID: cmd.ProductID,
		UserID:    cmd.UserID,
		Rating:    cmd.Rating,
		Title:     s.sanitize(cmd.Title),
		Comment:   s.sanitize(cmd.Comment),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}
	return created, nil
}

// Delete removes a review. Moderation is an admin operation.
func (s *reviewService) Delete(ctx context.Context, cmd DeleteReviewCommand) error {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	if !cmd.IsAdmin {
		return ErrReviewUnauthorized
	}

	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		return s.mapReviewError(err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			ActorID:    strings.TrimSpace(cmd.ActorID),
			Action:     "review.delete",
			EntityType: "review",
			EntityID:   reviewID,
			OccurredAt: s.now(),
		})
	}
	return nil
}

func (s *reviewService) validateCreateCommand(cmd CreateReviewCommand) error {
	if strings.TrimSpace(cmd.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}

	comment := s.sanitize(cmd.Comment)
	if comment == "" {
		return fmt.Errorf("%w: comment is required", ErrReviewInvalidInput)
	}
	if s.isProfane(comment) || s.isProfane(s.sanitize(cmd.Title)) {
		return fmt.Errorf("%w: review contains profanity", ErrReviewInvalidInput)
	}
	return nil
}

func (s *reviewService) ensureNoExistingReview(ctx context.Context, userID, productID string) error {
	_, err := s.reviews.FindByUserAndProduct(ctx, userID, productID)
	if err == nil {
		return fmt.Errorf("%w: review already exists for product", ErrReviewConflict)
	}
	if isRepoNotFound(err) {
		return nil
	}
	return s.mapReviewError(err)
}

func (s *reviewService) mapReviewError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrReviewNotFound
		case repoErr.IsConflict():
			return ErrReviewConflict
		}
	}
	return ErrReviewUnavailable
}

var defaultProfanityTerms = map[string]struct{}{
	"ass":     {},
	"asshole": {},
	"bastard": {},
	"bitch":   {},
	"bloody":  {},
	"damn":    {},
	"fuck":    {},
	"fucker":  {},
	"fucking": {},
	"shit":    {},
	"shitty":  {},
	"slut":    {},
	"whore":   {},
}

func basicProfanityChecker(input string) bool {
	if input == "" {
		return false
	}

	normalized := strings.ToLower(input)
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r))
	})

	for _, word := range words {
		if _, ok := defaultProfanityTerms[word]; ok {
			return true
		}
	}
	return false
}

// sanitizeReviewText trims whitespace, strips unsafe control characters, and normalises spacing while
// preserving intentional newlines for readability.
func sanitizeReviewText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\n' {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	result := strings.Join(lines, "\n")
	return strings.TrimSpace(result)
}
