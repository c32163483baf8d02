package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pstorage "github.com/velora-shop/api/internal/platform/storage"
)

const (
	defaultMaxProductImageSize = int64(10 * 1024 * 1024) // 10 MiB
	defaultUploadExpiry        = 15 * time.Minute
)

// allowedProductImageTypes is the closed set of content types accepted for
// product imagery.
var allowedProductImageTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}

var (
	// ErrUploadInvalidInput indicates the caller provided an invalid upload request.
	ErrUploadInvalidInput = errors.New("upload: invalid input")
	// ErrUploadUnavailable indicates the storage backend could not issue a URL.
	ErrUploadUnavailable = errors.New("upload: unavailable")
)

// signedURLIssuer is the slice of the storage client the service needs.
type signedURLIssuer interface {
	SignedURL(ctx context.Context, bucket, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error)
}

// UploadServiceDeps wires dependencies for the upload service implementation.
type UploadServiceDeps struct {
	Storage   signedURLIssuer
	Bucket    string
	MaxSize   int64
	ExpiresIn time.Duration
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type uploadService struct {
	storage   signedURLIssuer
	bucket    string
	maxSize   int64
	expiresIn time.Duration
	logger    func(context.Context, string, map[string]any)
}

// NewUploadService constructs an UploadService issuing signed product image uploads.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	if deps.Storage == nil {
		return nil, errors.New("upload service: storage client is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("upload service: bucket is required")
	}

	maxSize := deps.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxProductImageSize
	}
	expiresIn := deps.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultUploadExpiry
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &uploadService{
		storage:   deps.Storage,
		bucket:    bucket,
		maxSize:   maxSize,
		expiresIn: expiresIn,
		logger:    logger,
	}, nil
}

// IssueProductImageUpload validates the request and mints a signed PUT URL for
// a product image object.
func (s *uploadService) IssueProductImageUpload(ctx context.Context, cmd ProductImageUploadCommand) (SignedUpload, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return SignedUpload{}, fmt.Errorf("%w: product id is required", ErrUploadInvalidInput)
	}
	fileName := strings.TrimSpace(cmd.FileName)
	if fileName == "" {
		return SignedUpload{}, fmt.Errorf("%w: file name is required", ErrUploadInvalidInput)
	}

	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if !uploadContentTypeAllowed(contentType) {
		return SignedUpload{}, fmt.Errorf("%w: content type %q not allowed", ErrUploadInvalidInput, cmd.ContentType)
	}
	if cmd.SizeBytes <= 0 {
		return SignedUpload{}, fmt.Errorf("%w: size must be positive", ErrUploadInvalidInput)
	}
	if cmd.SizeBytes > s.maxSize {
		return SignedUpload{}, fmt.Errorf("%w: size exceeds maximum (%d)", ErrUploadInvalidInput, s.maxSize)
	}

	objectPath, err := pstorage.BuildObjectPath(pstorage.PurposeProductImage, pstorage.PathParams{
		ProductID: productID,
		FileName:  fileName,
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("%w: %v", ErrUploadInvalidInput, err)
	}

	result, err := s.storage.SignedURL(ctx, s.bucket, objectPath, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			Method:              "PUT",
			ContentType:         contentType,
			AllowedContentTypes: allowedProductImageTypes,
			MaxSize:             s.maxSize,
			ExpiresIn:           s.expiresIn,
		},
	})
	if err != nil {
		s.logger(ctx, "upload.sign_failed", map[string]any{
			"actorId": cmd.ActorID,
			"object":  objectPath,
			"error":   err.Error(),
		})
		return SignedUpload{}, ErrUploadUnavailable
	}

	s.logger(ctx, "upload.issued", map[string]any{
		"actorId": cmd.ActorID,
		"object":  objectPath,
		"size":    cmd.SizeBytes,
	})

	return SignedUpload{
		URL:        result.URL,
		Method:     result.Method,
		Headers:    result.Headers,
		ObjectPath: objectPath,
		ExpiresAt:  result.ExpiresAt,
	}, nil
}

func uploadContentTypeAllowed(contentType string) bool {
	if contentType == "" {
		return false
	}
	for _, candidate := range allowedProductImageTypes {
		if contentType == candidate {
			return true
		}
	}
	return false
}
