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

const productsCollection = "products"

// ProductRepository persists catalog products in Firestore. Stock mutations
// run inside transactions so concurrent checkouts cannot oversell.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, base: base}, nil
}

// Insert stores a new product. The document id must already be assigned.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainProduct(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update overwrites the stored product snapshot.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	if _, err := r.base.Set(ctx, id, fromDomainProduct(product)); err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	return nil
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindBySlug resolves a product through its unique storefront slug.
func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	trimmed := strings.ToLower(strings.TrimSpace(slug))
	if trimmed == "" {
		return domain.Product{}, errors.New("product repository: slug is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	iter := client.Collection(productsCollection).Where("slug", "==", trimmed).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Product{}, pfirestore.WrapError("products.findBySlug", status.Error(codes.NotFound, fmt.Sprintf("product slug %s not found", trimmed)))
	}
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.findBySlug", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByIDs fetches a batch of products keyed by id. Missing ids are absent
// from the returned map rather than reported as errors.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	results := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return results, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		refs = append(refs, client.Collection(productsCollection).Doc(trimmed))
	}
	if len(refs) == 0 {
		return results, nil
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIds", err)
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		results[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return results, nil
}

// List returns a page of products ordered newest first. Search matches a
// single normalised keyword against the product's keyword index.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	query := client.Collection(productsCollection).Query
	if filter.OnlyActive {
		query = query.Where("isActive", "==", true)
	}
	if filter.CategoryID != nil && strings.TrimSpace(*filter.CategoryID) != "" {
		query = query.Where("categoryId", "==", strings.TrimSpace(*filter.CategoryID))
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		query = query.Where("keywords", "array-contains", search)
	}
	if filter.MinPrice != nil {
		query = query.Where("price", ">=", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("price", "<=", *filter.MaxPrice)
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil {
		query = query.OrderBy("price", firestore.Asc)
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeProductPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: invalid page token: %w", err)
		}
		if filter.MinPrice != nil || filter.MaxPrice != nil {
			query = query.StartAfter(decoded.Price, decoded.CreatedAt, decoded.ID)
		} else {
			query = query.StartAfter(decoded.CreatedAt, decoded.ID)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	nextCursor := ""
	if len(products) > pageSize {
		products = products[:pageSize]
		last := products[len(products)-1]
		encoded, err := encodeProductPageToken(productPageToken{ID: last.ID, Price: last.Price, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		nextCursor = encoded
	}

	return domain.CursorPage[domain.Product]{Items: products, NextCursor: nextCursor}, nil
}

// AdjustStock applies a relative stock change guarded by "stock+delta >= 0".
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int64, now time.Time) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}

		newStock := doc.Stock + delta
		if newStock < 0 {
			stockErr := repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for product %s", id), nil)
			stockErr.ProductID = id
			stockErr.Requested = -delta
			stockErr.Available = doc.Stock
			return stockErr
		}

		doc.Stock = newStock
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(snap.Ref.ID)
		return nil
	})
	if err != nil {
		return domain.Product{}, wrapStockError("products.adjustStock", err)
	}
	return updated, nil
}

// ListLowStock returns active products at or below the stock threshold.
func (r *ProductRepository) ListLowStock(ctx context.Context, threshold int64, limit int) ([]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	query := client.Collection(productsCollection).
		Where("isActive", "==", true).
		Where("stock", "<=", threshold).
		OrderBy("stock", firestore.Asc).
		Limit(limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("products.lowStock", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}
	return products, nil
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	Slug        string    `firestore:"slug"`
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Price       int64     `firestore:"price"`
	Currency    string    `firestore:"currency"`
	Stock       int64     `firestore:"stock"`
	IsActive    bool      `firestore:"isActive"`
	CategoryID  string    `firestore:"categoryId,omitempty"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	Tags        []string  `firestore:"tags,omitempty"`
	Keywords    []string  `firestore:"keywords,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Slug:        d.Slug,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		Currency:    d.Currency,
		Stock:       d.Stock,
		IsActive:    d.IsActive,
		CategoryID:  d.CategoryID,
		ImageURL:    d.ImageURL,
		Tags:        cloneStringSlice(d.Tags),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func fromDomainProduct(product domain.Product) productDocument {
	return productDocument{
		Slug:        strings.ToLower(strings.TrimSpace(product.Slug)),
		Name:        strings.TrimSpace(product.Name),
		Description: strings.TrimSpace(product.Description),
		Price:       product.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(product.Currency)),
		Stock:       product.Stock,
		IsActive:    product.IsActive,
		CategoryID:  strings.TrimSpace(product.CategoryID),
		ImageURL:    strings.TrimSpace(product.ImageURL),
		Tags:        cloneStringSlice(product.Tags),
		Keywords:    productKeywords(product),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

// productKeywords builds the lowercase token index used by search queries.
func productKeywords(product domain.Product) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(value string) {
		token := strings.ToLower(strings.TrimSpace(value))
		if token == "" {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	for _, token := range strings.Fields(product.Name) {
		add(token)
	}
	for _, tag := range product.Tags {
		add(tag)
	}
	add(product.Slug)
	return keywords
}

type productPageToken struct {
	ID        string    `json:"id"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodeProductPageToken(token productPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode product page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeProductPageToken(encoded string) (*productPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode product page token: %w", err)
	}
	var token productPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode product page token json: %w", err)
	}
	return &token, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}

// Ensure interface compliance.
var _ repositories.ProductRepository = (*ProductRepository)(nil)
