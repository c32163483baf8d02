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

const ordersCollection = "orders"

// OrderRepository persists order snapshots in Firestore. State transitions
// and their stock side effects run in single transactions so a settlement is
// applied exactly once even under concurrent confirmations.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base, products: products}, nil
}

// Insert stores a new order without touching stock.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// InsertPlaced stores the order and decrements stock for every line in the
// same transaction. A shortfall on any line aborts the whole placement.
func (r *OrderRepository) InsertPlaced(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	if len(order.Items) == 0 {
		return errors.New("order repository: at least one item is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Get(orderRef); err == nil {
			return status.Error(codes.AlreadyExists, fmt.Sprintf("order %s already exists", id))
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		decremented, err := r.readDecrementedStocks(ctx, tx, order.Items, order.UpdatedAt)
		if err != nil {
			return err
		}
		for _, write := range decremented {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		return tx.Create(orderRef, fromDomainOrder(order))
	})
	if err != nil {
		return wrapStockError("orders.insertPlaced", err)
	}
	return nil
}

// Update overwrites the stored order snapshot without lifecycle checks.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, id, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIntentID resolves the order a gateway payment intent belongs to.
func (r *OrderRepository) FindByIntentID(ctx context.Context, gateway domain.PaymentGateway, intentID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	intent := strings.TrimSpace(intentID)
	if intent == "" {
		return domain.Order{}, errors.New("order repository: intent id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	iter := client.Collection(ordersCollection).
		Where("payment.gateway", "==", string(gateway)).
		Where("payment.intentId", "==", intent).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.WrapError("orders.findByIntent", status.Error(codes.NotFound, fmt.Sprintf("order for intent %s not found", intent)))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByIntent", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns a page of orders newest first, optionally scoped to a user,
// a set of states, and a creation date range.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(ordersCollection).Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, state := range filter.States {
			states = append(states, string(state))
		}
		query = query.Where("state", "in", states)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: invalid page token: %w", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	nextCursor := ""
	if len(orders) > pageSize {
		orders = orders[:pageSize]
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextCursor = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextCursor: nextCursor}, nil
}

// Settle marks the order paid and decrements stock for every line inside one
// transaction. Only a lifecycle move into the paid state is accepted, so a
// second settlement attempt fails with an invalid transition.
func (r *OrderRepository) Settle(ctx context.Context, req repositories.OrderSettlement) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	now := req.Now.UTC()
	var settled domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, doc, err := r.readOrder(ctx, tx, id)
		if err != nil {
			return err
		}

		order := doc.toDomain(id)
		if !domain.CanTransition(order.State, domain.OrderStatePaid) {
			return &domain.InvalidTransitionError{From: order.State, To: domain.OrderStatePaid}
		}

		decremented, err := r.readDecrementedStocks(ctx, tx, order.Items, now)
		if err != nil {
			return err
		}
		for _, write := range decremented {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}

		doc.State = string(domain.OrderStatePaid)
		doc.Payment.GatewayRef = strings.TrimSpace(req.GatewayRef)
		doc.Payment.SettledAt = &now
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		settled = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.settle", err)
	}
	return settled, nil
}

// UpdateState applies a guarded lifecycle move without stock side effects.
func (r *OrderRepository) UpdateState(ctx context.Context, req repositories.OrderStateChange) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if !domain.ValidOrderState(req.To) {
		return domain.Order{}, fmt.Errorf("order repository: unknown state %q", req.To)
	}

	now := req.Now.UTC()
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, doc, err := r.readOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		order := doc.toDomain(id)
		if !domain.CanTransition(order.State, req.To) {
			return &domain.InvalidTransitionError{From: order.State, To: req.To}
		}

		doc.State = string(req.To)
		doc.UpdatedAt = now
		if req.To == domain.OrderStatePaid && doc.Payment.SettledAt == nil {
			doc.Payment.SettledAt = &now
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateState", err)
	}
	return updated, nil
}

// Cancel moves the order into the cancelled state, restoring stock in the
// same transaction when the placement already decremented it.
func (r *OrderRepository) Cancel(ctx context.Context, req repositories.OrderCancellation) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	now := req.Now.UTC()
	var cancelled domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, doc, err := r.readOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		order := doc.toDomain(id)
		if !domain.CanTransition(order.State, domain.OrderStateCancelled) {
			return &domain.InvalidTransitionError{From: order.State, To: domain.OrderStateCancelled}
		}

		var restocks []stockWrite
		if req.RestoreStock {
			// Merge lines for the same product so each document is read and
			// written once with the combined quantity.
			returned := make(map[string]int64, len(order.Items))
			productIDs := make([]string, 0, len(order.Items))
			for _, item := range order.Items {
				productID := strings.TrimSpace(item.ProductID)
				if productID == "" {
					continue
				}
				if _, seen := returned[productID]; !seen {
					productIDs = append(productIDs, productID)
				}
				returned[productID] += item.Quantity
			}
			for _, productID := range productIDs {
				productRef, err := r.products.DocumentRef(ctx, productID)
				if err != nil {
					return err
				}
				snap, err := tx.Get(productRef)
				if err != nil {
					// products deleted since placement keep their absence
					if status.Code(err) == codes.NotFound {
						continue
					}
					return err
				}
				var productDoc productDocument
				if err := snap.DataTo(&productDoc); err != nil {
					return fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
				}
				productDoc.Stock += returned[productID]
				productDoc.UpdatedAt = now
				restocks = append(restocks, stockWrite{ref: productRef, doc: productDoc})
			}
		}

		for _, entry := range restocks {
			if err := tx.Set(entry.ref, entry.doc); err != nil {
				return err
			}
		}

		doc.State = string(domain.OrderStateCancelled)
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		cancelled = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.cancel", err)
	}
	return cancelled, nil
}

// Stats aggregates per-state counts and settled revenue since the given time.
func (r *OrderRepository) Stats(ctx context.Context, since time.Time) (repositories.OrderStats, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderStats{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderStats{}, err
	}

	query := client.Collection(ordersCollection).Query
	if !since.IsZero() {
		query = query.Where("createdAt", ">=", since.UTC())
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	stats := repositories.OrderStats{CountsByState: make(map[domain.OrderState]int64)}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return repositories.OrderStats{}, pfirestore.WrapError("orders.stats", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return repositories.OrderStats{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		state := domain.OrderState(doc.State)
		stats.CountsByState[state]++
		if state.IsSettled() {
			stats.Revenue += doc.Amounts.Total
			if stats.Currency == "" {
				stats.Currency = doc.Amounts.Currency
			}
		}
	}
	return stats, nil
}

// readOrder fetches the order document inside the transaction.
func (r *OrderRepository) readOrder(ctx context.Context, tx *firestore.Transaction, orderID string) (*firestore.DocumentRef, orderDocument, error) {
	orderRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, orderDocument{}, err
	}
	snap, err := tx.Get(orderRef)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, orderDocument{}, status.Error(codes.NotFound, fmt.Sprintf("order %s not found", orderID))
		}
		return nil, orderDocument{}, err
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, orderDocument{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return orderRef, doc, nil
}

// stockWrite pairs a product document with its ref so the decrement read in
// readDecrementedStocks can be applied after all transaction reads finish.
type stockWrite struct {
	ref *firestore.DocumentRef
	doc productDocument
}

// readDecrementedStocks reads every referenced product and returns the
// decremented documents without writing. Lines for the same product are
// merged first so the conditional check covers their combined quantity and
// each document is read and written exactly once. Firestore transactions
// require all reads to happen before the first write, so callers apply the
// returned set afterwards.
func (r *OrderRepository) readDecrementedStocks(ctx context.Context, tx *firestore.Transaction, items []domain.OrderItem, now time.Time) (map[string]stockWrite, error) {
	needed := make(map[string]int64, len(items))
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, repositories.NewStockError(repositories.StockErrorProductNotFound, "order line misses product id", nil)
		}
		if item.Quantity <= 0 {
			return nil, repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("quantity for product %s must be > 0", productID), nil)
		}
		if _, seen := needed[productID]; !seen {
			productIDs = append(productIDs, productID)
		}
		needed[productID] += item.Quantity
	}

	decremented := make(map[string]stockWrite, len(productIDs))
	for _, productID := range productIDs {
		quantity := needed[productID]

		productRef, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return nil, err
		}
		snap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				stockErr := repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
				stockErr.ProductID = productID
				return nil, stockErr
			}
			return nil, err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		if !doc.IsActive {
			stockErr := repositories.NewStockError(repositories.StockErrorProductInactive, fmt.Sprintf("product %s is inactive", productID), nil)
			stockErr.ProductID = productID
			return nil, stockErr
		}
		if doc.Stock < quantity {
			stockErr := repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for product %s", productID), nil)
			stockErr.ProductID = productID
			stockErr.Requested = quantity
			stockErr.Available = doc.Stock
			return nil, stockErr
		}

		doc.Stock -= quantity
		doc.UpdatedAt = now.UTC()
		decremented[productID] = stockWrite{ref: productRef, doc: doc}
	}
	return decremented, nil
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var transitionErr *domain.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return transitionErr
	}
	return wrapStockError(op, err)
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber     string                `firestore:"orderNumber"`
	UserID          string                `firestore:"userId"`
	Email           string                `firestore:"email,omitempty"`
	Items           []orderItemDocument   `firestore:"items"`
	ShippingAddress orderAddressDocument  `firestore:"shippingAddress"`
	BillingAddress  *orderAddressDocument `firestore:"billingAddress,omitempty"`
	Amounts         orderAmountsDocument  `firestore:"amounts"`
	State           string                `firestore:"state"`
	Payment         orderPaymentDocument  `firestore:"payment"`
	Notes           string                `firestore:"notes,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"qty"`
}

type orderAddressDocument struct {
	ID         string `firestore:"id,omitempty"`
	UserID     string `firestore:"userId,omitempty"`
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type orderAmountsDocument struct {
	Subtotal int64  `firestore:"subtotal"`
	Shipping int64  `firestore:"shipping"`
	Tax      int64  `firestore:"tax"`
	Total    int64  `firestore:"total"`
	Currency string `firestore:"currency"`
}

type orderPaymentDocument struct {
	Gateway    string     `firestore:"gateway"`
	IntentID   string     `firestore:"intentId,omitempty"`
	GatewayRef string     `firestore:"gatewayRef,omitempty"`
	SettledAt  *time.Time `firestore:"settledAt,omitempty"`
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	order := domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Email:           d.Email,
		Items:           items,
		ShippingAddress: d.ShippingAddress.toDomain(),
		Amounts: domain.OrderAmounts{
			Subtotal: d.Amounts.Subtotal,
			Shipping: d.Amounts.Shipping,
			Tax:      d.Amounts.Tax,
			Total:    d.Amounts.Total,
			Currency: d.Amounts.Currency,
		},
		State: domain.OrderState(d.State),
		Payment: domain.OrderPayment{
			Gateway:    domain.PaymentGateway(d.Payment.Gateway),
			IntentID:   d.Payment.IntentID,
			GatewayRef: d.Payment.GatewayRef,
			SettledAt:  d.Payment.SettledAt,
		},
		Notes:     d.Notes,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.BillingAddress != nil {
		billing := d.BillingAddress.toDomain()
		order.BillingAddress = &billing
	}
	return order
}

func (d orderAddressDocument) toDomain() domain.Address {
	return domain.Address{
		ID:         d.ID,
		UserID:     d.UserID,
		Name:       d.Name,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			ImageURL:  strings.TrimSpace(item.ImageURL),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	doc := orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		UserID:          strings.TrimSpace(order.UserID),
		Email:           strings.ToLower(strings.TrimSpace(order.Email)),
		Items:           items,
		ShippingAddress: fromDomainOrderAddress(order.ShippingAddress),
		Amounts: orderAmountsDocument{
			Subtotal: order.Amounts.Subtotal,
			Shipping: order.Amounts.Shipping,
			Tax:      order.Amounts.Tax,
			Total:    order.Amounts.Total,
			Currency: strings.ToUpper(strings.TrimSpace(order.Amounts.Currency)),
		},
		State: string(order.State),
		Payment: orderPaymentDocument{
			Gateway:    string(order.Payment.Gateway),
			IntentID:   strings.TrimSpace(order.Payment.IntentID),
			GatewayRef: strings.TrimSpace(order.Payment.GatewayRef),
			SettledAt:  order.Payment.SettledAt,
		},
		Notes:     strings.TrimSpace(order.Notes),
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
	if order.BillingAddress != nil {
		billing := fromDomainOrderAddress(*order.BillingAddress)
		doc.BillingAddress = &billing
	}
	return doc
}

func fromDomainOrderAddress(addr domain.Address) orderAddressDocument {
	return orderAddressDocument{
		ID:         strings.TrimSpace(addr.ID),
		UserID:     strings.TrimSpace(addr.UserID),
		Name:       strings.TrimSpace(addr.Name),
		Phone:      strings.TrimSpace(addr.Phone),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
	}
}

type orderPageToken struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode order page token json: %w", err)
	}
	return &token, nil
}

// Ensure interface compliance.
var _ repositories.OrderRepository = (*OrderRepository)(nil)
