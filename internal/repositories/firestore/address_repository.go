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

const (
	addressCollectionPattern = "users/%s/addresses"
	guestAddressesCollection = "guestAddresses"
)

// AddressRepository persists shipping addresses per user. Guest checkout
// addresses land in a shared top-level collection with no owning user.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns all addresses for the specified user, default first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap)
		if err != nil {
			return nil, err
		}
		addr.UserID = strings.TrimSpace(userID)
		if addr.IsDefault {
			results = append([]domain.Address{addr}, results...)
			continue
		}
		results = append(results, addr)
	}
	return results, nil
}

// Get loads a single address owned by the user.
func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	addr, err := decodeAddressDocument(snap)
	if err != nil {
		return domain.Address{}, err
	}
	addr.UserID = strings.TrimSpace(userID)
	return addr, nil
}

// Upsert creates or updates an address. Marking an address default clears the
// flag from every other address in the same transaction.
func (r *AddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var docRef *firestore.DocumentRef
		if addressID != nil && strings.TrimSpace(*addressID) != "" {
			docRef = coll.Doc(strings.TrimSpace(*addressID))
		} else {
			docRef = coll.NewDoc()
		}

		var doc addressDocument
		snap, err := tx.Get(docRef)
		switch status.Code(err) {
		case codes.NotFound:
			// new document
		case codes.OK:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
			}
		default:
			return err
		}

		var clearRefs []*firestore.DocumentRef
		if addr.IsDefault {
			query := coll.Where("isDefault", "==", true).Limit(10)
			snaps, err := tx.Documents(query).GetAll()
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			for _, other := range snaps {
				if other.Ref.ID == docRef.ID {
					continue
				}
				clearRefs = append(clearRefs, other.Ref)
			}
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			if !addr.CreatedAt.IsZero() {
				doc.CreatedAt = addr.CreatedAt.UTC()
			} else {
				doc.CreatedAt = now
			}
		}
		doc.applyDomain(addr)
		doc.UpdatedAt = now

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		for _, ref := range clearRefs {
			if err := tx.Update(ref, []firestore.Update{{Path: "isDefault", Value: false}}); err != nil {
				return err
			}
		}

		saved = doc.toDomain(docRef.ID)
		saved.UserID = strings.TrimSpace(userID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return saved, nil
}

// Delete removes the specified address document.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

// InsertGuest stores a guest checkout address without an owning user.
func (r *AddressRepository) InsertGuest(ctx context.Context, addr domain.Address) (domain.Address, error) {
	if r == nil || r.provider == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Address{}, err
	}

	now := time.Now().UTC()
	var doc addressDocument
	doc.applyDomain(addr)
	doc.IsDefault = false
	doc.CreatedAt = now
	doc.UpdatedAt = now

	docRef := client.Collection(guestAddressesCollection).NewDoc()
	if id := strings.TrimSpace(addr.ID); id != "" {
		docRef = client.Collection(guestAddressesCollection).Doc(id)
	}
	if _, err := docRef.Set(ctx, doc); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.insertGuest", err)
	}

	saved := doc.toDomain(docRef.ID)
	saved.UserID = ""
	return saved, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, uid)), nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID), nil
}

type addressDocument struct {
	Name       string    `firestore:"name"`
	Phone      string    `firestore:"phone,omitempty"`
	Line1      string    `firestore:"line1"`
	Line2      string    `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state,omitempty"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	IsDefault  bool      `firestore:"isDefault"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d *addressDocument) applyDomain(addr domain.Address) {
	d.Name = strings.TrimSpace(addr.Name)
	d.Phone = strings.TrimSpace(addr.Phone)
	d.Line1 = strings.TrimSpace(addr.Line1)
	d.Line2 = strings.TrimSpace(addr.Line2)
	d.City = strings.TrimSpace(addr.City)
	d.State = strings.TrimSpace(addr.State)
	d.PostalCode = strings.TrimSpace(addr.PostalCode)
	d.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
	d.IsDefault = addr.IsDefault
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		Name:       d.Name,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		IsDefault:  d.IsDefault,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ repositories.AddressRepository = (*AddressRepository)(nil)
