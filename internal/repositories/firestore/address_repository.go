package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/sparklehome/api/internal/domain"
	pfirestore "github.com/sparklehome/api/internal/platform/firestore"
)

const addressCollectionPattern = "customers/%s/addresses"

// AddressRepository persists customer service addresses in Firestore.
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

func (r *AddressRepository) collection(ctx context.Context, customerID string) (*firestore.CollectionRef, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, pfirestore.NewNotFoundError("addresses.collection", errors.New("customer id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, customerID)), nil
}

// Get loads a single address owned by the customer.
func (r *AddressRepository) Get(ctx context.Context, customerID, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return domain.Address{}, err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return domain.Address{}, pfirestore.NewNotFoundError("addresses.get", errors.New("address id is required"))
	}

	snap, err := getDoc(ctx, coll.Doc(addressID))
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}

	var address domain.Address
	if err := snap.DataTo(&address); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", fmt.Errorf("decode address %s: %w", addressID, err))
	}
	if address.ID == "" {
		address.ID = snap.Ref.ID
	}
	return address, nil
}

// Insert stores a new address under the customer profile.
func (r *AddressRepository) Insert(ctx context.Context, address domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, address.CustomerID)
	if err != nil {
		return domain.Address{}, err
	}

	ref := coll.NewDoc()
	if strings.TrimSpace(address.ID) != "" {
		ref = coll.Doc(address.ID)
	}
	address.ID = ref.ID
	if address.CreatedAt.IsZero() {
		address.CreatedAt = time.Now().UTC()
	}

	if err := createDoc(ctx, ref, address); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.insert", err)
	}
	return address, nil
}

// List returns all addresses for the customer, newest first.
func (r *AddressRepository) List(ctx context.Context, customerID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, customerID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("createdAt", firestore.Desc).Documents(ctx)
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
		var address domain.Address
		if err := snap.DataTo(&address); err != nil {
			return nil, pfirestore.WrapError("addresses.list", fmt.Errorf("decode address %s: %w", snap.Ref.ID, err))
		}
		if address.ID == "" {
			address.ID = snap.Ref.ID
		}
		results = append(results, address)
	}
	return results, nil
}
