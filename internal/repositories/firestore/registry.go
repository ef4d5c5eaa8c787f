package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/sparklehome/api/internal/platform/firestore"
	"github.com/sparklehome/api/internal/repositories"
)

// Registry wires Firestore-backed repositories behind the repositories.Registry
// interface.
type Registry struct {
	provider *pfirestore.Provider

	bookings  *BookingRepository
	payments  *PaymentRepository
	catalog   *CatalogRepository
	addresses *AddressRepository
}

// NewRegistry constructs the registry and its repositories.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	bookings, err := NewBookingRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		bookings:  bookings,
		payments:  payments,
		catalog:   catalog,
		addresses: addresses,
	}, nil
}

// Bookings returns the booking repository.
func (r *Registry) Bookings() repositories.BookingRepository { return r.bookings }

// Payments returns the payment repository.
func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }

// Catalog returns the catalog repository.
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

// Addresses returns the address repository.
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }

// RunInTx executes fn with a Firestore transaction attached to the context.
// Repository operations invoked from fn participate in that transaction, so a
// read-check-write sequence across bookings and payments commits atomically.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is nil")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(withTx(ctx, tx))
	})
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
