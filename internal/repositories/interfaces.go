package repositories

import (
	"context"
	"time"

	domain "github.com/sparklehome/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for
// dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Bookings() BookingRepository
	Payments() PaymentRepository
	Catalog() CatalogRepository
	Addresses() AddressRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation
// used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. A
// lifecycle check and the write it guards must share one transaction so the
// check-then-act sequence is atomic for a given booking or payment row.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookingRepository persists booking aggregates. Line collections live inside
// the booking document, so inserting or updating a booking writes the header
// and both line sets as one unit and deleting a booking removes its lines with
// it.
type BookingRepository interface {
	Insert(ctx context.Context, booking domain.Booking) error
	// Update persists the booking. When expectedStatus is non-nil the write
	// only succeeds if the stored status still matches, acting as a
	// compare-and-swap against concurrent transitions; a lost race surfaces
	// as a conflict RepositoryError.
	Update(ctx context.Context, booking domain.Booking, expectedStatus *domain.BookingStatus) error
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	ListByCustomer(ctx context.Context, customerID string, filter BookingListFilter) (domain.CursorPage[domain.Booking], error)
}

// PaymentRepository persists payment records. The merchant reference and the
// gateway transaction identity are both unique lookup keys; Insert must fail
// with a conflict when the reference is already taken.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment, expectedStatus *domain.PaymentStatus) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByBooking(ctx context.Context, bookingID string) (domain.Payment, error)
	FindByReference(ctx context.Context, reference string) (domain.Payment, error)
	// FindByGatewayTxn resolves a payment by the identity the gateway assigned
	// to it. Not-found is the expected outcome for first delivery of an event.
	FindByGatewayTxn(ctx context.Context, gatewayTxnID string) (domain.Payment, error)
}

// CatalogRepository serves read-only cleaning service and extra definitions.
// The catalog is owned elsewhere; this interface is the query boundary the
// pricing and validation paths consult per calculation.
type CatalogRepository interface {
	GetService(ctx context.Context, serviceID string) (domain.CatalogService, error)
	GetExtra(ctx context.Context, extraID string) (domain.CatalogExtra, error)
	ListServices(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogService], error)
	ListExtras(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogExtra], error)
}

// AddressRepository stores service addresses per customer.
type AddressRepository interface {
	Get(ctx context.Context, customerID string, addressID string) (domain.Address, error)
	Insert(ctx context.Context, address domain.Address) (domain.Address, error)
	List(ctx context.Context, customerID string) ([]domain.Address, error)
}

// BookingListFilter narrows booking listings.
type BookingListFilter struct {
	Status       []domain.BookingStatus
	CreatedAfter *time.Time
	Pagination   domain.Pagination
}
