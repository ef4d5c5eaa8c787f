package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/repositories"
)

// stubRepoError implements repositories.RepositoryError for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(msg string) error { return &stubRepoError{msg: msg, notFound: true} }
func conflictErr(msg string) error { return &stubRepoError{msg: msg, conflict: true} }

type stubBookingRepo struct {
	insert         func(ctx context.Context, booking domain.Booking) error
	update         func(ctx context.Context, booking domain.Booking, expected *domain.BookingStatus) error
	findByID       func(ctx context.Context, bookingID string) (domain.Booking, error)
	listByCustomer func(ctx context.Context, customerID string, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error)
}

func (s *stubBookingRepo) Insert(ctx context.Context, booking domain.Booking) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, booking)
}

func (s *stubBookingRepo) Update(ctx context.Context, booking domain.Booking, expected *domain.BookingStatus) error {
	if s.update == nil {
		return nil
	}
	return s.update(ctx, booking, expected)
}

func (s *stubBookingRepo) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	if s.findByID == nil {
		return domain.Booking{}, notFoundErr("no booking " + bookingID)
	}
	return s.findByID(ctx, bookingID)
}

func (s *stubBookingRepo) ListByCustomer(ctx context.Context, customerID string, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error) {
	if s.listByCustomer == nil {
		return domain.CursorPage[domain.Booking]{}, nil
	}
	return s.listByCustomer(ctx, customerID, filter)
}

type stubPaymentRepo struct {
	insert           func(ctx context.Context, payment domain.Payment) error
	update           func(ctx context.Context, payment domain.Payment, expected *domain.PaymentStatus) error
	findByID         func(ctx context.Context, paymentID string) (domain.Payment, error)
	findByBooking    func(ctx context.Context, bookingID string) (domain.Payment, error)
	findByReference  func(ctx context.Context, reference string) (domain.Payment, error)
	findByGatewayTxn func(ctx context.Context, gatewayTxnID string) (domain.Payment, error)
}

func (s *stubPaymentRepo) Insert(ctx context.Context, payment domain.Payment) error {
	if s.insert == nil {
		return nil
	}
	return s.insert(ctx, payment)
}

func (s *stubPaymentRepo) Update(ctx context.Context, payment domain.Payment, expected *domain.PaymentStatus) error {
	if s.update == nil {
		return nil
	}
	return s.update(ctx, payment, expected)
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findByID == nil {
		return domain.Payment{}, notFoundErr("no payment " + paymentID)
	}
	return s.findByID(ctx, paymentID)
}

func (s *stubPaymentRepo) FindByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	if s.findByBooking == nil {
		return domain.Payment{}, notFoundErr("no payment for booking " + bookingID)
	}
	return s.findByBooking(ctx, bookingID)
}

func (s *stubPaymentRepo) FindByReference(ctx context.Context, reference string) (domain.Payment, error) {
	if s.findByReference == nil {
		return domain.Payment{}, notFoundErr("no payment with reference " + reference)
	}
	return s.findByReference(ctx, reference)
}

func (s *stubPaymentRepo) FindByGatewayTxn(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
	if s.findByGatewayTxn == nil {
		return domain.Payment{}, notFoundErr("no payment with txn " + gatewayTxnID)
	}
	return s.findByGatewayTxn(ctx, gatewayTxnID)
}

type stubCatalogRepo struct {
	services map[string]domain.CatalogService
	extras   map[string]domain.CatalogExtra
}

func (s *stubCatalogRepo) GetService(ctx context.Context, serviceID string) (domain.CatalogService, error) {
	service, ok := s.services[serviceID]
	if !ok {
		return domain.CatalogService{}, notFoundErr("no service " + serviceID)
	}
	return service, nil
}

func (s *stubCatalogRepo) GetExtra(ctx context.Context, extraID string) (domain.CatalogExtra, error) {
	extra, ok := s.extras[extraID]
	if !ok {
		return domain.CatalogExtra{}, notFoundErr("no extra " + extraID)
	}
	return extra, nil
}

func (s *stubCatalogRepo) ListServices(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogService], error) {
	page := domain.CursorPage[domain.CatalogService]{}
	for _, service := range s.services {
		page.Items = append(page.Items, service)
	}
	return page, nil
}

func (s *stubCatalogRepo) ListExtras(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogExtra], error) {
	page := domain.CursorPage[domain.CatalogExtra]{}
	for _, extra := range s.extras {
		page.Items = append(page.Items, extra)
	}
	return page, nil
}

type stubAddressRepo struct {
	get    func(ctx context.Context, customerID, addressID string) (domain.Address, error)
	insert func(ctx context.Context, address domain.Address) (domain.Address, error)
	list   func(ctx context.Context, customerID string) ([]domain.Address, error)
}

func (s *stubAddressRepo) Get(ctx context.Context, customerID, addressID string) (domain.Address, error) {
	if s.get == nil {
		return domain.Address{}, notFoundErr("no address " + addressID)
	}
	return s.get(ctx, customerID, addressID)
}

func (s *stubAddressRepo) Insert(ctx context.Context, address domain.Address) (domain.Address, error) {
	if s.insert == nil {
		address.ID = "adr_stub"
		return address, nil
	}
	return s.insert(ctx, address)
}

func (s *stubAddressRepo) List(ctx context.Context, customerID string) ([]domain.Address, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, customerID)
}

// stubRegistry satisfies repositories.Registry with in-test stubs. RunInTx
// invokes the function directly; transactional semantics are the real
// registry's concern.
type stubRegistry struct {
	bookings  *stubBookingRepo
	payments  *stubPaymentRepo
	catalog   *stubCatalogRepo
	addresses *stubAddressRepo
	runInTx   func(ctx context.Context, fn func(ctx context.Context) error) error
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		bookings:  &stubBookingRepo{},
		payments:  &stubPaymentRepo{},
		catalog:   &stubCatalogRepo{},
		addresses: &stubAddressRepo{},
	}
}

func (s *stubRegistry) Close(ctx context.Context) error { return nil }

func (s *stubRegistry) Bookings() repositories.BookingRepository { return s.bookings }

func (s *stubRegistry) Payments() repositories.PaymentRepository { return s.payments }

func (s *stubRegistry) Catalog() repositories.CatalogRepository { return s.catalog }

func (s *stubRegistry) Addresses() repositories.AddressRepository { return s.addresses }

func (s *stubRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.runInTx != nil {
		return s.runInTx(ctx, fn)
	}
	return fn(ctx)
}

// recordingDispatcher captures dispatched notifications.
type recordingDispatcher struct {
	notifications []Notification
	err           error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, notification Notification) error {
	if d.err != nil {
		return d.err
	}
	d.notifications = append(d.notifications, notification)
	return nil
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

var errStubBoom = errors.New("stub: boom")
