package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/repositories"
)

// CreateBookingCommand carries everything needed to create a booking: the
// schedule, the address selection, and the cart to price.
type CreateBookingCommand struct {
	CustomerID string
	Schedule   Schedule
	Address    AddressSelection
	Cart       Cart
	Notes      string
}

// CreateBookingResult returns the persisted booking together with the pending
// payment opened for it.
type CreateBookingResult struct {
	Booking domain.Booking
	Payment domain.Payment
}

// ModifyBookingCommand edits an existing booking. Each non-nil field replaces
// its dimension wholesale: a submitted cart becomes the booking's entire line
// set (and the total is recomputed), a submitted address selection relinks
// the service address. Nil fields leave the booking as it is.
type ModifyBookingCommand struct {
	CustomerID string
	BookingID  string
	Cart       *Cart
	Schedule   *Schedule
	Address    *AddressSelection
	Notes      *string
}

// BookingService orchestrates booking writes: creation, customer edits,
// cancellation and staff progress updates.
type BookingService interface {
	Create(ctx context.Context, cmd CreateBookingCommand) (CreateBookingResult, error)
	// Get loads a booking. A non-empty customerID restricts the lookup to
	// bookings that customer owns; other customers' bookings read as not
	// found.
	Get(ctx context.Context, customerID, bookingID string) (domain.Booking, error)
	List(ctx context.Context, customerID string, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error)
	Modify(ctx context.Context, cmd ModifyBookingCommand) (domain.Booking, error)
	Cancel(ctx context.Context, customerID, bookingID string) (domain.Booking, error)
	// Progress applies a staff-driven forward transition
	// (confirmed→in_progress→completed).
	Progress(ctx context.Context, bookingID string, to domain.BookingStatus) (domain.Booking, error)
}

// BookingServiceDeps wires the booking service collaborators.
type BookingServiceDeps struct {
	Registry  repositories.Registry
	Pricing   *PricingEngine
	Validator *ReferenceValidator
	Lifecycle *Lifecycle
	Payments  PaymentService
	Notifier  NotificationDispatcher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type bookingService struct {
	registry  repositories.Registry
	pricing   *PricingEngine
	validator *ReferenceValidator
	lifecycle *Lifecycle
	payments  PaymentService
	notifier  NotificationDispatcher
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewBookingService constructs the orchestrator, validating its dependencies.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Registry == nil {
		return nil, errors.New("booking service: repository registry is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("booking service: pricing engine is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("booking service: reference validator is required")
	}
	if deps.Lifecycle == nil {
		return nil, errors.New("booking service: lifecycle is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("booking service: payment service is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &bookingService{
		registry:  deps.Registry,
		pricing:   deps.Pricing,
		validator: deps.Validator,
		lifecycle: deps.Lifecycle,
		payments:  deps.Payments,
		notifier:  deps.Notifier,
		now:       func() time.Time { return now().UTC() },
		logger:    logger,
	}, nil
}

func (s *bookingService) Create(ctx context.Context, cmd CreateBookingCommand) (CreateBookingResult, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return CreateBookingResult{}, NewValidationError("customer_id", "is required")
	}
	if err := s.validator.ValidateSchedule(cmd.Schedule); err != nil {
		return CreateBookingResult{}, err
	}
	priced, err := s.pricing.PriceCart(ctx, cmd.Cart)
	if err != nil {
		return CreateBookingResult{}, err
	}

	now := s.now()
	booking := domain.Booking{
		ID:          "bkg_" + ulid.Make().String(),
		CustomerID:  customerID,
		Status:      domain.BookingStatusPending,
		ServiceDate: strings.TrimSpace(cmd.Schedule.ServiceDate),
		ServiceTime: strings.TrimSpace(cmd.Schedule.ServiceTime),
		Services:    priced.Services,
		Extras:      priced.Extras,
		Total:       priced.Total,
		Notes:       strings.TrimSpace(cmd.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var payment domain.Payment
	err = s.registry.RunInTx(ctx, func(ctx context.Context) error {
		// Address validation joins the transaction so a new address commits
		// or rolls back together with the booking. Its read and the payment
		// reference-uniqueness read both precede every write.
		address, err := s.validator.PrepareAddress(ctx, customerID, cmd.Address)
		if err != nil {
			return err
		}
		booking.AddressID = address.ID

		payment, err = s.payments.Open(ctx, booking)
		if err != nil {
			return err
		}
		if err := s.registry.Bookings().Insert(ctx, booking); err != nil {
			return mapRepositoryError(err, nil)
		}
		return s.validator.CommitAddress(ctx, address)
	})
	if err != nil {
		return CreateBookingResult{}, err
	}

	s.logger(ctx, "booking created", map[string]any{
		"booking_id":  booking.ID,
		"customer_id": customerID,
		"total":       booking.Total.Units,
		"reference":   payment.Reference,
	})
	s.notify(ctx, NotificationBookingCreated, booking, map[string]any{
		"total":     booking.Total.Major(),
		"currency":  booking.Total.Currency,
		"reference": payment.Reference,
	})
	return CreateBookingResult{Booking: booking, Payment: payment}, nil
}

func (s *bookingService) Get(ctx context.Context, customerID, bookingID string) (domain.Booking, error) {
	booking, err := s.registry.Bookings().FindByID(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, mapRepositoryError(err, ErrBookingNotFound)
	}
	if customerID != "" && booking.CustomerID != customerID {
		return domain.Booking{}, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
	}
	return booking, nil
}

func (s *bookingService) List(ctx context.Context, customerID string, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error) {
	if strings.TrimSpace(customerID) == "" {
		return domain.CursorPage[domain.Booking]{}, NewValidationError("customer_id", "is required")
	}
	page, err := s.registry.Bookings().ListByCustomer(ctx, customerID, filter)
	if err != nil {
		return domain.CursorPage[domain.Booking]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

func (s *bookingService) Modify(ctx context.Context, cmd ModifyBookingCommand) (domain.Booking, error) {
	if cmd.Cart == nil && cmd.Schedule == nil && cmd.Address == nil && cmd.Notes == nil {
		return domain.Booking{}, NewValidationError("body", "at least one change is required")
	}
	if cmd.Schedule != nil {
		if err := s.validator.ValidateSchedule(*cmd.Schedule); err != nil {
			return domain.Booking{}, err
		}
	}
	var priced *PricedCart
	if cmd.Cart != nil {
		p, err := s.pricing.PriceCart(ctx, *cmd.Cart)
		if err != nil {
			return domain.Booking{}, err
		}
		priced = &p
	}

	var updated domain.Booking
	err := s.registry.RunInTx(ctx, func(ctx context.Context) error {
		booking, err := s.Get(ctx, cmd.CustomerID, cmd.BookingID)
		if err != nil {
			return err
		}
		if err := s.lifecycle.EnsureMutable(booking, s.now()); err != nil {
			return err
		}
		var payment domain.Payment
		if priced != nil {
			payment, err = s.registry.Payments().FindByBooking(ctx, booking.ID)
			if err != nil {
				return mapRepositoryError(err, ErrPaymentNotFound)
			}
		}
		var address PreparedAddress
		if cmd.Address != nil {
			// The prepare read happens here, before the first write; the
			// matching insert lands after the booking update below.
			address, err = s.validator.PrepareAddress(ctx, booking.CustomerID, *cmd.Address)
			if err != nil {
				return err
			}
			booking.AddressID = address.ID
		}

		expected := booking.Status
		if priced != nil {
			booking.Services = priced.Services
			booking.Extras = priced.Extras
			booking.Total = priced.Total
		}
		if cmd.Schedule != nil {
			booking.ServiceDate = strings.TrimSpace(cmd.Schedule.ServiceDate)
			booking.ServiceTime = strings.TrimSpace(cmd.Schedule.ServiceTime)
		}
		if cmd.Notes != nil {
			booking.Notes = strings.TrimSpace(*cmd.Notes)
		}
		booking.UpdatedAt = s.now()

		if err := s.registry.Bookings().Update(ctx, booking, &expected); err != nil {
			return mapRepositoryError(err, ErrBookingNotFound)
		}
		if err := s.validator.CommitAddress(ctx, address); err != nil {
			return err
		}
		// An unsettled payment tracks the new total. A settled one keeps its
		// charged amount; price differences are handled out of band.
		if priced != nil && payment.Status == domain.PaymentStatusPending {
			payment.Amount = booking.Total
			payment.UpdatedAt = booking.UpdatedAt
			if err := s.registry.Payments().Update(ctx, payment, nil); err != nil {
				return mapRepositoryError(err, ErrPaymentNotFound)
			}
		}
		updated = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.logger(ctx, "booking modified", map[string]any{
		"booking_id": updated.ID,
		"total":      updated.Total.Units,
	})
	return updated, nil
}

func (s *bookingService) Cancel(ctx context.Context, customerID, bookingID string) (domain.Booking, error) {
	var (
		cancelled domain.Booking
		refunded  bool
	)
	err := s.registry.RunInTx(ctx, func(ctx context.Context) error {
		booking, err := s.Get(ctx, customerID, bookingID)
		if err != nil {
			return err
		}
		if err := s.lifecycle.EnsureMutable(booking, s.now()); err != nil {
			return err
		}
		payment, err := s.registry.Payments().FindByBooking(ctx, booking.ID)
		if err != nil && !isNotFound(err) {
			return mapRepositoryError(err, nil)
		}

		expected := booking.Status
		booking.Status = domain.BookingStatusCancelled
		booking.UpdatedAt = s.now()
		if err := s.registry.Bookings().Update(ctx, booking, &expected); err != nil {
			return mapRepositoryError(err, ErrBookingNotFound)
		}
		// A settled payment flips to refunded in the same transaction. A
		// pending one is left for the reconciler: a late settlement on a
		// cancelled booking refunds on arrival.
		refunded = false
		if payment.Status == domain.PaymentStatusCompleted {
			payment.Status = domain.PaymentStatusRefunded
			payment.UpdatedAt = booking.UpdatedAt
			if err := s.registry.Payments().Update(ctx, payment, nil); err != nil {
				return mapRepositoryError(err, ErrPaymentNotFound)
			}
			refunded = true
		}
		cancelled = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.logger(ctx, "booking cancelled", map[string]any{
		"booking_id": cancelled.ID,
		"refunded":   refunded,
	})
	s.notify(ctx, NotificationBookingCancelled, cancelled, map[string]any{
		"refunded": refunded,
	})
	return cancelled, nil
}

func (s *bookingService) Progress(ctx context.Context, bookingID string, to domain.BookingStatus) (domain.Booking, error) {
	booking, err := s.Get(ctx, "", bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	from := booking.Status
	if err := s.lifecycle.EnsureProgress(from, to); err != nil {
		return domain.Booking{}, err
	}

	booking.Status = to
	booking.UpdatedAt = s.now()
	if err := s.registry.Bookings().Update(ctx, booking, &from); err != nil {
		return domain.Booking{}, mapRepositoryError(err, ErrBookingNotFound)
	}

	s.logger(ctx, "booking progressed", map[string]any{
		"booking_id": booking.ID,
		"from":       string(from),
		"to":         string(to),
	})
	s.notify(ctx, NotificationBookingStatusChanged, booking, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return booking, nil
}

// notify dispatches after the write committed. Delivery failures are logged
// and swallowed; they never unwind booking or payment state.
func (s *bookingService) notify(ctx context.Context, event string, booking domain.Booking, data map[string]any) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Dispatch(ctx, Notification{
		Event:      event,
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		OccurredAt: s.now(),
		Data:       data,
	})
	if err != nil {
		s.logger(ctx, "notification dispatch failed", map[string]any{
			"event":      event,
			"booking_id": booking.ID,
			"error":      err.Error(),
		})
	}
}
