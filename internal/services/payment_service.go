package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/repositories"
)

const (
	defaultReferencePrefix = "SPH"
	referenceTimeLayout    = "20060102150405"
	referenceSuffixLength  = 6
)

// PaymentService owns the payment record lifecycle: opening a pending payment
// for a booking, settling it from a gateway event, and recording failures.
type PaymentService interface {
	// Open creates a pending payment for the booking with a fresh reference.
	Open(ctx context.Context, booking domain.Booking) (domain.Payment, error)
	// Settle marks the payment identified by reference as completed,
	// recording the gateway transaction identity. The same identity on a
	// different payment is corruption, not an overwrite.
	Settle(ctx context.Context, cmd SettlePaymentCommand) (domain.Payment, error)
	// Fail marks the payment as failed with a human-readable reason.
	Fail(ctx context.Context, cmd FailPaymentCommand) (domain.Payment, error)
	GetByBooking(ctx context.Context, bookingID string) (domain.Payment, error)
	GetByGatewayTxn(ctx context.Context, gatewayTxnID string) (domain.Payment, error)
}

// SettlePaymentCommand carries the settlement details from a gateway event.
type SettlePaymentCommand struct {
	Reference    string
	GatewayTxnID string
	Amount       domain.Money
}

// FailPaymentCommand records a failed charge attempt.
type FailPaymentCommand struct {
	Reference    string
	GatewayTxnID string
	Reason       string
}

// PaymentServiceDeps wires the payment service dependencies.
type PaymentServiceDeps struct {
	Payments        repositories.PaymentRepository
	ReferencePrefix string
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	prefix   string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentService constructs the payment record manager.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.ReferencePrefix))
	if prefix == "" {
		prefix = defaultReferencePrefix
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		payments: deps.Payments,
		prefix:   prefix,
		now:      func() time.Time { return now().UTC() },
		logger:   logger,
	}, nil
}

func (s *paymentService) Open(ctx context.Context, booking domain.Booking) (domain.Payment, error) {
	if strings.TrimSpace(booking.ID) == "" {
		return domain.Payment{}, errors.New("payment service: booking id is required")
	}

	now := s.now()
	payment := domain.Payment{
		ID:        "pay_" + ulid.Make().String(),
		BookingID: booking.ID,
		Reference: s.newReference(now),
		Amount:    booking.Total,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.payments.Insert(ctx, payment); err != nil {
		if isConflict(err) {
			return domain.Payment{}, fmt.Errorf("%w: %s", ErrDuplicateReference, payment.Reference)
		}
		return domain.Payment{}, mapRepositoryError(err, nil)
	}

	s.logger(ctx, "payment opened", map[string]any{
		"payment_id": payment.ID,
		"booking_id": booking.ID,
		"reference":  payment.Reference,
		"amount":     payment.Amount.Units,
	})
	return payment, nil
}

func (s *paymentService) Settle(ctx context.Context, cmd SettlePaymentCommand) (domain.Payment, error) {
	payment, err := s.findByReference(ctx, cmd.Reference)
	if err != nil {
		return domain.Payment{}, err
	}

	if payment.Status == domain.PaymentStatusCompleted || payment.Status == domain.PaymentStatusRefunded {
		if payment.GatewayTxnID != cmd.GatewayTxnID {
			return domain.Payment{}, fmt.Errorf("%w: payment %s settled under txn %s, event claims %s",
				ErrTransactionCorruption, payment.ID, payment.GatewayTxnID, cmd.GatewayTxnID)
		}
		return payment, nil
	}

	// A pending or failed payment settles now. A retried charge carries a new
	// transaction identity that supersedes the failed attempt's.
	expected := payment.Status
	now := s.now()
	payment.Status = domain.PaymentStatusCompleted
	payment.GatewayTxnID = cmd.GatewayTxnID
	payment.FailureReason = ""
	payment.UpdatedAt = now
	payment.SettledAt = &now
	if !cmd.Amount.IsZero() {
		payment.Amount = cmd.Amount
	}

	if err := s.payments.Update(ctx, payment, &expected); err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}

	s.logger(ctx, "payment settled", map[string]any{
		"payment_id":  payment.ID,
		"booking_id":  payment.BookingID,
		"gateway_txn": payment.GatewayTxnID,
	})
	return payment, nil
}

func (s *paymentService) Fail(ctx context.Context, cmd FailPaymentCommand) (domain.Payment, error) {
	payment, err := s.findByReference(ctx, cmd.Reference)
	if err != nil {
		return domain.Payment{}, err
	}

	// A settled payment is never demoted by a late or replayed failure.
	if payment.Status == domain.PaymentStatusCompleted || payment.Status == domain.PaymentStatusRefunded {
		return payment, nil
	}

	expected := payment.Status
	payment.Status = domain.PaymentStatusFailed
	payment.GatewayTxnID = cmd.GatewayTxnID
	payment.FailureReason = strings.TrimSpace(cmd.Reason)
	payment.UpdatedAt = s.now()

	if err := s.payments.Update(ctx, payment, &expected); err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}

	s.logger(ctx, "payment failed", map[string]any{
		"payment_id":  payment.ID,
		"booking_id":  payment.BookingID,
		"gateway_txn": payment.GatewayTxnID,
		"reason":      payment.FailureReason,
	})
	return payment, nil
}

func (s *paymentService) GetByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	payment, err := s.payments.FindByBooking(ctx, bookingID)
	if err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payment, nil
}

func (s *paymentService) GetByGatewayTxn(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
	payment, err := s.payments.FindByGatewayTxn(ctx, gatewayTxnID)
	if err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payment, nil
}

func (s *paymentService) findByReference(ctx context.Context, reference string) (domain.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Payment{}, NewValidationError("reference", "is required")
	}
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payment, nil
}

// newReference builds the merchant reference: fixed prefix, second-resolution
// timestamp, short random suffix. Human-diffable and collision-resistant per
// attempt.
func (s *paymentService) newReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:referenceSuffixLength]
	return fmt.Sprintf("%s-%s-%s", s.prefix, now.Format(referenceTimeLayout), suffix)
}
