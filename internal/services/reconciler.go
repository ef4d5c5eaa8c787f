package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/repositories"
)

// GatewayEventType tags the payment gateway event kinds the reconciler
// understands.
type GatewayEventType string

const (
	GatewayEventChargeSucceeded GatewayEventType = "charge_succeeded"
	GatewayEventChargeFailed    GatewayEventType = "charge_failed"
)

// GatewayEvent is the parsed form of a gateway webhook delivery.
type GatewayEvent struct {
	Type          GatewayEventType
	TransactionID string
	Reference     string
	Amount        domain.Money
	FailureReason string
	OccurredAt    time.Time
}

// gatewayEventEnvelope is the wire shape of a webhook delivery: the event
// name plus an event-scoped data object. Amounts on the wire are integers in
// the currency's minor units, never decimal strings.
type gatewayEventEnvelope struct {
	Event string           `json:"event"`
	Data  gatewayEventData `json:"data"`
}

type gatewayEventData struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Amount        *int64 `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	OccurredAt    string `json:"occurred_at,omitempty"`
}

// ParseGatewayEvent decodes a raw webhook body. Unknown event types parse
// successfully so the caller can acknowledge and drop them; structural
// problems return validation errors.
func ParseGatewayEvent(body []byte) (GatewayEvent, error) {
	var envelope gatewayEventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return GatewayEvent{}, NewValidationError("body", "must be a JSON gateway event envelope")
	}

	event := GatewayEvent{
		Type:          GatewayEventType(strings.TrimSpace(envelope.Event)),
		TransactionID: strings.TrimSpace(envelope.Data.ID),
		Reference:     strings.TrimSpace(envelope.Data.Reference),
		FailureReason: strings.TrimSpace(envelope.Data.FailureReason),
	}
	if event.Type == "" {
		return GatewayEvent{}, NewValidationError("event", "is required")
	}
	if !event.Known() {
		return event, nil
	}
	if event.TransactionID == "" {
		return GatewayEvent{}, NewValidationError("data.id", "is required")
	}
	if event.Reference == "" {
		return GatewayEvent{}, NewValidationError("data.reference", "is required")
	}
	if envelope.Data.Amount != nil {
		currency := strings.ToUpper(strings.TrimSpace(envelope.Data.Currency))
		if currency == "" {
			return GatewayEvent{}, NewValidationError("data.currency", "is required with an amount")
		}
		if *envelope.Data.Amount < 0 {
			return GatewayEvent{}, NewValidationError("data.amount", "must be a non-negative integer of minor units")
		}
		event.Amount = domain.NewMoney(*envelope.Data.Amount, currency)
	}
	if envelope.Data.OccurredAt != "" {
		ts, err := time.Parse(time.RFC3339, envelope.Data.OccurredAt)
		if err != nil {
			return GatewayEvent{}, NewValidationError("data.occurred_at", "must be an RFC 3339 timestamp")
		}
		event.OccurredAt = ts.UTC()
	}
	return event, nil
}

// Known reports whether the event type is one the reconciler acts on.
func (e GatewayEvent) Known() bool {
	return e.Type == GatewayEventChargeSucceeded || e.Type == GatewayEventChargeFailed
}

// Outcome classifies a reconciliation run for the webhook response.
type Outcome string

const (
	// OutcomeProcessed means at least one payment or booking write happened.
	OutcomeProcessed Outcome = "processed"
	// OutcomeAlreadyProcessed means the event was a replay and every record
	// already reflected it.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeIgnored means the event type is not one the reconciler handles.
	OutcomeIgnored Outcome = "ignored"
)

// ReconcilerDeps wires the reconciler collaborators.
type ReconcilerDeps struct {
	Registry  repositories.Registry
	Lifecycle *Lifecycle
	Payments  PaymentService
	Notifier  NotificationDispatcher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Reconciler drives payment and booking state from gateway webhook events.
// Processing is idempotent on the gateway transaction identity and convergent:
// replays and out-of-order deliveries land on the same final state.
type Reconciler struct {
	registry  repositories.Registry
	lifecycle *Lifecycle
	payments  PaymentService
	notifier  NotificationDispatcher
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewReconciler constructs the reconciler, validating its dependencies.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Registry == nil {
		return nil, errors.New("reconciler: repository registry is required")
	}
	if deps.Lifecycle == nil {
		return nil, errors.New("reconciler: lifecycle is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("reconciler: payment service is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Reconciler{
		registry:  deps.Registry,
		lifecycle: deps.Lifecycle,
		payments:  deps.Payments,
		notifier:  deps.Notifier,
		now:       func() time.Time { return now().UTC() },
		logger:    logger,
	}, nil
}

// Process applies one gateway event. Payment and booking writes commit in a
// single transaction; a replay that finds every record already consistent
// reports OutcomeAlreadyProcessed without writing.
func (r *Reconciler) Process(ctx context.Context, event GatewayEvent) (Outcome, error) {
	if !event.Known() {
		r.logger(ctx, "gateway event ignored", map[string]any{
			"type":        string(event.Type),
			"gateway_txn": event.TransactionID,
		})
		return OutcomeIgnored, nil
	}

	var (
		outcome      Outcome
		notification *Notification
	)
	err := r.registry.RunInTx(ctx, func(ctx context.Context) error {
		payment, err := r.locatePayment(ctx, event)
		if err != nil {
			return err
		}
		booking, err := r.registry.Bookings().FindByID(ctx, payment.BookingID)
		if err != nil {
			return mapRepositoryError(err, ErrBookingNotFound)
		}

		switch event.Type {
		case GatewayEventChargeSucceeded:
			outcome, notification, err = r.applySuccess(ctx, event, payment, booking)
		case GatewayEventChargeFailed:
			outcome, notification, err = r.applyFailure(ctx, event, payment, booking)
		}
		return err
	})
	if err != nil {
		return "", err
	}

	r.logger(ctx, "gateway event reconciled", map[string]any{
		"type":        string(event.Type),
		"gateway_txn": event.TransactionID,
		"reference":   event.Reference,
		"outcome":     string(outcome),
	})
	if notification != nil {
		r.notify(ctx, *notification)
	}
	return outcome, nil
}

// locatePayment resolves the payment the event targets: by gateway
// transaction identity first, by merchant reference otherwise. The transaction
// identity living on a payment with a different reference means two payments
// claim one charge, which is corruption, not a race.
func (r *Reconciler) locatePayment(ctx context.Context, event GatewayEvent) (domain.Payment, error) {
	payments := r.registry.Payments()

	payment, err := payments.FindByGatewayTxn(ctx, event.TransactionID)
	switch {
	case err == nil:
		if payment.Reference != event.Reference {
			return domain.Payment{}, fmt.Errorf("%w: txn %s recorded on payment %s (reference %s), event claims reference %s",
				ErrTransactionCorruption, event.TransactionID, payment.ID, payment.Reference, event.Reference)
		}
		return payment, nil
	case isNotFound(err):
	default:
		return domain.Payment{}, mapRepositoryError(err, nil)
	}

	payment, err = payments.FindByReference(ctx, event.Reference)
	if err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound)
	}
	return payment, nil
}

// applySuccess converges payment and booking onto the settled state. The
// payment settles if it has not already; the booking confirms if still
// pending; a cancelled booking refunds the settlement instead. Only when both
// records already reflect the event is it a pure replay.
func (r *Reconciler) applySuccess(ctx context.Context, event GatewayEvent, payment domain.Payment, booking domain.Booking) (Outcome, *Notification, error) {
	changed := false

	if payment.Status != domain.PaymentStatusCompleted && payment.Status != domain.PaymentStatusRefunded {
		settled, err := r.payments.Settle(ctx, SettlePaymentCommand{
			Reference:    event.Reference,
			GatewayTxnID: event.TransactionID,
			Amount:       event.Amount,
		})
		if err != nil {
			return "", nil, err
		}
		payment = settled
		changed = true
	} else if payment.GatewayTxnID != "" && payment.GatewayTxnID != event.TransactionID {
		return "", nil, fmt.Errorf("%w: payment %s carries txn %s, event claims %s",
			ErrTransactionCorruption, payment.ID, payment.GatewayTxnID, event.TransactionID)
	}

	if booking.Status == domain.BookingStatusCancelled {
		// Money arrived for a booking the customer already cancelled. Record
		// the settlement, then mark it refunded; the booking stays cancelled.
		if payment.Status != domain.PaymentStatusRefunded {
			payment.Status = domain.PaymentStatusRefunded
			payment.UpdatedAt = r.now()
			if err := r.registry.Payments().Update(ctx, payment, nil); err != nil {
				return "", nil, mapRepositoryError(err, ErrPaymentNotFound)
			}
			changed = true
		}
	} else {
		next, move, err := r.lifecycle.ApplySettlement(booking.Status)
		if err != nil {
			return "", nil, err
		}
		if move {
			booking.Status = next
			booking.UpdatedAt = r.now()
			if err := r.registry.Bookings().Update(ctx, booking, nil); err != nil {
				return "", nil, mapRepositoryError(err, ErrBookingNotFound)
			}
			changed = true
		}
	}

	if !changed {
		return OutcomeAlreadyProcessed, nil, nil
	}
	notification := &Notification{
		Event:      NotificationPaymentSettled,
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		OccurredAt: r.now(),
		Data: map[string]any{
			"reference":   payment.Reference,
			"gateway_txn": event.TransactionID,
		},
	}
	return OutcomeProcessed, notification, nil
}

// applyFailure records a failed charge. The booking is left where it is so
// the customer can retry; a payment that already settled is never demoted.
func (r *Reconciler) applyFailure(ctx context.Context, event GatewayEvent, payment domain.Payment, booking domain.Booking) (Outcome, *Notification, error) {
	switch payment.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded:
		// Settlement is authoritative over a late or out-of-order failure.
		return OutcomeAlreadyProcessed, nil, nil
	case domain.PaymentStatusFailed:
		if payment.GatewayTxnID == event.TransactionID {
			return OutcomeAlreadyProcessed, nil, nil
		}
	}

	failed, err := r.payments.Fail(ctx, FailPaymentCommand{
		Reference:    event.Reference,
		GatewayTxnID: event.TransactionID,
		Reason:       event.FailureReason,
	})
	if err != nil {
		return "", nil, err
	}

	notification := &Notification{
		Event:      NotificationPaymentFailed,
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		OccurredAt: r.now(),
		Data: map[string]any{
			"reference":   failed.Reference,
			"gateway_txn": event.TransactionID,
			"reason":      failed.FailureReason,
		},
	}
	return OutcomeProcessed, notification, nil
}

func (r *Reconciler) notify(ctx context.Context, notification Notification) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Dispatch(ctx, notification); err != nil {
		r.logger(ctx, "notification dispatch failed", map[string]any{
			"event":      notification.Event,
			"booking_id": notification.BookingID,
			"error":      err.Error(),
		})
	}
}
