package services

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/sparklehome/api/internal/domain"
)

const defaultCancellationCutoff = 24 * time.Hour

// bookingTransitions is the closed set of legal status moves. Anything not
// listed is rejected without mutating stored state.
var bookingTransitions = map[domain.BookingStatus][]domain.BookingStatus{
	domain.BookingStatusPending:    {domain.BookingStatusConfirmed, domain.BookingStatusCancelled},
	domain.BookingStatusConfirmed:  {domain.BookingStatusInProgress, domain.BookingStatusCancelled},
	domain.BookingStatusInProgress: {domain.BookingStatusCompleted},
	domain.BookingStatusCompleted:  {},
	domain.BookingStatusCancelled:  {},
}

// Lifecycle owns the booking state machine and the time-window rules gating
// customer edits.
type Lifecycle struct {
	cutoff   time.Duration
	location *time.Location
}

// LifecycleDeps configures the state machine.
type LifecycleDeps struct {
	// CancellationCutoff is the minimum lead time before the scheduled
	// service instant during which cancel and modify are refused.
	CancellationCutoff time.Duration
	// Location resolves booking date/time strings into instants.
	Location *time.Location
}

// NewLifecycle constructs the state machine with its business-rule knobs.
func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	cutoff := deps.CancellationCutoff
	if cutoff <= 0 {
		cutoff = defaultCancellationCutoff
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Lifecycle{cutoff: cutoff, location: loc}
}

// Cutoff exposes the configured lead-time window.
func (l *Lifecycle) Cutoff() time.Duration { return l.cutoff }

// CanTransition reports whether from→to is a listed move.
func (l *Lifecycle) CanTransition(from, to domain.BookingStatus) bool {
	for _, allowed := range bookingTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// EnsureTransition validates from→to, returning ErrInvalidTransition with the
// offending pair when the move is not listed.
func (l *Lifecycle) EnsureTransition(from, to domain.BookingStatus) error {
	if !l.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ApplySettlement returns the booking status after a payment settles.
// pending→confirmed; an already confirmed (or later) booking is left alone —
// replayed settlements are a no-op, not an error.
func (l *Lifecycle) ApplySettlement(current domain.BookingStatus) (domain.BookingStatus, bool, error) {
	switch current {
	case domain.BookingStatusPending:
		return domain.BookingStatusConfirmed, true, nil
	case domain.BookingStatusConfirmed, domain.BookingStatusInProgress, domain.BookingStatusCompleted:
		return current, false, nil
	default:
		return current, false, fmt.Errorf("%w: settlement on %s booking", ErrInvalidTransition, current)
	}
}

// EnsureMutable gates customer-initiated cancel and modify: the booking must
// be pending or confirmed and the service instant must be further away than
// the cutoff. Checks run against the status the caller just read; the write
// re-checks via compare-and-swap.
func (l *Lifecycle) EnsureMutable(booking domain.Booking, now time.Time) error {
	switch booking.Status {
	case domain.BookingStatusPending, domain.BookingStatusConfirmed:
	default:
		return fmt.Errorf("%w: booking is %s", ErrInvalidTransition, booking.Status)
	}

	scheduledAt, err := booking.ScheduledAt(l.location)
	if err != nil {
		return err
	}
	if scheduledAt.Sub(now) <= l.cutoff {
		return fmt.Errorf("%w: less than %s before service time", ErrCancellationWindowExpired, l.cutoff)
	}
	return nil
}

// EnsureProgress validates a cleaner/admin progress update. Progress moves
// only forward along confirmed→in_progress→completed.
func (l *Lifecycle) EnsureProgress(from, to domain.BookingStatus) error {
	switch to {
	case domain.BookingStatusInProgress, domain.BookingStatusCompleted:
	default:
		return fmt.Errorf("%w: %s is not a progress state", ErrInvalidTransition, to)
	}
	return l.EnsureTransition(from, to)
}

// ValidateStatus reports whether the raw value names a known booking status.
func ValidateStatus(raw string) (domain.BookingStatus, error) {
	status := domain.BookingStatus(raw)
	if _, ok := bookingTransitions[status]; !ok {
		return "", errors.New("unknown booking status " + raw)
	}
	return status, nil
}
