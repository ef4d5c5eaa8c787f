package services

import (
	"errors"
	"fmt"

	"github.com/sparklehome/api/internal/repositories"
)

var (
	// ErrBookingNotFound indicates the booking does not exist or is not visible
	// to the caller.
	ErrBookingNotFound = errors.New("booking: not found")
	// ErrPaymentNotFound indicates no payment matches the lookup key.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrInvalidReference indicates a dangling or inactive catalog/address id.
	ErrInvalidReference = errors.New("booking: invalid reference")
	// ErrInvalidQuantity indicates a zero or negative line quantity.
	ErrInvalidQuantity = errors.New("booking: invalid quantity")
	// ErrInvalidTransition indicates a lifecycle rule violation.
	ErrInvalidTransition = errors.New("booking: invalid transition")
	// ErrCancellationWindowExpired indicates the cutoff before service time has
	// passed, so the booking can no longer be modified or cancelled.
	ErrCancellationWindowExpired = errors.New("booking: cancellation window expired")
	// ErrDuplicateReference indicates the generated payment reference is
	// already taken.
	ErrDuplicateReference = errors.New("payment: duplicate reference")
	// ErrAlreadyProcessed signals an idempotent no-op: the gateway event was
	// handled before and local state already reflects it.
	ErrAlreadyProcessed = errors.New("reconciler: already processed")
	// ErrTransactionCorruption indicates a gateway transaction identity is
	// recorded on a different payment than the event claims. This is surfaced,
	// never silently overwritten.
	ErrTransactionCorruption = errors.New("reconciler: transaction identity recorded on different payment")
	// ErrConflict indicates a concurrent writer won the race; callers may
	// retry against fresh state.
	ErrConflict = errors.New("services: conflict")
	// ErrUnavailable indicates a transient storage failure.
	ErrUnavailable = errors.New("services: storage unavailable")
)

// ValidationError reports a bad input value together with the offending field
// so callers can surface an actionable message.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: field %s: %s", e.Field, e.Message)
}

// NewValidationError builds a field-scoped validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation, true
	}
	return nil, false
}

// mapRepositoryError folds persistence failures into the service taxonomy.
// notFound names the sentinel to use for missing rows, since the meaning
// depends on the lookup.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return fmt.Errorf("%w: %v", notFound, err)
			}
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
