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

// AddressSelection picks either an existing address by id or supplies a new
// address payload to be inserted with the booking.
type AddressSelection struct {
	AddressID  string
	NewAddress *NewAddress
}

// NewAddress is the payload for an address created alongside a booking.
type NewAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
}

// Schedule carries the requested service date and time of day.
type Schedule struct {
	ServiceDate string `json:"service_date"`
	ServiceTime string `json:"service_time"`
}

// ReferenceValidatorDeps wires the lookups the validator performs.
type ReferenceValidatorDeps struct {
	Addresses repositories.AddressRepository
}

// ReferenceValidator confirms address and schedule inputs before any write
// begins. Catalog ids are validated by the pricing engine, which resolves
// them anyway; duplicating those lookups here would double the reads on the
// hot path.
type ReferenceValidator struct {
	addresses repositories.AddressRepository
}

// NewReferenceValidator constructs the validator.
func NewReferenceValidator(deps ReferenceValidatorDeps) (*ReferenceValidator, error) {
	if deps.Addresses == nil {
		return nil, errors.New("reference validator: address repository is required")
	}
	return &ReferenceValidator{addresses: deps.Addresses}, nil
}

// ValidateSchedule checks the date and time-of-day syntax.
func (v *ReferenceValidator) ValidateSchedule(schedule Schedule) error {
	if _, err := time.Parse(domain.ServiceDateLayout, strings.TrimSpace(schedule.ServiceDate)); err != nil {
		return NewValidationError("service_date", "must be a valid date in YYYY-MM-DD format")
	}
	if _, err := time.Parse(domain.ServiceTimeLayout, strings.TrimSpace(schedule.ServiceTime)); err != nil {
		return NewValidationError("service_time", "must be a valid time in HH:MM format")
	}
	return nil
}

// PreparedAddress is a validated address selection. ID is final either way;
// Pending is non-nil when the address is new and still needs the
// CommitAddress insert inside the caller's transaction.
type PreparedAddress struct {
	ID      string
	Pending *domain.Address
}

// PrepareAddress validates the address selection using reads only, so the
// caller can run it at the start of a transaction before any write. An
// existing id must resolve to an address the customer owns; a new payload is
// checked for completeness and assigned its id up front, with the insert
// deferred to CommitAddress.
func (v *ReferenceValidator) PrepareAddress(ctx context.Context, customerID string, selection AddressSelection) (PreparedAddress, error) {
	addressID := strings.TrimSpace(selection.AddressID)

	switch {
	case addressID != "" && selection.NewAddress != nil:
		return PreparedAddress{}, NewValidationError("address", "supply either address_id or new_address, not both")
	case addressID != "":
		if _, err := v.addresses.Get(ctx, customerID, addressID); err != nil {
			if isNotFound(err) {
				return PreparedAddress{}, fmt.Errorf("%w: address %s", ErrInvalidReference, addressID)
			}
			return PreparedAddress{}, mapRepositoryError(err, nil)
		}
		return PreparedAddress{ID: addressID}, nil
	case selection.NewAddress != nil:
		if err := validateNewAddress(*selection.NewAddress); err != nil {
			return PreparedAddress{}, err
		}
		pending := domain.Address{
			ID:         "addr_" + ulid.Make().String(),
			CustomerID: customerID,
			Line1:      strings.TrimSpace(selection.NewAddress.Line1),
			Line2:      strings.TrimSpace(selection.NewAddress.Line2),
			City:       strings.TrimSpace(selection.NewAddress.City),
			Region:     strings.TrimSpace(selection.NewAddress.Region),
			PostalCode: strings.TrimSpace(selection.NewAddress.PostalCode),
		}
		return PreparedAddress{ID: pending.ID, Pending: &pending}, nil
	default:
		return PreparedAddress{}, NewValidationError("address", "address_id or new_address is required")
	}
}

// CommitAddress inserts a pending new address. A selection that resolved to
// an existing address is a no-op.
func (v *ReferenceValidator) CommitAddress(ctx context.Context, prepared PreparedAddress) error {
	if prepared.Pending == nil {
		return nil
	}
	if _, err := v.addresses.Insert(ctx, *prepared.Pending); err != nil {
		return mapRepositoryError(err, nil)
	}
	return nil
}

func validateNewAddress(addr NewAddress) error {
	if strings.TrimSpace(addr.Line1) == "" {
		return NewValidationError("new_address.line1", "is required")
	}
	if strings.TrimSpace(addr.City) == "" {
		return NewValidationError("new_address.city", "is required")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return NewValidationError("new_address.postal_code", "is required")
	}
	return nil
}
