package domain

import (
	"fmt"
	"time"
)

// BookingStatus enumerates the lifecycle states a booking moves through.
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// PaymentStatus enumerates payment record states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

const (
	// ServiceDateLayout is the wire and storage format for booking dates.
	ServiceDateLayout = "2006-01-02"
	// ServiceTimeLayout is the wire and storage format for booking times of day.
	ServiceTimeLayout = "15:04"
)

// ServiceLine is a priced, quantified reference to a catalog cleaning service,
// snapshotted into the booking at pricing time. Later catalog price changes do
// not alter it.
type ServiceLine struct {
	ServiceID string `firestore:"serviceId" json:"service_id"`
	Name      string `firestore:"name" json:"name"`
	Quantity  int    `firestore:"quantity" json:"quantity"`
	UnitPrice Money  `firestore:"unitPrice" json:"unit_price"`
	Total     Money  `firestore:"total" json:"total"`
}

// ExtraLine mirrors ServiceLine for catalog extras (add-ons).
type ExtraLine struct {
	ExtraID   string `firestore:"extraId" json:"extra_id"`
	Name      string `firestore:"name" json:"name"`
	Quantity  int    `firestore:"quantity" json:"quantity"`
	UnitPrice Money  `firestore:"unitPrice" json:"unit_price"`
	Total     Money  `firestore:"total" json:"total"`
}

// Booking is a scheduled cleaning appointment. It aggregate-owns its service
// and extra lines; the address is a weak reference into the customer profile.
type Booking struct {
	ID          string        `firestore:"id" json:"id"`
	CustomerID  string        `firestore:"customerId" json:"customer_id"`
	Status      BookingStatus `firestore:"status" json:"status"`
	ServiceDate string        `firestore:"serviceDate" json:"service_date"`
	ServiceTime string        `firestore:"serviceTime" json:"service_time"`
	AddressID   string        `firestore:"addressId" json:"address_id"`
	Services    []ServiceLine `firestore:"services" json:"services"`
	Extras      []ExtraLine   `firestore:"extras" json:"extras"`
	Total       Money         `firestore:"total" json:"total"`
	Notes       string        `firestore:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt   time.Time     `firestore:"createdAt" json:"created_at"`
	UpdatedAt   time.Time     `firestore:"updatedAt" json:"updated_at"`
}

// ScheduledAt combines the service date and time into an instant in the given
// location.
func (b Booking) ScheduledAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(ServiceDateLayout+" "+ServiceTimeLayout, b.ServiceDate+" "+b.ServiceTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking %s: invalid schedule: %w", b.ID, err)
	}
	return ts, nil
}

// LineTotal recomputes the grand total from the owned line collections. The
// stored Total must always equal this value; callers recompute rather than
// patch.
func (b Booking) LineTotal() (Money, error) {
	total := NewMoney(0, b.Total.Currency)
	for _, line := range b.Services {
		sum, err := total.Add(line.Total)
		if err != nil {
			return Money{}, err
		}
		total = sum
	}
	for _, line := range b.Extras {
		sum, err := total.Add(line.Total)
		if err != nil {
			return Money{}, err
		}
		total = sum
	}
	return total, nil
}

// Payment is the local record of a charge attempt against a booking. Exactly
// one payment settles a booking; the gateway transaction identity is the
// idempotency key for webhook reconciliation.
type Payment struct {
	ID            string        `firestore:"id" json:"id"`
	BookingID     string        `firestore:"bookingId" json:"booking_id"`
	Reference     string        `firestore:"reference" json:"reference"`
	GatewayTxnID  string        `firestore:"gatewayTxnId,omitempty" json:"gateway_txn_id,omitempty"`
	Amount        Money         `firestore:"amount" json:"amount"`
	Status        PaymentStatus `firestore:"status" json:"status"`
	FailureReason string        `firestore:"failureReason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `firestore:"createdAt" json:"created_at"`
	UpdatedAt     time.Time     `firestore:"updatedAt" json:"updated_at"`
	SettledAt     *time.Time    `firestore:"settledAt,omitempty" json:"settled_at,omitempty"`
}

// Address is a customer-owned service location referenced by bookings.
type Address struct {
	ID         string    `firestore:"id" json:"id"`
	CustomerID string    `firestore:"customerId" json:"customer_id"`
	Line1      string    `firestore:"line1" json:"line1"`
	Line2      string    `firestore:"line2,omitempty" json:"line2,omitempty"`
	City       string    `firestore:"city" json:"city"`
	Region     string    `firestore:"region,omitempty" json:"region,omitempty"`
	PostalCode string    `firestore:"postalCode" json:"postal_code"`
	CreatedAt  time.Time `firestore:"createdAt" json:"created_at"`
}

// CatalogService is read-only reference data describing a bookable cleaning
// service.
type CatalogService struct {
	ID     string `firestore:"id" json:"id"`
	Name   string `firestore:"name" json:"name"`
	Price  Money  `firestore:"price" json:"price"`
	Active bool   `firestore:"active" json:"active"`
}

// CatalogExtra is read-only reference data describing a bookable add-on.
type CatalogExtra struct {
	ID     string `firestore:"id" json:"id"`
	Name   string `firestore:"name" json:"name"`
	Price  Money  `firestore:"price" json:"price"`
	Active bool   `firestore:"active" json:"active"`
}

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
