package services

import (
	"context"
	"time"
)

// Notification event vocabulary emitted by the booking and payment flows.
const (
	NotificationBookingCreated       = "booking.created"
	NotificationBookingStatusChanged = "booking.status.changed"
	NotificationBookingCancelled     = "booking.cancelled"
	NotificationPaymentSettled       = "payment.settled"
	NotificationPaymentFailed        = "payment.failed"
)

// Notification is the "this happened" message handed to the dispatcher.
// Composition and channel delivery (email, push) live behind the boundary.
type Notification struct {
	Event      string         `json:"event"`
	BookingID  string         `json:"booking_id"`
	CustomerID string         `json:"customer_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// NotificationDispatcher hands completed state changes to the delivery
// pipeline. Dispatch failures are logged and swallowed by callers; they never
// roll back a booking or payment write.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification Notification) error
}

// NotificationDispatcherFunc adapts a function to NotificationDispatcher.
type NotificationDispatcherFunc func(ctx context.Context, notification Notification) error

// Dispatch implements NotificationDispatcher.
func (f NotificationDispatcherFunc) Dispatch(ctx context.Context, notification Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, notification)
}
