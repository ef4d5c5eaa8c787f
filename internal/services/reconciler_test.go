package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/sparklehome/api/internal/domain"
)

type reconcilerFixture struct {
	reconciler *Reconciler
	registry   *stubRegistry
	dispatcher *recordingDispatcher
	now        time.Time
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	registry := newStubRegistry()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	payments, err := NewPaymentService(PaymentServiceDeps{Payments: registry.payments, Clock: fixedClock(now)})
	if err != nil {
		t.Fatalf("NewPaymentService returned %v", err)
	}

	dispatcher := &recordingDispatcher{}
	reconciler, err := NewReconciler(ReconcilerDeps{
		Registry:  registry,
		Lifecycle: NewLifecycle(LifecycleDeps{}),
		Payments:  payments,
		Notifier:  dispatcher,
		Clock:     fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewReconciler returned %v", err)
	}

	return &reconcilerFixture{
		reconciler: reconciler,
		registry:   registry,
		dispatcher: dispatcher,
		now:        now,
	}
}

func successEvent() GatewayEvent {
	return GatewayEvent{
		Type:          GatewayEventChargeSucceeded,
		TransactionID: "txn_1",
		Reference:     "SPH-20260309143045-AB12CD",
	}
}

func failureEvent() GatewayEvent {
	return GatewayEvent{
		Type:          GatewayEventChargeFailed,
		TransactionID: "txn_1",
		Reference:     "SPH-20260309143045-AB12CD",
		FailureReason: "card declined",
	}
}

func TestParseGatewayEvent(t *testing.T) {
	body := []byte(`{
		"event": "charge_succeeded",
		"data": {
			"id": "txn_1",
			"reference": "SPH-20260309143045-AB12CD",
			"amount": 2500,
			"currency": "usd",
			"occurred_at": "2026-03-10T12:00:00Z"
		}
	}`)

	event, err := ParseGatewayEvent(body)
	if err != nil {
		t.Fatalf("ParseGatewayEvent returned %v", err)
	}
	if event.Type != GatewayEventChargeSucceeded || !event.Known() {
		t.Fatalf("event type = %s", event.Type)
	}
	if event.TransactionID != "txn_1" || event.Reference != "SPH-20260309143045-AB12CD" {
		t.Fatalf("event = %+v", event)
	}
	if !event.Amount.Equal(domain.NewMoney(2500, "USD")) {
		t.Fatalf("amount = %+v, want 2500 USD", event.Amount)
	}
	if event.OccurredAt.IsZero() {
		t.Fatal("occurred_at not parsed")
	}
}

func TestParseGatewayEventRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"missing event", `{"data": {"id": "txn_1", "reference": "ref"}}`},
		{"flat body without envelope", `{"type": "charge_succeeded", "transaction_id": "txn_1", "reference": "ref"}`},
		{"missing transaction id", `{"event": "charge_succeeded", "data": {"reference": "ref"}}`},
		{"missing reference", `{"event": "charge_failed", "data": {"id": "txn_1"}}`},
		{"decimal string amount", `{"event": "charge_succeeded", "data": {"id": "txn_1", "reference": "ref", "amount": "25.00", "currency": "USD"}}`},
		{"amount without currency", `{"event": "charge_succeeded", "data": {"id": "txn_1", "reference": "ref", "amount": 2500}}`},
		{"negative amount", `{"event": "charge_succeeded", "data": {"id": "txn_1", "reference": "ref", "amount": -1, "currency": "USD"}}`},
		{"bad timestamp", `{"event": "charge_succeeded", "data": {"id": "txn_1", "reference": "ref", "occurred_at": "yesterday"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGatewayEvent([]byte(tc.body))
			if _, ok := AsValidationError(err); !ok {
				t.Fatalf("ParseGatewayEvent error = %v, want validation error", err)
			}
		})
	}
}

func TestParseGatewayEventUnknownType(t *testing.T) {
	event, err := ParseGatewayEvent([]byte(`{"event": "customer.updated", "data": {}}`))
	if err != nil {
		t.Fatalf("ParseGatewayEvent returned %v", err)
	}
	if event.Known() {
		t.Fatalf("event %s reported as known", event.Type)
	}
}

func TestProcessIgnoresUnknownEventType(t *testing.T) {
	f := newReconcilerFixture(t)
	f.registry.payments.findByGatewayTxn = func(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
		t.Fatal("unknown event reached the payment lookup")
		return domain.Payment{}, nil
	}

	outcome, err := f.reconciler.Process(context.Background(), GatewayEvent{Type: "customer.updated"})
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("outcome = %s, want ignored", outcome)
	}
}

func TestProcessFirstSettlement(t *testing.T) {
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:        "pay_1",
		BookingID: "bkg_1",
		Reference: "SPH-20260309143045-AB12CD",
		Amount:    domain.NewMoney(2500, "USD"),
		Status:    domain.PaymentStatusPending,
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusPending}

	var paymentWrites []domain.Payment
	var bookingWrites []domain.Booking
	f.registry.payments.findByReference = func(ctx context.Context, reference string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.payments.update = func(ctx context.Context, p domain.Payment, expected *domain.PaymentStatus) error {
		paymentWrites = append(paymentWrites, p)
		return nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}
	f.registry.bookings.update = func(ctx context.Context, b domain.Booking, expected *domain.BookingStatus) error {
		bookingWrites = append(bookingWrites, b)
		return nil
	}

	outcome, err := f.reconciler.Process(context.Background(), successEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}

	if len(paymentWrites) != 1 {
		t.Fatalf("payment writes = %d, want 1", len(paymentWrites))
	}
	settled := paymentWrites[0]
	if settled.Status != domain.PaymentStatusCompleted || settled.GatewayTxnID != "txn_1" {
		t.Fatalf("settled payment = %+v", settled)
	}
	if len(bookingWrites) != 1 || bookingWrites[0].Status != domain.BookingStatusConfirmed {
		t.Fatalf("booking writes = %+v, want confirmed", bookingWrites)
	}

	if len(f.dispatcher.notifications) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(f.dispatcher.notifications))
	}
	if event := f.dispatcher.notifications[0].Event; event != NotificationPaymentSettled {
		t.Fatalf("notification event = %s", event)
	}
}

func TestProcessSettlementReplay(t *testing.T) {
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:           "pay_1",
		BookingID:    "bkg_1",
		Reference:    "SPH-20260309143045-AB12CD",
		Status:       domain.PaymentStatusCompleted,
		GatewayTxnID: "txn_1",
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusConfirmed}

	writes := 0
	f.registry.payments.findByGatewayTxn = func(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.payments.update = func(ctx context.Context, p domain.Payment, expected *domain.PaymentStatus) error {
		writes++
		return nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}
	f.registry.bookings.update = func(ctx context.Context, b domain.Booking, expected *domain.BookingStatus) error {
		writes++
		return nil
	}

	outcome, err := f.reconciler.Process(context.Background(), successEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeAlreadyProcessed {
		t.Fatalf("outcome = %s, want already_processed", outcome)
	}
	if writes != 0 {
		t.Fatalf("replay performed %d writes, want 0", writes)
	}
	if len(f.dispatcher.notifications) != 0 {
		t.Fatalf("replay dispatched %d notifications", len(f.dispatcher.notifications))
	}
}

func TestProcessRepairsHalfAppliedSettlement(t *testing.T) {
	// The payment settled on a previous delivery but the booking write never
	// landed. The replay must re-drive the booking transition.
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:           "pay_1",
		BookingID:    "bkg_1",
		Reference:    "SPH-20260309143045-AB12CD",
		Status:       domain.PaymentStatusCompleted,
		GatewayTxnID: "txn_1",
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusPending}

	var bookingWrites []domain.Booking
	f.registry.payments.findByGatewayTxn = func(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}
	f.registry.bookings.update = func(ctx context.Context, b domain.Booking, expected *domain.BookingStatus) error {
		bookingWrites = append(bookingWrites, b)
		return nil
	}

	outcome, err := f.reconciler.Process(context.Background(), successEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}
	if len(bookingWrites) != 1 || bookingWrites[0].Status != domain.BookingStatusConfirmed {
		t.Fatalf("booking writes = %+v, want confirmed", bookingWrites)
	}
}

func TestProcessFailureAfterSettlementIsNoop(t *testing.T) {
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:           "pay_1",
		BookingID:    "bkg_1",
		Reference:    "SPH-20260309143045-AB12CD",
		Status:       domain.PaymentStatusCompleted,
		GatewayTxnID: "txn_1",
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusConfirmed}

	writes := 0
	f.registry.payments.findByGatewayTxn = func(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.payments.update = func(ctx context.Context, p domain.Payment, expected *domain.PaymentStatus) error {
		writes++
		return nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}

	outcome, err := f.reconciler.Process(context.Background(), failureEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeAlreadyProcessed {
		t.Fatalf("outcome = %s, want already_processed", outcome)
	}
	if writes != 0 {
		t.Fatalf("late failure performed %d writes, want 0", writes)
	}
}

func TestProcessSettlementSupersedesFailedAttempt(t *testing.T) {
	// charge_failed for attempt txn_0 landed first; the successful retry
	// txn_1 must still settle the payment and confirm the booking.
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:            "pay_1",
		BookingID:     "bkg_1",
		Reference:     "SPH-20260309143045-AB12CD",
		Status:        domain.PaymentStatusFailed,
		GatewayTxnID:  "txn_0",
		FailureReason: "card declined",
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusPending}

	var paymentWrites []domain.Payment
	var bookingWrites []domain.Booking
	f.registry.payments.findByReference = func(ctx context.Context, reference string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.payments.update = func(ctx context.Context, p domain.Payment, expected *domain.PaymentStatus) error {
		paymentWrites = append(paymentWrites, p)
		return nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}
	f.registry.bookings.update = func(ctx context.Context, b domain.Booking, expected *domain.BookingStatus) error {
		bookingWrites = append(bookingWrites, b)
		return nil
	}

	outcome, err := f.reconciler.Process(context.Background(), successEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}
	if len(paymentWrites) != 1 {
		t.Fatalf("payment writes = %d, want 1", len(paymentWrites))
	}
	settled := paymentWrites[0]
	if settled.Status != domain.PaymentStatusCompleted || settled.GatewayTxnID != "txn_1" {
		t.Fatalf("settled payment = %+v, want completed under txn_1", settled)
	}
	if len(bookingWrites) != 1 || bookingWrites[0].Status != domain.BookingStatusConfirmed {
		t.Fatalf("booking writes = %+v, want confirmed", bookingWrites)
	}
}

func TestProcessSettlementOnCancelledBookingRefunds(t *testing.T) {
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:        "pay_1",
		BookingID: "bkg_1",
		Reference: "SPH-20260309143045-AB12CD",
		Status:    domain.PaymentStatusPending,
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusCancelled}

	var paymentWrites []domain.Payment
	bookingWrites := 0
	f.registry.payments.findByReference = func(ctx context.Context, reference string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.payments.update = func(ctx context.Context, p domain.Payment, expected *domain.PaymentStatus) error {
		paymentWrites = append(paymentWrites, p)
		return nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}
	f.registry.bookings.update = func(ctx context.Context, b domain.Booking, expected *domain.BookingStatus) error {
		bookingWrites++
		return nil
	}

	outcome, err := f.reconciler.Process(context.Background(), successEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}
	if len(paymentWrites) != 2 {
		t.Fatalf("payment writes = %d, want settle then refund", len(paymentWrites))
	}
	if paymentWrites[0].Status != domain.PaymentStatusCompleted {
		t.Fatalf("first write = %+v, want completed", paymentWrites[0])
	}
	if paymentWrites[1].Status != domain.PaymentStatusRefunded {
		t.Fatalf("second write = %+v, want refunded", paymentWrites[1])
	}
	if bookingWrites != 0 {
		t.Fatalf("cancelled booking written %d times, want 0", bookingWrites)
	}
}

func TestProcessFirstFailure(t *testing.T) {
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:        "pay_1",
		BookingID: "bkg_1",
		Reference: "SPH-20260309143045-AB12CD",
		Status:    domain.PaymentStatusPending,
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusPending}

	var paymentWrites []domain.Payment
	bookingWrites := 0
	f.registry.payments.findByReference = func(ctx context.Context, reference string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.payments.update = func(ctx context.Context, p domain.Payment, expected *domain.PaymentStatus) error {
		paymentWrites = append(paymentWrites, p)
		return nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}
	f.registry.bookings.update = func(ctx context.Context, b domain.Booking, expected *domain.BookingStatus) error {
		bookingWrites++
		return nil
	}

	outcome, err := f.reconciler.Process(context.Background(), failureEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}
	if len(paymentWrites) != 1 {
		t.Fatalf("payment writes = %d, want 1", len(paymentWrites))
	}
	failed := paymentWrites[0]
	if failed.Status != domain.PaymentStatusFailed || failed.FailureReason != "card declined" {
		t.Fatalf("failed payment = %+v", failed)
	}
	// The booking stays pending so the customer can retry the charge.
	if bookingWrites != 0 {
		t.Fatalf("failure wrote the booking %d times, want 0", bookingWrites)
	}

	if len(f.dispatcher.notifications) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(f.dispatcher.notifications))
	}
	if event := f.dispatcher.notifications[0].Event; event != NotificationPaymentFailed {
		t.Fatalf("notification event = %s", event)
	}
}

func TestProcessFailureReplay(t *testing.T) {
	f := newReconcilerFixture(t)
	payment := domain.Payment{
		ID:            "pay_1",
		BookingID:     "bkg_1",
		Reference:     "SPH-20260309143045-AB12CD",
		Status:        domain.PaymentStatusFailed,
		GatewayTxnID:  "txn_1",
		FailureReason: "card declined",
	}
	booking := domain.Booking{ID: "bkg_1", CustomerID: "cus_1", Status: domain.BookingStatusPending}

	writes := 0
	f.registry.payments.findByGatewayTxn = func(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
		return payment, nil
	}
	f.registry.payments.update = func(ctx context.Context, p domain.Payment, expected *domain.PaymentStatus) error {
		writes++
		return nil
	}
	f.registry.bookings.findByID = func(ctx context.Context, bookingID string) (domain.Booking, error) {
		return booking, nil
	}

	outcome, err := f.reconciler.Process(context.Background(), failureEvent())
	if err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if outcome != OutcomeAlreadyProcessed {
		t.Fatalf("outcome = %s, want already_processed", outcome)
	}
	if writes != 0 {
		t.Fatalf("replay performed %d writes, want 0", writes)
	}
}

func TestProcessDetectsTransactionCorruption(t *testing.T) {
	f := newReconcilerFixture(t)
	// txn_1 is recorded on a payment with a different merchant reference than
	// the event claims.
	f.registry.payments.findByGatewayTxn = func(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
		return domain.Payment{
			ID:           "pay_other",
			BookingID:    "bkg_other",
			Reference:    "SPH-20260301000000-ZZ99XX",
			Status:       domain.PaymentStatusCompleted,
			GatewayTxnID: "txn_1",
		}, nil
	}

	_, err := f.reconciler.Process(context.Background(), successEvent())
	if !errors.Is(err, ErrTransactionCorruption) {
		t.Fatalf("Process error = %v, want ErrTransactionCorruption", err)
	}
}

func TestProcessUnknownReference(t *testing.T) {
	f := newReconcilerFixture(t)

	_, err := f.reconciler.Process(context.Background(), successEvent())
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("Process error = %v, want ErrPaymentNotFound", err)
	}
}
