package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/sparklehome/api/internal/domain"
	pfirestore "github.com/sparklehome/api/internal/platform/firestore"
)

const paymentCollection = "payments"

// PaymentRepository persists payment records in Firestore. Both the merchant
// reference and the gateway transaction identity serve as unique lookup keys.
type PaymentRepository struct {
	provider *pfirestore.Provider
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{provider: provider}, nil
}

func (r *PaymentRepository) doc(ctx context.Context, paymentID string) (*firestore.DocumentRef, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, pfirestore.NewNotFoundError("payments.doc", errors.New("payment id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(paymentCollection).Doc(paymentID), nil
}

// Insert creates the payment record, failing with a conflict when the
// merchant reference is already taken by another payment.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	ref, err := r.doc(ctx, payment.ID)
	if err != nil {
		return err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	apply := func(ctx context.Context) error {
		query := client.Collection(paymentCollection).
			Query.
			Where("reference", "==", payment.Reference).
			Limit(1)
		existing, err := queryDocs(ctx, query)
		if err != nil {
			return pfirestore.WrapError("payments.insert", err)
		}
		if len(existing) > 0 {
			return pfirestore.NewConflictError("payments.insert",
				fmt.Errorf("payment reference %s already exists", payment.Reference))
		}
		return pfirestore.WrapError("payments.insert", createDoc(ctx, ref, payment))
	}

	if _, ok := txFromContext(ctx); ok {
		return apply(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return apply(withTx(ctx, tx))
	})
}

// Update persists the payment. A non-nil expectedStatus turns the write into
// a compare-and-swap against concurrent settlement. With a nil expectedStatus
// the write is a plain set with no read, keeping it legal after other writes
// in an ambient transaction.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment, expectedStatus *domain.PaymentStatus) error {
	ref, err := r.doc(ctx, payment.ID)
	if err != nil {
		return err
	}

	apply := func(ctx context.Context) error {
		if expectedStatus != nil {
			snap, err := getDoc(ctx, ref)
			if err != nil {
				return pfirestore.WrapError("payments.update", err)
			}
			var current domain.Payment
			if err := snap.DataTo(&current); err != nil {
				return pfirestore.WrapError("payments.update", fmt.Errorf("decode payment %s: %w", payment.ID, err))
			}
			if current.Status != *expectedStatus {
				return pfirestore.NewConflictError("payments.update",
					fmt.Errorf("payment %s is %s, expected %s", payment.ID, current.Status, *expectedStatus))
			}
		}
		return pfirestore.WrapError("payments.update", setDoc(ctx, ref, payment))
	}

	if _, ok := txFromContext(ctx); ok {
		return apply(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return apply(withTx(ctx, tx))
	})
}

// FindByID loads a payment by identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	ref, err := r.doc(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}

	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.find", err)
	}
	return decodePayment(snap)
}

// FindByBooking resolves the payment opened for the given booking.
func (r *PaymentRepository) FindByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	return r.findOne(ctx, "bookingId", strings.TrimSpace(bookingID), "payments.findByBooking")
}

// FindByReference resolves a payment by its merchant reference.
func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (domain.Payment, error) {
	return r.findOne(ctx, "reference", strings.TrimSpace(reference), "payments.findByReference")
}

// FindByGatewayTxn resolves a payment by the gateway transaction identity.
// Not-found is the expected outcome for first delivery of a gateway event.
func (r *PaymentRepository) FindByGatewayTxn(ctx context.Context, gatewayTxnID string) (domain.Payment, error) {
	return r.findOne(ctx, "gatewayTxnId", strings.TrimSpace(gatewayTxnID), "payments.findByGatewayTxn")
}

func (r *PaymentRepository) findOne(ctx context.Context, field, value, op string) (domain.Payment, error) {
	if value == "" {
		return domain.Payment{}, pfirestore.NewNotFoundError(op, fmt.Errorf("%s is required", field))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Payment{}, err
	}

	query := client.Collection(paymentCollection).
		Query.
		Where(field, "==", value).
		Limit(1)
	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError(op, err)
	}
	if len(snaps) == 0 {
		return domain.Payment{}, pfirestore.NewNotFoundError(op, fmt.Errorf("no payment with %s %s", field, value))
	}
	return decodePayment(snaps[0])
}

func decodePayment(snap *firestore.DocumentSnapshot) (domain.Payment, error) {
	var payment domain.Payment
	if err := snap.DataTo(&payment); err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.decode", fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err))
	}
	if payment.ID == "" {
		payment.ID = snap.Ref.ID
	}
	return payment, nil
}
