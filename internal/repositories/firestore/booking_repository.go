package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/sparklehome/api/internal/domain"
	pfirestore "github.com/sparklehome/api/internal/platform/firestore"
	"github.com/sparklehome/api/internal/platform/pagination"
	"github.com/sparklehome/api/internal/repositories"
)

const bookingCollection = "bookings"

// BookingRepository persists booking aggregates in Firestore. Service and
// extra lines are embedded in the booking document, so header and lines
// always commit together and a delete removes the lines with the booking.
type BookingRepository struct {
	provider *pfirestore.Provider
}

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository requires firestore provider")
	}
	return &BookingRepository{provider: provider}, nil
}

func (r *BookingRepository) doc(ctx context.Context, bookingID string) (*firestore.DocumentRef, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, pfirestore.NewNotFoundError("bookings.doc", errors.New("booking id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(bookingCollection).Doc(bookingID), nil
}

// Insert creates the booking document, failing with a conflict when the
// identifier is already taken.
func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) error {
	ref, err := r.doc(ctx, booking.ID)
	if err != nil {
		return err
	}
	if err := createDoc(ctx, ref, booking); err != nil {
		return pfirestore.WrapError("bookings.insert", err)
	}
	return nil
}

// Update persists the booking. A non-nil expectedStatus turns the write into
// a compare-and-swap: the stored status must still match or the update fails
// with a conflict. With a nil expectedStatus the write is a plain set with no
// read, so it stays legal after other writes in an ambient transaction; the
// transaction's own serialization covers callers that already read the
// document.
func (r *BookingRepository) Update(ctx context.Context, booking domain.Booking, expectedStatus *domain.BookingStatus) error {
	ref, err := r.doc(ctx, booking.ID)
	if err != nil {
		return err
	}

	apply := func(ctx context.Context) error {
		if expectedStatus != nil {
			snap, err := getDoc(ctx, ref)
			if err != nil {
				return pfirestore.WrapError("bookings.update", err)
			}
			var current domain.Booking
			if err := snap.DataTo(&current); err != nil {
				return pfirestore.WrapError("bookings.update", fmt.Errorf("decode booking %s: %w", booking.ID, err))
			}
			if current.Status != *expectedStatus {
				return pfirestore.NewConflictError("bookings.update",
					fmt.Errorf("booking %s is %s, expected %s", booking.ID, current.Status, *expectedStatus))
			}
		}
		return pfirestore.WrapError("bookings.update", setDoc(ctx, ref, booking))
	}

	if _, ok := txFromContext(ctx); ok {
		return apply(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return apply(withTx(ctx, tx))
	})
}

// FindByID loads the booking with its embedded line collections.
func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	ref, err := r.doc(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}

	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Booking{}, pfirestore.WrapError("bookings.find", err)
	}

	var booking domain.Booking
	if err := snap.DataTo(&booking); err != nil {
		return domain.Booking{}, pfirestore.WrapError("bookings.find", fmt.Errorf("decode booking %s: %w", bookingID, err))
	}
	if booking.ID == "" {
		booking.ID = snap.Ref.ID
	}
	return booking, nil
}

// ListByCustomer returns the customer's bookings newest first with cursor
// pagination.
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID string, filter repositories.BookingListFilter) (domain.CursorPage[domain.Booking], error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CursorPage[domain.Booking]{}, pfirestore.NewNotFoundError("bookings.list", errors.New("customer id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Booking]{}, err
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	query := client.Collection(bookingCollection).
		Query.
		Where("customerId", "==", customerID)

	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			statuses = append(statuses, string(status))
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("createdAt", ">", filter.CreatedAfter.UTC())
	}

	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Booking]{}, err
		}
		if start, ok := bookingCursorValues(cursor); ok {
			query = query.StartAfter(start...)
		}
	}

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return domain.CursorPage[domain.Booking]{}, pfirestore.WrapError("bookings.list", err)
	}

	page := domain.CursorPage[domain.Booking]{}
	for i, snap := range snaps {
		if i >= pageSize {
			break
		}
		var booking domain.Booking
		if err := snap.DataTo(&booking); err != nil {
			return domain.CursorPage[domain.Booking]{}, pfirestore.WrapError("bookings.list", fmt.Errorf("decode booking %s: %w", snap.Ref.ID, err))
		}
		if booking.ID == "" {
			booking.ID = snap.Ref.ID
		}
		page.Items = append(page.Items, booking)
	}

	if len(snaps) > pageSize {
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Booking]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func bookingCursorValues(cursor pagination.Cursor) ([]any, bool) {
	if len(cursor.StartAfter) != 2 {
		return nil, false
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, false
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, false
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, false
	}
	return []any{ts, id}, true
}
