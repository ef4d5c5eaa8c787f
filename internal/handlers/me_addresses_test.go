package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sparklehome/api/internal/domain"
)

type stubAddressRepository struct {
	listFn func(context.Context, string) ([]domain.Address, error)
}

func (s *stubAddressRepository) Get(ctx context.Context, customerID, addressID string) (domain.Address, error) {
	return domain.Address{}, errors.New("not implemented")
}

func (s *stubAddressRepository) Insert(ctx context.Context, address domain.Address) (domain.Address, error) {
	return domain.Address{}, errors.New("not implemented")
}

func (s *stubAddressRepository) List(ctx context.Context, customerID string) ([]domain.Address, error) {
	if s.listFn != nil {
		return s.listFn(ctx, customerID)
	}
	return nil, nil
}

func TestAddressHandlersListAddresses(t *testing.T) {
	var capturedCustomer string
	addresses := &stubAddressRepository{
		listFn: func(ctx context.Context, customerID string) ([]domain.Address, error) {
			capturedCustomer = customerID
			return []domain.Address{{
				ID:         "addr_1",
				CustomerID: customerID,
				Line1:      "12 Cherry Lane",
				City:       "Springfield",
				PostalCode: "62704",
				CreatedAt:  time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
			}}, nil
		},
	}
	handler := NewAddressHandlers(nil, addresses)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := withCustomer(httptest.NewRequest(http.MethodGet, "/me/addresses", nil), "cust_1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCustomer != "cust_1" {
		t.Fatalf("expected customer cust_1, got %s", capturedCustomer)
	}

	var resp addressListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "addr_1" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.Items[0].CreatedAt != "2026-01-05T08:00:00Z" {
		t.Fatalf("unexpected created_at %s", resp.Items[0].CreatedAt)
	}
}

func TestAddressHandlersListAddressesRequiresIdentity(t *testing.T) {
	handler := NewAddressHandlers(nil, &stubAddressRepository{})
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me/addresses", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestAddressHandlersListAddressesUnavailable(t *testing.T) {
	addresses := &stubAddressRepository{
		listFn: func(ctx context.Context, customerID string) ([]domain.Address, error) {
			return nil, errors.New("firestore down")
		},
	}
	handler := NewAddressHandlers(nil, addresses)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := withCustomer(httptest.NewRequest(http.MethodGet, "/me/addresses", nil), "cust_1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
