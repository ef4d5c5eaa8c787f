package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sparklehome/api/internal/domain"
)

type stubCatalogRepository struct {
	listServicesFn func(context.Context, domain.Pagination) (domain.CursorPage[domain.CatalogService], error)
	listExtrasFn   func(context.Context, domain.Pagination) (domain.CursorPage[domain.CatalogExtra], error)
}

func (s *stubCatalogRepository) GetService(ctx context.Context, serviceID string) (domain.CatalogService, error) {
	return domain.CatalogService{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) GetExtra(ctx context.Context, extraID string) (domain.CatalogExtra, error) {
	return domain.CatalogExtra{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) ListServices(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogService], error) {
	if s.listServicesFn != nil {
		return s.listServicesFn(ctx, pager)
	}
	return domain.CursorPage[domain.CatalogService]{}, nil
}

func (s *stubCatalogRepository) ListExtras(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogExtra], error) {
	if s.listExtrasFn != nil {
		return s.listExtrasFn(ctx, pager)
	}
	return domain.CursorPage[domain.CatalogExtra]{}, nil
}

func newCatalogRouter(catalog *stubCatalogRepository) chi.Router {
	handler := NewCatalogHandlers(catalog)
	router := chi.NewRouter()
	router.Route("/catalog", handler.Routes)
	return router
}

func TestCatalogHandlersListServices(t *testing.T) {
	var capturedPager domain.Pagination
	catalog := &stubCatalogRepository{
		listServicesFn: func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogService], error) {
			capturedPager = pager
			return domain.CursorPage[domain.CatalogService]{
				Items: []domain.CatalogService{
					{ID: "svc_deep", Name: "Deep Clean", Price: domain.NewMoney(1000, "USD"), Active: true},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}
	router := newCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodGet, "/catalog/services?page_size=5&page_token=tok123", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedPager.PageSize != 5 || capturedPager.PageToken != "tok123" {
		t.Fatalf("unexpected pagination %+v", capturedPager)
	}

	var resp catalogListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "svc_deep" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.Items[0].Price.Amount != "10.00" || resp.Items[0].Price.Currency != "USD" {
		t.Fatalf("unexpected price %+v", resp.Items[0].Price)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestCatalogHandlersListExtras(t *testing.T) {
	catalog := &stubCatalogRepository{
		listExtrasFn: func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogExtra], error) {
			return domain.CursorPage[domain.CatalogExtra]{
				Items: []domain.CatalogExtra{
					{ID: "ext_oven", Name: "Oven", Price: domain.NewMoney(500, "USD"), Active: true},
				},
			}, nil
		},
	}
	router := newCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodGet, "/catalog/extras", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp catalogListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "ext_oven" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}

func TestCatalogHandlersListServicesUnavailable(t *testing.T) {
	catalog := &stubCatalogRepository{
		listServicesFn: func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogService], error) {
			return domain.CursorPage[domain.CatalogService]{}, errors.New("firestore down")
		},
	}
	router := newCatalogRouter(catalog)

	req := httptest.NewRequest(http.MethodGet, "/catalog/services", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
