package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/platform/httpx"
	"github.com/sparklehome/api/internal/platform/pagination"
	"github.com/sparklehome/api/internal/repositories"
)

// CatalogHandlers serves the public cleaning service and extra listings the
// booking flow picks from.
type CatalogHandlers struct {
	catalog repositories.CatalogRepository
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog repositories.CatalogRepository) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/services", h.listServices)
	r.Get("/extras", h.listExtras)
}

func (h *CatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pager, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListServices(ctx, domain.Pagination{
		PageSize:  pager.PageSize,
		PageToken: pager.PageToken,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "failed to load catalog", http.StatusServiceUnavailable))
		return
	}

	items := make([]catalogEntryPayload, 0, len(page.Items))
	for _, service := range page.Items {
		items = append(items, catalogEntryPayload{
			ID:    service.ID,
			Name:  service.Name,
			Price: buildMoneyPayload(service.Price),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, catalogListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *CatalogHandlers) listExtras(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pager, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListExtras(ctx, domain.Pagination{
		PageSize:  pager.PageSize,
		PageToken: pager.PageToken,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "failed to load catalog", http.StatusServiceUnavailable))
		return
	}

	items := make([]catalogEntryPayload, 0, len(page.Items))
	for _, extra := range page.Items {
		items = append(items, catalogEntryPayload{
			ID:    extra.ID,
			Name:  extra.Name,
			Price: buildMoneyPayload(extra.Price),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, catalogListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

type catalogListResponse struct {
	Items         []catalogEntryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type catalogEntryPayload struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Price moneyPayload `json:"price"`
}
