package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/platform/auth"
	"github.com/sparklehome/api/internal/platform/httpx"
	"github.com/sparklehome/api/internal/repositories"
)

// AddressHandlers exposes the customer's saved service addresses.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses repositories.AddressRepository
}

// NewAddressHandlers constructs address handlers.
func NewAddressHandlers(authn *auth.Authenticator, addresses repositories.AddressRepository) *AddressHandlers {
	return &AddressHandlers{authn: authn, addresses: addresses}
}

// Routes registers the /me/addresses endpoints.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/addresses", h.listAddresses)
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	addresses, err := h.addresses.List(ctx, identity.CustomerID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_unavailable", "failed to load addresses", http.StatusServiceUnavailable))
		return
	}

	items := make([]addressPayload, 0, len(addresses))
	for _, address := range addresses {
		items = append(items, buildAddressPayload(address))
	}
	httpx.WriteJSON(w, http.StatusOK, addressListResponse{Items: items})
}

type addressListResponse struct {
	Items []addressPayload `json:"items"`
}

type addressPayload struct {
	ID         string `json:"id"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	CreatedAt  string `json:"created_at"`
}

func buildAddressPayload(address domain.Address) addressPayload {
	return addressPayload{
		ID:         address.ID,
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		Region:     address.Region,
		PostalCode: address.PostalCode,
		CreatedAt:  formatTime(address.CreatedAt),
	}
}
