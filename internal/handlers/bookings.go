package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/platform/auth"
	"github.com/sparklehome/api/internal/platform/httpx"
	"github.com/sparklehome/api/internal/platform/pagination"
	"github.com/sparklehome/api/internal/repositories"
	"github.com/sparklehome/api/internal/services"
)

const maxBookingBodySize = 64 * 1024

type cartLinePayload struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type createBookingRequest struct {
	ServiceDate string               `json:"service_date"`
	ServiceTime string               `json:"service_time"`
	AddressID   string               `json:"address_id,omitempty"`
	NewAddress  *services.NewAddress `json:"new_address,omitempty"`
	Services    []cartLinePayload    `json:"services"`
	Extras      []cartLinePayload    `json:"extras,omitempty"`
	Notes       string               `json:"notes,omitempty"`
}

type modifyBookingRequest struct {
	ServiceDate string               `json:"service_date,omitempty"`
	ServiceTime string               `json:"service_time,omitempty"`
	AddressID   string               `json:"address_id,omitempty"`
	NewAddress  *services.NewAddress `json:"new_address,omitempty"`
	Services    []cartLinePayload    `json:"services,omitempty"`
	Extras      []cartLinePayload    `json:"extras,omitempty"`
	Notes       *string              `json:"notes,omitempty"`
}

type progressBookingRequest struct {
	Status string `json:"status"`
}

// BookingHandlers exposes the booking endpoints for authenticated customers
// and the staff progress endpoint.
type BookingHandlers struct {
	authn       *auth.Authenticator
	bookings    services.BookingService
	payments    services.PaymentService
	createLimit rateLimiter
}

// BookingHandlerOption customises booking handlers.
type BookingHandlerOption func(*BookingHandlers)

// WithCreateRateLimit caps booking creation per customer inside a fixed
// window. Zero or negative values disable the limit.
func WithCreateRateLimit(limit int, window time.Duration) BookingHandlerOption {
	return func(h *BookingHandlers) {
		h.createLimit = newFixedWindowLimiter(limit, window, time.Now)
	}
}

// NewBookingHandlers constructs booking handlers.
func NewBookingHandlers(authn *auth.Authenticator, bookings services.BookingService, payments services.PaymentService, opts ...BookingHandlerOption) *BookingHandlers {
	h := &BookingHandlers{
		authn:    authn,
		bookings: bookings,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the customer-facing /bookings endpoints. The create
// endpoint is additionally wrapped with the idempotency middleware at the
// router level.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createBooking)
	r.Get("/", h.listBookings)
	r.Get("/{bookingID}", h.getBooking)
	r.Patch("/{bookingID}", h.modifyBooking)
	r.Post("/{bookingID}:cancel", h.cancelBooking)
}

// StaffRoutes registers the staff progress endpoint.
func (h *BookingHandlers) StaffRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Post("/{bookingID}:progress", h.progressBooking)
}

func (h *BookingHandlers) createBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.createLimit != nil && !h.createLimit.Allow(identity.CustomerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many booking attempts, slow down", http.StatusTooManyRequests))
		return
	}

	var req createBookingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.bookings.Create(ctx, services.CreateBookingCommand{
		CustomerID: identity.CustomerID,
		Schedule: services.Schedule{
			ServiceDate: req.ServiceDate,
			ServiceTime: req.ServiceTime,
		},
		Address: services.AddressSelection{
			AddressID:  req.AddressID,
			NewAddress: req.NewAddress,
		},
		Cart:  cartFromPayload(req.Services, req.Extras),
		Notes: req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, bookingResponse{
		Booking: buildBookingPayload(result.Booking),
		Payment: buildPaymentPayloadPtr(result.Payment),
	})
}

func (h *BookingHandlers) listBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	pager, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := repositories.BookingListFilter{
		Pagination: domain.Pagination{
			PageSize:  pager.PageSize,
			PageToken: pager.PageToken,
		},
	}
	for _, raw := range r.URL.Query()["status"] {
		status, err := services.ValidateStatus(strings.TrimSpace(raw))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid booking status", http.StatusBadRequest))
			return
		}
		filter.Status = append(filter.Status, status)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("created_after")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedAfter = &ts
	}

	page, err := h.bookings.List(ctx, identity.CustomerID, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]bookingSummaryPayload, 0, len(page.Items))
	for _, booking := range page.Items {
		items = append(items, buildBookingSummary(booking))
	}
	httpx.WriteJSON(w, http.StatusOK, bookingListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *BookingHandlers) getBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	bookingID, ok := requireBookingID(ctx, w, r)
	if !ok {
		return
	}

	booking, err := h.bookings.Get(ctx, customerScope(identity), bookingID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	response := bookingResponse{Booking: buildBookingPayload(booking)}
	if payment, err := h.payments.GetByBooking(ctx, booking.ID); err == nil {
		response.Payment = buildPaymentPayloadPtr(payment)
	} else if !errors.Is(err, services.ErrPaymentNotFound) {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *BookingHandlers) modifyBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	bookingID, ok := requireBookingID(ctx, w, r)
	if !ok {
		return
	}

	var req modifyBookingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.ModifyBookingCommand{
		CustomerID: identity.CustomerID,
		BookingID:  bookingID,
		Notes:      req.Notes,
	}
	// Absent line arrays leave the booking's lines alone; submitting either
	// one replaces both sets with the priced result.
	if req.Services != nil || req.Extras != nil {
		cart := cartFromPayload(req.Services, req.Extras)
		cmd.Cart = &cart
	}
	if req.ServiceDate != "" || req.ServiceTime != "" {
		cmd.Schedule = &services.Schedule{
			ServiceDate: req.ServiceDate,
			ServiceTime: req.ServiceTime,
		}
	}
	if req.AddressID != "" || req.NewAddress != nil {
		cmd.Address = &services.AddressSelection{
			AddressID:  req.AddressID,
			NewAddress: req.NewAddress,
		}
	}

	booking, err := h.bookings.Modify(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(booking)})
}

func (h *BookingHandlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	bookingID, ok := requireBookingID(ctx, w, r)
	if !ok {
		return
	}

	booking, err := h.bookings.Cancel(ctx, customerScope(identity), bookingID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(booking)})
}

func (h *BookingHandlers) progressBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bookingID, ok := requireBookingID(ctx, w, r)
	if !ok {
		return
	}

	var req progressBookingRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	status, err := services.ValidateStatus(strings.TrimSpace(req.Status))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid booking status", http.StatusBadRequest))
		return
	}

	booking, err := h.bookings.Progress(ctx, bookingID, status)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(booking)})
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.CustomerID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func requireBookingID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	bookingID := strings.TrimSpace(chi.URLParam(r, "bookingID"))
	if bookingID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return "", false
	}
	return bookingID, true
}

// customerScope returns the ownership scope for booking lookups: admins see
// every booking, customers only their own.
func customerScope(identity *auth.Identity) string {
	if identity.HasRole(auth.RoleAdmin) {
		return ""
	}
	return identity.CustomerID
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxBookingBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		}
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func cartFromPayload(serviceLines, extraLines []cartLinePayload) services.Cart {
	cart := services.Cart{}
	for _, line := range serviceLines {
		cart.Services = append(cart.Services, services.CartLine{ID: strings.TrimSpace(line.ID), Quantity: line.Quantity})
	}
	for _, line := range extraLines {
		cart.Extras = append(cart.Extras, services.CartLine{ID: strings.TrimSpace(line.ID), Quantity: line.Quantity})
	}
	return cart
}

type bookingListResponse struct {
	Items         []bookingSummaryPayload `json:"items"`
	NextPageToken string                  `json:"next_page_token,omitempty"`
}

type bookingResponse struct {
	Booking bookingPayload  `json:"booking"`
	Payment *paymentPayload `json:"payment,omitempty"`
}

type bookingSummaryPayload struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	ServiceDate string       `json:"service_date"`
	ServiceTime string       `json:"service_time"`
	Total       moneyPayload `json:"total"`
	CreatedAt   string       `json:"created_at"`
}

type bookingPayload struct {
	ID          string        `json:"id"`
	CustomerID  string        `json:"customer_id"`
	Status      string        `json:"status"`
	ServiceDate string        `json:"service_date"`
	ServiceTime string        `json:"service_time"`
	AddressID   string        `json:"address_id"`
	Services    []linePayload `json:"services"`
	Extras      []linePayload `json:"extras,omitempty"`
	Total       moneyPayload  `json:"total"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at,omitempty"`
}

type linePayload struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice moneyPayload `json:"unit_price"`
	Total     moneyPayload `json:"total"`
}

type moneyPayload struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type paymentPayload struct {
	ID            string       `json:"id"`
	BookingID     string       `json:"booking_id"`
	Reference     string       `json:"reference"`
	Status        string       `json:"status"`
	Amount        moneyPayload `json:"amount"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     string       `json:"created_at"`
	SettledAt     string       `json:"settled_at,omitempty"`
}

func buildMoneyPayload(m domain.Money) moneyPayload {
	return moneyPayload{Amount: m.Major(), Currency: m.Currency}
}

func buildBookingSummary(booking domain.Booking) bookingSummaryPayload {
	return bookingSummaryPayload{
		ID:          booking.ID,
		Status:      string(booking.Status),
		ServiceDate: booking.ServiceDate,
		ServiceTime: booking.ServiceTime,
		Total:       buildMoneyPayload(booking.Total),
		CreatedAt:   formatTime(booking.CreatedAt),
	}
}

func buildBookingPayload(booking domain.Booking) bookingPayload {
	payload := bookingPayload{
		ID:          booking.ID,
		CustomerID:  booking.CustomerID,
		Status:      string(booking.Status),
		ServiceDate: booking.ServiceDate,
		ServiceTime: booking.ServiceTime,
		AddressID:   booking.AddressID,
		Services:    make([]linePayload, 0, len(booking.Services)),
		Total:       buildMoneyPayload(booking.Total),
		Notes:       booking.Notes,
		CreatedAt:   formatTime(booking.CreatedAt),
		UpdatedAt:   formatTime(booking.UpdatedAt),
	}
	for _, line := range booking.Services {
		payload.Services = append(payload.Services, linePayload{
			ID:        line.ServiceID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: buildMoneyPayload(line.UnitPrice),
			Total:     buildMoneyPayload(line.Total),
		})
	}
	for _, line := range booking.Extras {
		payload.Extras = append(payload.Extras, linePayload{
			ID:        line.ExtraID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: buildMoneyPayload(line.UnitPrice),
			Total:     buildMoneyPayload(line.Total),
		})
	}
	return payload
}

func buildPaymentPayloadPtr(payment domain.Payment) *paymentPayload {
	payload := paymentPayload{
		ID:            payment.ID,
		BookingID:     payment.BookingID,
		Reference:     payment.Reference,
		Status:        string(payment.Status),
		Amount:        buildMoneyPayload(payment.Amount),
		FailureReason: payment.FailureReason,
		CreatedAt:     formatTime(payment.CreatedAt),
		SettledAt:     formatTimePtr(payment.SettledAt),
	}
	return &payload
}
