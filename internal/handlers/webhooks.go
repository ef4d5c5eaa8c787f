package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sparklehome/api/internal/platform/httpx"
	"github.com/sparklehome/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// GatewayReconciler applies a parsed gateway event against the booking and
// payment records.
type GatewayReconciler interface {
	Process(ctx context.Context, event services.GatewayEvent) (services.Outcome, error)
}

// WebhookHandlers receives payment gateway deliveries. Signature verification
// runs in middleware before the body reaches these handlers.
type WebhookHandlers struct {
	reconciler GatewayReconciler
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(reconciler GatewayReconciler) *WebhookHandlers {
	return &WebhookHandlers{reconciler: reconciler}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handlePaymentEvent)
}

func (h *WebhookHandlers) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciler_unavailable", "reconciler unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		}
		return
	}

	event, err := services.ParseGatewayEvent(body)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	outcome, err := h.reconciler.Process(ctx, event)
	if err != nil {
		writeWebhookError(ctx, w, err)
		return
	}

	// 2xx acknowledges the delivery; replays and unknown event types are
	// acknowledged too so the gateway stops retrying them.
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{Status: string(outcome)})
}

// writeWebhookError maps reconciliation failures onto statuses that steer the
// gateway's retry behaviour: 4xx drops the delivery, 5xx retries it.
func writeWebhookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentNotFound), errors.Is(err, services.ErrBookingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_reference", "no payment matches the event", http.StatusNotFound))
	case errors.Is(err, services.ErrTransactionCorruption):
		httpx.WriteError(ctx, w, httpx.NewError("transaction_corruption", "gateway transaction recorded on a different payment", http.StatusInternalServerError))
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("retry_later", "temporary failure, retry the delivery", http.StatusServiceUnavailable))
	default:
		writeServiceError(ctx, w, err)
	}
}

type webhookResponse struct {
	Status string `json:"status"`
}
