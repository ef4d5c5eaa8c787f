package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sparklehome/api/internal/platform/httpx"
)

// RouteRegistrar attaches a handler group to a sub-router.
type RouteRegistrar func(chi.Router)

type routerConfig struct {
	basePath           string
	requestTimeout     time.Duration
	middlewares        []func(http.Handler) http.Handler
	bookingMiddlewares []func(http.Handler) http.Handler
	webhookMiddlewares []func(http.Handler) http.Handler
	health             *HealthHandlers
	catalogRoutes      RouteRegistrar
	meRoutes           RouteRegistrar
	bookingRoutes      RouteRegistrar
	staffRoutes        RouteRegistrar
	webhookRoutes      RouteRegistrar
}

// RouterOption customises the assembled router.
type RouterOption func(*routerConfig)

// WithMiddlewares prepends middlewares to every route.
func WithMiddlewares(mws ...func(http.Handler) http.Handler) RouterOption {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mws...)
	}
}

// WithBookingMiddlewares wraps only the customer booking routes. The
// idempotency middleware mounts here so replayed POSTs short-circuit.
func WithBookingMiddlewares(mws ...func(http.Handler) http.Handler) RouterOption {
	return func(cfg *routerConfig) {
		cfg.bookingMiddlewares = append(cfg.bookingMiddlewares, mws...)
	}
}

// WithWebhookMiddlewares wraps only the webhook routes, typically with
// gateway signature verification.
func WithWebhookMiddlewares(mws ...func(http.Handler) http.Handler) RouterOption {
	return func(cfg *routerConfig) {
		cfg.webhookMiddlewares = append(cfg.webhookMiddlewares, mws...)
	}
}

// WithHealthHandlers registers the liveness and readiness endpoints.
func WithHealthHandlers(h *HealthHandlers) RouterOption {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithCatalogRoutes registers the public catalog group.
func WithCatalogRoutes(reg RouteRegistrar) RouterOption {
	return func(cfg *routerConfig) { cfg.catalogRoutes = reg }
}

// WithMeRoutes registers the authenticated customer profile group.
func WithMeRoutes(reg RouteRegistrar) RouterOption {
	return func(cfg *routerConfig) { cfg.meRoutes = reg }
}

// WithBookingRoutes registers the customer booking group.
func WithBookingRoutes(reg RouteRegistrar) RouterOption {
	return func(cfg *routerConfig) { cfg.bookingRoutes = reg }
}

// WithStaffRoutes registers the staff booking operations group.
func WithStaffRoutes(reg RouteRegistrar) RouterOption {
	return func(cfg *routerConfig) { cfg.staffRoutes = reg }
}

// WithWebhookRoutes registers the payment gateway webhook group.
func WithWebhookRoutes(reg RouteRegistrar) RouterOption {
	return func(cfg *routerConfig) { cfg.webhookRoutes = reg }
}

// WithRequestTimeout overrides the per-request timeout.
func WithRequestTimeout(timeout time.Duration) RouterOption {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.requestTimeout = timeout
		}
	}
}

// NewRouter assembles the HTTP routing tree.
func NewRouter(opts ...RouterOption) chi.Router {
	cfg := &routerConfig{
		basePath:       "/api/v1",
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cfg.middlewares...)
	r.Use(middleware.Timeout(cfg.requestTimeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", "method not allowed", http.StatusMethodNotAllowed))
	})

	if cfg.health != nil {
		r.Get("/healthz", cfg.health.Healthz)
		r.Get("/readyz", cfg.health.Readyz)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		mount(api, "/catalog", nil, cfg.catalogRoutes)
		mount(api, "/me", nil, cfg.meRoutes)
		mount(api, "/bookings", cfg.bookingMiddlewares, cfg.bookingRoutes)
		mount(api, "/staff/bookings", nil, cfg.staffRoutes)
		mount(api, "/webhooks", cfg.webhookMiddlewares, cfg.webhookRoutes)
	})

	return r
}

func mount(parent chi.Router, pattern string, mws []func(http.Handler) http.Handler, reg RouteRegistrar) {
	if reg == nil {
		return
	}
	parent.Route(pattern, func(sub chi.Router) {
		sub.Use(mws...)
		reg(sub)
	})
}
