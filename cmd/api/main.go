package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/sparklehome/api/internal/handlers"
	"github.com/sparklehome/api/internal/platform/auth"
	"github.com/sparklehome/api/internal/platform/config"
	pfirestore "github.com/sparklehome/api/internal/platform/firestore"
	"github.com/sparklehome/api/internal/platform/idempotency"
	"github.com/sparklehome/api/internal/platform/jobs"
	"github.com/sparklehome/api/internal/platform/observability"
	"github.com/sparklehome/api/internal/platform/secrets"
	firestoreRepo "github.com/sparklehome/api/internal/repositories/firestore"
	"github.com/sparklehome/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(os.Getenv("FIRESTORE_PROJECT_ID")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	notificationTopic := pubsubClient.Topic(cfg.PubSub.NotificationTopic)
	notifier, err := jobs.NewPubSubNotificationPublisher(notificationTopic)
	if err != nil {
		logger.Fatal("failed to initialise notification publisher", zap.Error(err))
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}
	signatureValidator, err := auth.NewSignatureValidator(cfg.Gateway.SigningSecret,
		auth.WithSignatureHeader(cfg.Gateway.SignatureHeader),
	)
	if err != nil {
		logger.Fatal("failed to initialise signature validator", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	lifecycle := services.NewLifecycle(services.LifecycleDeps{
		CancellationCutoff: cfg.Booking.CancellationCutoff,
	})
	pricingEngine, err := services.NewPricingEngine(services.PricingEngineDeps{
		Catalog:  registry.Catalog(),
		Currency: cfg.Booking.Currency,
		Logger:   serviceLogger(logger.Named("pricing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}
	validator, err := services.NewReferenceValidator(services.ReferenceValidatorDeps{
		Addresses: registry.Addresses(),
	})
	if err != nil {
		logger.Fatal("failed to initialise reference validator", zap.Error(err))
	}
	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments:        registry.Payments(),
		ReferencePrefix: cfg.Booking.ReferencePrefix,
		Clock:           time.Now,
		Logger:          serviceLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}
	bookingService, err := services.NewBookingService(services.BookingServiceDeps{
		Registry:  registry,
		Pricing:   pricingEngine,
		Validator: validator,
		Lifecycle: lifecycle,
		Payments:  paymentService,
		Notifier:  notifier,
		Clock:     time.Now,
		Logger:    serviceLogger(logger.Named("bookings")),
	})
	if err != nil {
		logger.Fatal("failed to initialise booking service", zap.Error(err))
	}
	reconciler, err := services.NewReconciler(services.ReconcilerDeps{
		Registry:  registry,
		Lifecycle: lifecycle,
		Payments:  paymentService,
		Notifier:  notifier,
		Clock:     time.Now,
		Logger:    serviceLogger(logger.Named("reconciler")),
	})
	if err != nil {
		logger.Fatal("failed to initialise reconciler", zap.Error(err))
	}

	bookingHandlers := handlers.NewBookingHandlers(authenticator, bookingService, paymentService,
		handlers.WithCreateRateLimit(10, time.Minute),
	)
	catalogHandlers := handlers.NewCatalogHandlers(registry.Catalog())
	addressHandlers := handlers.NewAddressHandlers(authenticator, registry.Addresses())
	webhookHandlers := handlers.NewWebhookHandlers(reconciler)
	healthHandlers := handlers.NewHealthHandlers(map[string]handlers.ReadinessCheck{
		"firestore": func(ctx context.Context) error {
			probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
			defer cancel()
			_, err := firestoreClient.Collections(probeCtx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
		"pubsub": func(ctx context.Context) error {
			probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
			defer cancel()
			_, err := notificationTopic.Exists(probeCtx)
			return err
		},
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithMeRoutes(addressHandlers.Routes),
		handlers.WithBookingRoutes(bookingHandlers.Routes),
		handlers.WithBookingMiddlewares(idempotencyMiddleware),
		handlers.WithStaffRoutes(bookingHandlers.StaffRoutes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(signatureValidator.RequireSignature()),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("sparklehome api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// serviceLogger adapts a zap logger to the callback shape the services accept.
func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
