package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/BryanChi/SuperGPT-Website/internal/auth"
	"github.com/BryanChi/SuperGPT-Website/internal/config"
	apierrors "github.com/BryanChi/SuperGPT-Website/internal/errors"
	"github.com/BryanChi/SuperGPT-Website/internal/infrastructure"
	"github.com/BryanChi/SuperGPT-Website/internal/license"
	customMiddleware "github.com/BryanChi/SuperGPT-Website/internal/middleware"
	"github.com/BryanChi/SuperGPT-Website/internal/notify"
	"github.com/BryanChi/SuperGPT-Website/internal/storage"
	handlers "github.com/BryanChi/SuperGPT-Website/internal/transport/http"
)

var (
	// Version is the release version, overridable with -ldflags.
	Version = config.AppVersion
	// BuildTime is set at link time.
	BuildTime = ""
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Services      *Services
	AdminLimiter  *auth.AttemptLimiter
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	releaseOnce sync.Once
}

// Services holds the license domain services built from configuration.
type Services struct {
	Store    license.Store
	Manager  *license.Manager
	Payments *license.PaymentService
}

// Close releases the store.
func (s *Services) Close() error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

// NewApplication wires the HTTP service from cfg. The caller owns logger.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", config.AppName),
		slog.String("version", Version),
		slog.String("storage", cfg.Storage.Backend))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	services, err := NewServices(ctx, cfg, logger, otelProviders.Meter)
	if err != nil {
		_ = otelProviders.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Services:      services,
		Logger:        logger,
		OTelProviders: otelProviders,
		AdminLimiter: auth.NewAttemptLimiter(
			cfg.Security.Lockout.MaxAttempts,
			cfg.Security.Lockout.BlockDuration,
			cfg.Security.Lockout.Window,
		),
	}

	if err := app.setupRouter(); err != nil {
		app.release(ctx)
		return nil, err
	}
	app.createServer()

	return app, nil
}

// NewServices opens the configured store and builds the lifecycle manager
// and payment service on top of it. meter may be nil.
func NewServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, meter metric.Meter) (*Services, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	opts := []license.Option{license.WithLogger(logger)}
	if meter != nil {
		metrics, err := license.NewMetrics(meter)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create license metrics: %w", err)
		}
		opts = append(opts, license.WithMetrics(metrics))
	}

	manager := license.NewManager(store, license.ManagerConfig{
		Product:        cfg.Product.Name,
		StrictChecksum: cfg.Product.StrictChecksum,
	}, opts...)

	if cfg.Product.SeedDemo {
		n, err := manager.Seed(ctx, license.DemoLicenses())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to seed demo licenses: %w", err)
		}
		logger.InfoContext(ctx, "Demo licenses seeded", slog.Int("created", n))
	}

	notifier, err := newNotifier(cfg.Notify, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	payments := license.NewPaymentService(manager, store, license.PaymentConfig{
		DefaultAmount:   cfg.Product.Price,
		DefaultCurrency: cfg.Product.Currency,
		LicenseTerm:     cfg.Product.PaidTerm,
	}, license.WithNotifier(notifier))

	return &Services{Store: store, Manager: manager, Payments: payments}, nil
}

// OpenStore opens the backend named in cfg, behind a read cache when a cache
// TTL is configured.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (license.Store, error) {
	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Backend,
		BoltPath:    cfg.BoltPath,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	if cfg.CacheTTL > 0 {
		return license.NewCachedStore(store, cfg.CacheTTL, cfg.CacheSize), nil
	}
	return store, nil
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (license.Notifier, error) {
	if cfg.TelegramToken == "" {
		return notify.NewLogNotifier(logger), nil
	}
	n, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram notifier: %w", err)
	}
	return n, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() error {
	cfg := a.Config
	logger := a.Logger
	errorHandler := apierrors.NewErrorHandler(logger, cfg.Logging.Development)
	validator := customMiddleware.NewValidator()

	verifier, err := auth.NewVerifier(cfg.Security.AdminKey, cfg.Security.AdminKeyHash)
	if err != nil {
		return fmt.Errorf("failed to initialize admin verifier: %w", err)
	}
	if !cfg.HasAdminCredential() {
		logger.Warn("No admin credential configured, admin endpoints will reject every request")
	}

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("failed to create OTel middleware: %w", err)
	}

	s := a.Services
	httpLogger := infrastructure.WithComponent(logger, "http")
	licenseHandler := handlers.NewLicenseHandler(s.Manager, validator, errorHandler, httpLogger)
	paymentHandler := handlers.NewPaymentHandler(s.Payments, validator, errorHandler, httpLogger)
	adminHandler := handlers.NewAdminHandler(s.Manager, s.Payments, validator, errorHandler, httpLogger, cfg.Product.AdminTerm)
	healthHandler := handlers.NewHealthHandler(s.Store, handlers.BuildInfo{
		Name:      config.ServiceName,
		Version:   Version,
		BuildTime: BuildTime,
	}, httpLogger)

	adminAuth := customMiddleware.NewAdminAuth(verifier, a.AdminLimiter, errorHandler, logger)

	r := chi.NewRouter()
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StripSlashes)
	r.Use(apierrors.RecoveryMiddleware(errorHandler))
	r.Use(otelMiddleware.Handler)
	r.Use(apierrors.NewErrorMiddleware(logger).Handler)
	r.Use(customMiddleware.SecurityHeaders)
	if cfg.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			ExposedHeaders: []string{customMiddleware.HeaderRequestID},
			Logger:         logger,
		}))
	}
	if cfg.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, logger).Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(cfg.Server.RequestTimeout))
		r.Use(customMiddleware.MaxBodySize(cfg.Server.MaxBodyBytes))
		r.Use(chimiddleware.NoCache)

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		r.Post("/verify-license", licenseHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.WebhookSecret(cfg.Security.WebhookSecret, errorHandler, logger))
			r.Post("/payment-webhook", paymentHandler.ProcessPayment)
			r.Post("/process-payment", paymentHandler.ProcessPayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminAuth.Handler)
			r.Use(customMiddleware.AuditLog(logger))

			r.Post("/generate-license", adminHandler.Generate)
			r.Post("/revoke-license", adminHandler.Revoke)
			r.Get("/license/{key}", licenseHandler.Get)
			r.Get("/payment/{transactionId}", paymentHandler.GetPayment)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/licenses", adminHandler.ListLicenses)
				r.Post("/licenses", adminHandler.ListLicenses)
				r.Get("/payments", adminHandler.ListPayments)
				r.Get("/reconcile", adminHandler.Reconcile)
			})
		})
	})

	a.Router = r
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Application) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening",
			slog.String("address", a.Server.Addr),
			slog.String("level", a.Config.Logging.Level))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	a.release(shutdownCtx)

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// release stops background work and closes the store and telemetry.
func (a *Application) release(ctx context.Context) {
	a.releaseOnce.Do(func() {
		if a.AdminLimiter != nil {
			a.AdminLimiter.Stop()
		}
		if err := a.Services.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing store", slog.String("error", err.Error()))
		}
		if a.OTelProviders != nil {
			if err := a.OTelProviders.Shutdown(ctx); err != nil {
				a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
			}
		}
	})
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err := a.Start(ctx)
	a.Logger.Info("Application stopped", slog.Duration("uptime", time.Since(start)))
	return err
}
