// Package app wires the license service together: configuration, logging,
// telemetry, the license store, the lifecycle manager and payment service,
// the HTTP middleware chain and routes, and the server lifecycle.
//
// # Initialization Flow
//
//	1. The caller loads configuration and creates the logger
//	2. OpenTelemetry providers (tracer, meter, Prometheus handler)
//	3. The store selected by storage.backend, optionally behind a read cache
//	4. License manager, demo seeding when product.seed_demo is set
//	5. Notifier (Telegram when a bot token is configured, log otherwise)
//	6. Payment service, admin verifier and attempt limiter
//	7. Router and HTTP server
//
// # Usage
//
//	cfg, err := config.Load()
//	...
//	application, err := app.NewApplication(ctx, cfg, logger)
//	...
//	if err := application.Run(); err != nil {
//	    ...
//	}
//
// Run blocks until SIGINT or SIGTERM, then drains in-flight requests within
// server.shutdown_timeout and closes the store and telemetry providers.
//
// NewServices builds only the domain services and is shared with the
// licensectl admin tool.
package app
