package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxKeyAttempts bounds key regeneration after a collision.
const DefaultMaxKeyAttempts = 5

// DefaultProduct is the product name stamped on issued licenses.
const DefaultProduct = "SuperGPT"

// KeySource produces candidate license keys.
type KeySource interface {
	Generate() (string, error)
}

// ManagerConfig tunes the lifecycle manager.
type ManagerConfig struct {
	Product string
	// StrictChecksum makes Verify reject keys whose checksum segment does not
	// match. Seeded demo keys do not carry a valid checksum.
	StrictChecksum bool
	MaxKeyAttempts int
}

// IssueRequest describes a license to create.
type IssueRequest struct {
	Email         string
	TransactionID string
	Amount        string
	Currency      string
	ExpiresAt     *time.Time
	Source        Source
}

// Manager owns the license state machine: issue, verify, revoke.
type Manager struct {
	store   LicenseStore
	keys    KeySource
	now     func() time.Time
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithKeySource replaces the key generator.
func WithKeySource(ks KeySource) Option {
	return func(m *Manager) { m.keys = ks }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a lifecycle manager over store.
func NewManager(store LicenseStore, cfg ManagerConfig, opts ...Option) *Manager {
	if cfg.Product == "" {
		cfg.Product = DefaultProduct
	}
	if cfg.MaxKeyAttempts <= 0 {
		cfg.MaxKeyAttempts = DefaultMaxKeyAttempts
	}

	m := &Manager{
		store:  store,
		keys:   NewKeyGenerator(),
		now:    time.Now,
		cfg:    cfg,
		logger: slog.Default(),
		tracer: otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", componentName)
	return m
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Issue creates a new active license bound to req.Email.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (License, error) {
	ctx, span := m.tracer.Start(ctx, "license.issue", trace.WithAttributes(
		attribute.String("license.source", string(req.Source)),
		attribute.Bool("license.has_transaction", req.TransactionID != ""),
	))
	defer span.End()

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return License{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if req.Source == "" {
		req.Source = SourceAdmin
	}

	now := m.now().UTC()
	for attempt := 1; attempt <= m.cfg.MaxKeyAttempts; attempt++ {
		key, err := m.keys.Generate()
		if err != nil {
			m.fail(span, err)
			return License{}, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}

		lic := License{
			Key:           key,
			Email:         email,
			Status:        StatusActive,
			Product:       m.cfg.Product,
			Source:        req.Source,
			CreatedAt:     now,
			ExpiresAt:     req.ExpiresAt,
			TransactionID: req.TransactionID,
			Amount:        req.Amount,
			Currency:      req.Currency,
		}

		err = m.store.CreateLicense(ctx, lic)
		if err == nil {
			m.metrics.issued(ctx, lic.Source)
			logLicenseAction(ctx, m.logger, slog.LevelInfo, "issue", "success", lic.Key, lic.Email,
				slog.String("source", string(lic.Source)),
				slog.String("transaction_id", lic.TransactionID),
				slog.Int("attempt", attempt))
			return lic, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			m.metrics.storageError(ctx, "create_license")
			m.fail(span, err)
			logLicenseAction(ctx, m.logger, slog.LevelError, "issue", "storage_failure", key, email,
				slog.String("error", err.Error()))
			return License{}, fmt.Errorf("create license: %w", err)
		}

		logLicenseAction(ctx, m.logger, slog.LevelWarn, "issue", "key_collision", key, email,
			slog.Int("attempt", attempt))
	}

	m.fail(span, ErrKeyGeneration)
	return License{}, fmt.Errorf("%w after %d attempts", ErrKeyGeneration, m.cfg.MaxKeyAttempts)
}

// Verify checks a key and optional email. Business negatives are reported
// through the result; an error is returned only when the store fails.
func (m *Manager) Verify(ctx context.Context, key, email string) (VerificationResult, error) {
	ctx, span := m.tracer.Start(ctx, "license.verify")
	defer span.End()

	key = NormalizeKey(key)
	email = strings.TrimSpace(email)

	reject := func(reason Reason) (VerificationResult, error) {
		m.metrics.verified(ctx, string(reason))
		span.SetAttributes(attribute.String("license.result", string(reason)))
		logLicenseAction(ctx, m.logger, slog.LevelInfo, "verify", string(reason), key, email)
		return VerificationResult{Valid: false, Reason: reason}, nil
	}

	if !ValidateFormat(key) {
		return reject(ReasonInvalidFormat)
	}
	if m.cfg.StrictChecksum && !ValidateChecksum(key) {
		return reject(ReasonChecksumMismatch)
	}

	lic, err := m.store.GetLicense(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return reject(ReasonNotFound)
	}
	if err != nil {
		m.metrics.storageError(ctx, "get_license")
		m.fail(span, err)
		logLicenseAction(ctx, m.logger, slog.LevelError, "verify", "storage_failure", key, email,
			slog.String("error", err.Error()))
		return VerificationResult{}, fmt.Errorf("get license: %w", err)
	}

	switch lic.EffectiveStatus(m.now()) {
	case StatusRevoked:
		return reject(ReasonRevoked)
	case StatusExpired:
		return reject(ReasonExpired)
	}
	if email != "" && email != lic.Email {
		return reject(ReasonEmailMismatch)
	}

	m.metrics.verified(ctx, "valid")
	span.SetAttributes(attribute.String("license.result", "valid"))
	logLicenseAction(ctx, m.logger, slog.LevelInfo, "verify", "valid", key, email)

	view := lic.Projection()
	return VerificationResult{Valid: true, License: &view}, nil
}

// Revoke moves an active license to revoked. Revoking twice returns
// ErrAlreadyRevoked and leaves the record untouched.
func (m *Manager) Revoke(ctx context.Context, key string) (License, error) {
	ctx, span := m.tracer.Start(ctx, "license.revoke")
	defer span.End()

	key = NormalizeKey(key)
	if key == "" {
		return License{}, fmt.Errorf("%w: license key is required", ErrInvalidInput)
	}

	now := m.now().UTC()
	lic, err := m.store.UpdateLicense(ctx, key, func(l *License) error {
		if l.Status == StatusRevoked {
			return ErrAlreadyRevoked
		}
		l.Status = StatusRevoked
		l.RevokedAt = &now
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyRevoked):
		logLicenseAction(ctx, m.logger, slog.LevelWarn, "revoke", string(ReasonFor(err)), key, "")
		return License{}, err
	default:
		m.metrics.storageError(ctx, "update_license")
		m.fail(span, err)
		logLicenseAction(ctx, m.logger, slog.LevelError, "revoke", "storage_failure", key, "",
			slog.String("error", err.Error()))
		return License{}, fmt.Errorf("revoke license: %w", err)
	}

	m.metrics.revoked(ctx)
	logLicenseAction(ctx, m.logger, slog.LevelInfo, "revoke", "success", lic.Key, lic.Email)
	return lic, nil
}

// Get returns the stored license for key.
func (m *Manager) Get(ctx context.Context, key string) (License, error) {
	key = NormalizeKey(key)
	if key == "" {
		return License{}, fmt.Errorf("%w: license key is required", ErrInvalidInput)
	}
	lic, err := m.store.GetLicense(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		m.metrics.storageError(ctx, "get_license")
	}
	return lic, err
}

func (m *Manager) List(ctx context.Context) ([]License, error) {
	licenses, err := m.store.ListLicenses(ctx)
	if err != nil {
		m.metrics.storageError(ctx, "list_licenses")
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	return licenses, nil
}

// Summary counts licenses by effective status.
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	licenses, err := m.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(licenses, m.now()), nil
}

// Summarize classifies licenses at now. Revoked wins over expired.
func Summarize(licenses []License, now time.Time) Summary {
	s := Summary{Total: len(licenses)}
	for _, l := range licenses {
		switch l.EffectiveStatus(now) {
		case StatusRevoked:
			s.Revoked++
		case StatusExpired:
			s.Expired++
		default:
			s.Active++
		}
	}
	return s
}

// FindByTransaction returns licenses bound to a payment transaction.
func (m *Manager) FindByTransaction(ctx context.Context, transactionID string) ([]License, error) {
	return m.store.FindLicenses(ctx, func(l License) bool {
		return l.TransactionID == transactionID
	})
}

// Seed installs licenses that are not already present and returns how many
// were created.
func (m *Manager) Seed(ctx context.Context, licenses []License) (int, error) {
	created := 0
	for _, lic := range licenses {
		lic.Key = NormalizeKey(lic.Key)
		if lic.Status == "" {
			lic.Status = StatusActive
		}
		if lic.Product == "" {
			lic.Product = m.cfg.Product
		}
		if lic.Source == "" {
			lic.Source = SourceSeed
		}
		if lic.CreatedAt.IsZero() {
			lic.CreatedAt = m.now().UTC()
		}

		err := m.store.CreateLicense(ctx, lic)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed license %s: %w", MaskKey(lic.Key), err)
		}
		created++
		logLicenseAction(ctx, m.logger, slog.LevelInfo, "seed", "success", lic.Key, lic.Email)
	}
	return created, nil
}

// DemoLicenses returns the non-expiring demo and test licenses used by
// development deployments.
func DemoLicenses() []License {
	return []License{
		{Key: "SGPT-DEMO-2024-DEMO", Email: "demo@example.com", Source: SourceSeed},
		{Key: "SGPT-TEST-2024-TEST", Email: "test@example.com", Source: SourceSeed},
	}
}

func (m *Manager) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
