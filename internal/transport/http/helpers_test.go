package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	apierrors "github.com/BryanChi/SuperGPT-Website/internal/errors"
	"github.com/BryanChi/SuperGPT-Website/internal/license"
	"github.com/BryanChi/SuperGPT-Website/internal/middleware"
	"github.com/BryanChi/SuperGPT-Website/internal/storage"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// brokenStore fails every operation the way an unreachable backend does.
type brokenStore struct {
	license.Store
}

func (brokenStore) err() error {
	return errors.Join(license.ErrStorageUnavailable, errors.New("dial tcp: connection refused"))
}

func (b brokenStore) GetLicense(context.Context, string) (license.License, error) {
	return license.License{}, b.err()
}
func (b brokenStore) CreatePayment(context.Context, license.Payment) error { return b.err() }
func (b brokenStore) ListLicenses(context.Context) ([]license.License, error) {
	return nil, b.err()
}
func (b brokenStore) Ping(context.Context) error { return b.err() }

type testEnv struct {
	store    license.Store
	clock    *fixedClock
	manager  *license.Manager
	payments *license.PaymentService
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, storage.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store license.Store) *testEnv {
	t.Helper()
	logger := discardLogger()
	clock := &fixedClock{now: testNow}

	manager := license.NewManager(store, license.ManagerConfig{Product: "SuperGPT"},
		license.WithClock(clock.Now),
		license.WithLogger(logger))
	payments := license.NewPaymentService(manager, store, license.PaymentConfig{
		DefaultAmount:   "29.99",
		DefaultCurrency: "USD",
		LicenseTerm:     10 * 365 * 24 * time.Hour,
	})

	validator := middleware.NewValidator()
	errs := apierrors.NewErrorHandler(logger, false)

	lh := NewLicenseHandler(manager, validator, errs, logger)
	ph := NewPaymentHandler(payments, validator, errs, logger)
	ah := NewAdminHandler(manager, payments, validator, errs, logger, 10*365*24*time.Hour)
	hh := NewHealthHandler(store, BuildInfo{Name: "licensed", Version: "test"}, logger)

	r := chi.NewRouter()
	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.MethodNotAllowed)
	r.Post("/api/verify-license", lh.Verify)
	r.Get("/api/license/{key}", lh.Get)
	r.Post("/api/payment-webhook", ph.ProcessPayment)
	r.Post("/api/process-payment", ph.ProcessPayment)
	r.Get("/api/payment/{transactionId}", ph.GetPayment)
	r.Post("/api/generate-license", ah.Generate)
	r.Post("/api/revoke-license", ah.Revoke)
	r.Get("/api/admin/licenses", ah.ListLicenses)
	r.Get("/api/admin/payments", ah.ListPayments)
	r.Get("/api/admin/reconcile", ah.Reconcile)
	r.Get("/api/health", hh.HealthCheck)
	r.Get("/api/health/ready", hh.ReadinessCheck)
	r.Get("/api/health/live", hh.LivenessCheck)
	r.Get("/api/version", hh.Version)

	return &testEnv{store: store, clock: clock, manager: manager, payments: payments, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (e *testEnv) issue(t *testing.T, email string) license.License {
	t.Helper()
	lic, err := e.manager.Issue(context.Background(), license.IssueRequest{Email: email})
	require.NoError(t, err)
	return lic
}

// errorBody mirrors the business error response.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
