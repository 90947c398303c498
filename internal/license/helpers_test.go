package license_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
	"github.com/BryanChi/SuperGPT-Website/internal/storage"
)

var errBackend = errors.New("connection reset")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedKeys hands out a fixed sequence of keys.
type scriptedKeys struct {
	mu   sync.Mutex
	keys []string
}

func (s *scriptedKeys) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return "", errors.New("no more keys")
	}
	k := s.keys[0]
	s.keys = s.keys[1:]
	return k, nil
}

// faultyStore injects failures into selected operations of a working store.
type faultyStore struct {
	license.Store
	mu            sync.Mutex
	createLicense error
	// lostReply applies CreateLicense and then reports this error.
	lostReply     error
	findLicenses  error
	getLicense    error
	updatePayment error
	deletePayment error
	createPayment error
}

func (f *faultyStore) set(fn func(*faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyStore) fault(get func(*faultyStore) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return get(f)
}

func (f *faultyStore) CreateLicense(ctx context.Context, lic license.License) error {
	if err := f.fault(func(f *faultyStore) error { return f.createLicense }); err != nil {
		return err
	}
	if err := f.Store.CreateLicense(ctx, lic); err != nil {
		return err
	}
	return f.fault(func(f *faultyStore) error { return f.lostReply })
}

func (f *faultyStore) FindLicenses(ctx context.Context, pred func(license.License) bool) ([]license.License, error) {
	if err := f.fault(func(f *faultyStore) error { return f.findLicenses }); err != nil {
		return nil, err
	}
	return f.Store.FindLicenses(ctx, pred)
}

func (f *faultyStore) GetLicense(ctx context.Context, key string) (license.License, error) {
	if err := f.fault(func(f *faultyStore) error { return f.getLicense }); err != nil {
		return license.License{}, err
	}
	return f.Store.GetLicense(ctx, key)
}

func (f *faultyStore) CreatePayment(ctx context.Context, p license.Payment) error {
	if err := f.fault(func(f *faultyStore) error { return f.createPayment }); err != nil {
		return err
	}
	return f.Store.CreatePayment(ctx, p)
}

func (f *faultyStore) UpdatePayment(ctx context.Context, id string, fn func(*license.Payment) error) (license.Payment, error) {
	if err := f.fault(func(f *faultyStore) error { return f.updatePayment }); err != nil {
		return license.Payment{}, err
	}
	return f.Store.UpdatePayment(ctx, id, fn)
}

func (f *faultyStore) DeletePayment(ctx context.Context, id string) error {
	if err := f.fault(func(f *faultyStore) error { return f.deletePayment }); err != nil {
		return err
	}
	return f.Store.DeletePayment(ctx, id)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) LicenseIssued(ctx context.Context, lic license.License, p license.Payment) error {
	args := m.Called(ctx, lic, p)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fixture struct {
	store   *faultyStore
	clock   *clock
	manager *license.Manager
}

func newFixture(cfg license.ManagerConfig, opts ...license.Option) *fixture {
	f := &fixture{
		store: &faultyStore{Store: storage.NewMemoryStore()},
		clock: newClock(),
	}
	opts = append([]license.Option{
		license.WithClock(f.clock.Now),
		license.WithLogger(discardLogger()),
	}, opts...)
	f.manager = license.NewManager(f.store, cfg, opts...)
	return f
}

func (f *fixture) payments(cfg license.PaymentConfig, opts ...license.PaymentOption) *license.PaymentService {
	return license.NewPaymentService(f.manager, f.store, cfg, opts...)
}
