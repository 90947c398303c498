package storage

import (
	"context"
	"sync"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// MemoryStore keeps records in process memory. Records are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	licenses map[string]license.License
	payments map[string]license.Payment
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]license.License),
		payments: make(map[string]license.Payment),
	}
}

var _ license.Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetLicense(_ context.Context, key string) (license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, ok := s.licenses[key]
	if !ok {
		return license.License{}, license.ErrNotFound
	}
	return cloneLicense(lic), nil
}

func (s *MemoryStore) CreateLicense(_ context.Context, lic license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.licenses[lic.Key]; exists {
		return license.ErrAlreadyExists
	}
	s.licenses[lic.Key] = cloneLicense(lic)
	return nil
}

func (s *MemoryStore) PutLicense(_ context.Context, lic license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[lic.Key] = cloneLicense(lic)
	return nil
}

func (s *MemoryStore) UpdateLicense(_ context.Context, key string, fn func(*license.License) error) (license.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[key]
	if !ok {
		return license.License{}, license.ErrNotFound
	}
	lic = cloneLicense(lic)
	if err := fn(&lic); err != nil {
		return license.License{}, err
	}
	lic.Key = key
	s.licenses[key] = cloneLicense(lic)
	return lic, nil
}

func (s *MemoryStore) ListLicenses(_ context.Context) ([]license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]license.License, 0, len(s.licenses))
	for _, l := range s.licenses {
		out = append(out, cloneLicense(l))
	}
	sortLicenses(out)
	return out, nil
}

func (s *MemoryStore) FindLicenses(_ context.Context, match func(license.License) bool) ([]license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []license.License
	for _, l := range s.licenses {
		if match(l) {
			out = append(out, cloneLicense(l))
		}
	}
	sortLicenses(out)
	return out, nil
}

func (s *MemoryStore) GetPayment(_ context.Context, transactionID string) (license.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[transactionID]
	if !ok {
		return license.Payment{}, license.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, p license.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.TransactionID]; exists {
		return license.ErrAlreadyExists
	}
	s.payments[p.TransactionID] = clonePayment(p)
	return nil
}

func (s *MemoryStore) UpdatePayment(_ context.Context, transactionID string, fn func(*license.Payment) error) (license.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[transactionID]
	if !ok {
		return license.Payment{}, license.ErrNotFound
	}
	p = clonePayment(p)
	if err := fn(&p); err != nil {
		return license.Payment{}, err
	}
	p.TransactionID = transactionID
	s.payments[transactionID] = clonePayment(p)
	return p, nil
}

func (s *MemoryStore) DeletePayment(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[transactionID]; !ok {
		return license.ErrNotFound
	}
	delete(s.payments, transactionID)
	return nil
}

func (s *MemoryStore) ListPayments(_ context.Context) ([]license.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]license.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, clonePayment(p))
	}
	sortPayments(out)
	return out, nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return unavailable("ping", errClosed)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
