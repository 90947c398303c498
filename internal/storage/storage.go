// Package storage provides license.Store backends: an in-process map, an
// embedded bbolt file and Redis.
package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBolt   = "bbolt"
	BackendRedis  = "redis"
)

var errClosed = errors.New("store closed")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, license.ErrStorageUnavailable, err)
}

func sortLicenses(ls []license.License) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.Before(ls[j].CreatedAt)
		}
		return ls[i].Key < ls[j].Key
	})
}

func sortPayments(ps []license.Payment) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].ReservedAt.Equal(ps[j].ReservedAt) {
			return ps[i].ReservedAt.Before(ps[j].ReservedAt)
		}
		return ps[i].TransactionID < ps[j].TransactionID
	})
}

func cloneLicense(l license.License) license.License {
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		l.ExpiresAt = &t
	}
	if l.RevokedAt != nil {
		t := *l.RevokedAt
		l.RevokedAt = &t
	}
	return l
}

func clonePayment(p license.Payment) license.Payment {
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		p.ProcessedAt = &t
	}
	return p
}

// passthrough marks an error returned by a caller-supplied update function so
// that it reaches the caller unwrapped.
type passthrough struct{ err error }

func (p passthrough) Error() string { return p.err.Error() }
func (p passthrough) Unwrap() error { return p.err }

// domainError returns the error to hand back to the caller when err is not a
// backend fault.
func domainError(err error) (error, bool) {
	var p passthrough
	if errors.As(err, &p) {
		return p.err, true
	}
	if errors.Is(err, license.ErrNotFound) || errors.Is(err, license.ErrAlreadyExists) {
		return err, true
	}
	return nil, false
}
