package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// storeSuite holds the behaviour every backend must share.
type storeSuite struct {
	suite.Suite
	newStore func() license.Store
	store    license.Store
	ctx      context.Context
}

func (s *storeSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *storeSuite) TearDownTest() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
}

func sampleLicense(key string, created time.Time) license.License {
	exp := created.Add(24 * time.Hour)
	return license.License{
		Key:           key,
		Email:         "user@example.com",
		Status:        license.StatusActive,
		Product:       "SuperGPT",
		Source:        license.SourcePayment,
		CreatedAt:     created,
		ExpiresAt:     &exp,
		TransactionID: "TX-" + key,
		Amount:        "29.99",
		Currency:      "USD",
	}
}

func (s *storeSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}

func (s *storeSuite) TestLicenseCreateGet() {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	lic := sampleLicense("SGPT-AAA-BBB-CCCC", created)

	s.Require().NoError(s.store.CreateLicense(s.ctx, lic))

	got, err := s.store.GetLicense(s.ctx, lic.Key)
	s.Require().NoError(err)
	s.Equal(lic.Key, got.Key)
	s.Equal(lic.Email, got.Email)
	s.Equal(license.StatusActive, got.Status)
	s.True(lic.CreatedAt.Equal(got.CreatedAt))
	s.Require().NotNil(got.ExpiresAt)
	s.True(lic.ExpiresAt.Equal(*got.ExpiresAt))
	s.Nil(got.RevokedAt)
}

func (s *storeSuite) TestLicenseGetMissing() {
	_, err := s.store.GetLicense(s.ctx, "SGPT-NOPE-NOPE-NOPE")
	s.ErrorIs(err, license.ErrNotFound)
}

func (s *storeSuite) TestLicenseCreateConflict() {
	lic := sampleLicense("SGPT-AAA-BBB-CCCC", time.Now().UTC())
	s.Require().NoError(s.store.CreateLicense(s.ctx, lic))

	other := lic
	other.Email = "someone-else@example.com"
	s.ErrorIs(s.store.CreateLicense(s.ctx, other), license.ErrAlreadyExists)

	got, err := s.store.GetLicense(s.ctx, lic.Key)
	s.Require().NoError(err)
	s.Equal("user@example.com", got.Email)
}

func (s *storeSuite) TestLicensePutUpserts() {
	lic := sampleLicense("SGPT-AAA-BBB-CCCC", time.Now().UTC())
	s.Require().NoError(s.store.PutLicense(s.ctx, lic))
	lic.Amount = "10"
	s.Require().NoError(s.store.PutLicense(s.ctx, lic))

	got, err := s.store.GetLicense(s.ctx, lic.Key)
	s.Require().NoError(err)
	s.Equal("10", got.Amount)
}

func (s *storeSuite) TestLicenseUpdate() {
	lic := sampleLicense("SGPT-AAA-BBB-CCCC", time.Now().UTC())
	s.Require().NoError(s.store.CreateLicense(s.ctx, lic))

	revokedAt := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	updated, err := s.store.UpdateLicense(s.ctx, lic.Key, func(l *license.License) error {
		l.Status = license.StatusRevoked
		l.RevokedAt = &revokedAt
		return nil
	})
	s.Require().NoError(err)
	s.Equal(license.StatusRevoked, updated.Status)

	got, err := s.store.GetLicense(s.ctx, lic.Key)
	s.Require().NoError(err)
	s.Equal(license.StatusRevoked, got.Status)
	s.Require().NotNil(got.RevokedAt)
	s.True(revokedAt.Equal(*got.RevokedAt))
}

func (s *storeSuite) TestLicenseUpdateAbort() {
	lic := sampleLicense("SGPT-AAA-BBB-CCCC", time.Now().UTC())
	s.Require().NoError(s.store.CreateLicense(s.ctx, lic))

	_, err := s.store.UpdateLicense(s.ctx, lic.Key, func(l *license.License) error {
		l.Email = "changed@example.com"
		return license.ErrAlreadyRevoked
	})
	s.ErrorIs(err, license.ErrAlreadyRevoked)
	s.False(errors.Is(err, license.ErrStorageUnavailable))

	got, err := s.store.GetLicense(s.ctx, lic.Key)
	s.Require().NoError(err)
	s.Equal("user@example.com", got.Email)
}

func (s *storeSuite) TestLicenseUpdateMissing() {
	_, err := s.store.UpdateLicense(s.ctx, "SGPT-NOPE-NOPE-NOPE", func(*license.License) error { return nil })
	s.ErrorIs(err, license.ErrNotFound)
}

func (s *storeSuite) TestListOrdering() {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.CreateLicense(s.ctx, sampleLicense("SGPT-C-C-CCCC", base.Add(time.Hour))))
	s.Require().NoError(s.store.CreateLicense(s.ctx, sampleLicense("SGPT-B-B-BBBB", base)))
	s.Require().NoError(s.store.CreateLicense(s.ctx, sampleLicense("SGPT-A-A-AAAA", base)))

	list, err := s.store.ListLicenses(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal("SGPT-A-A-AAAA", list[0].Key)
	s.Equal("SGPT-B-B-BBBB", list[1].Key)
	s.Equal("SGPT-C-C-CCCC", list[2].Key)

	found, err := s.store.FindLicenses(s.ctx, func(l license.License) bool {
		return l.TransactionID == "TX-SGPT-B-B-BBBB"
	})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("SGPT-B-B-BBBB", found[0].Key)
}

func (s *storeSuite) TestPaymentLifecycle() {
	reserved := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := license.Payment{
		TransactionID: "TXN-1",
		CustomerEmail: "a@b.co",
		Amount:        "29.99",
		Currency:      "USD",
		Status:        license.PaymentPending,
		ReservedAt:    reserved,
	}
	s.Require().NoError(s.store.CreatePayment(s.ctx, p))
	s.ErrorIs(s.store.CreatePayment(s.ctx, p), license.ErrAlreadyExists)

	processed := reserved.Add(time.Second)
	done, err := s.store.UpdatePayment(s.ctx, "TXN-1", func(p *license.Payment) error {
		p.Status = license.PaymentCompleted
		p.LicenseKey = "SGPT-AAA-BBB-CCCC"
		p.ProcessedAt = &processed
		return nil
	})
	s.Require().NoError(err)
	s.Equal(license.PaymentCompleted, done.Status)

	got, err := s.store.GetPayment(s.ctx, "TXN-1")
	s.Require().NoError(err)
	s.Equal("SGPT-AAA-BBB-CCCC", got.LicenseKey)
	s.Equal(license.PaymentCompleted, got.Status)

	s.Require().NoError(s.store.DeletePayment(s.ctx, "TXN-1"))
	_, err = s.store.GetPayment(s.ctx, "TXN-1")
	s.ErrorIs(err, license.ErrNotFound)
	s.ErrorIs(s.store.DeletePayment(s.ctx, "TXN-1"), license.ErrNotFound)
}

func (s *storeSuite) TestListPayments() {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 3; i > 0; i-- {
		s.Require().NoError(s.store.CreatePayment(s.ctx, license.Payment{
			TransactionID: fmt.Sprintf("TXN-%d", i),
			CustomerEmail: "a@b.co",
			Status:        license.PaymentPending,
			ReservedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := s.store.ListPayments(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal("TXN-1", list[0].TransactionID)
	s.Equal("TXN-3", list[2].TransactionID)
}

func (s *storeSuite) TestConcurrentCreatePayment() {
	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreatePayment(s.ctx, license.Payment{
				TransactionID: "TXN-RACE",
				CustomerEmail: "a@b.co",
				Status:        license.PaymentPending,
				ReservedAt:    time.Now().UTC(),
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}
