package license_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

func TestReconcileConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license.ManagerConfig{})
	svc := f.payments(paidTerm)

	_, err := svc.ProcessPayment(ctx, license.PaymentEvent{TransactionID: "TXN-1", CustomerEmail: "a@b.co"})
	require.NoError(t, err)
	_, err = f.manager.Issue(ctx, license.IssueRequest{Email: "admin@b.co", Source: license.SourceAdmin})
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.CheckedLicenses)
	assert.Equal(t, 1, report.CheckedPayments)
}

func TestReconcileFindsOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license.ManagerConfig{})
	svc := f.payments(paidTerm)
	now := f.clock.Now()

	require.NoError(t, f.store.PutLicense(ctx, license.License{
		Key: "SGPT-A-A-AAAA", Email: "a@b.co", Status: license.StatusActive,
		CreatedAt: now, TransactionID: "TXN-LOST",
	}))
	require.NoError(t, f.store.PutLicense(ctx, license.License{
		Key: "SGPT-B-B-BBBB", Email: "b@b.co", Status: license.StatusActive,
		CreatedAt: now.Add(time.Second), TransactionID: "TXN-2",
	}))
	require.NoError(t, f.store.CreatePayment(ctx, license.Payment{
		TransactionID: "TXN-2", CustomerEmail: "b@b.co", Status: license.PaymentCompleted,
		ReservedAt: now, LicenseKey: "SGPT-C-C-CCCC",
	}))
	require.NoError(t, f.store.CreatePayment(ctx, license.Payment{
		TransactionID: "TXN-STUCK", CustomerEmail: "c@b.co", Status: license.PaymentPending,
		ReservedAt: now,
	}))

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.ElementsMatch(t, []license.OrphanLicense{
		{Key: "SGPT-A-A-AAAA", TransactionID: "TXN-LOST", Problem: license.ProblemMissingPayment},
		{Key: "SGPT-B-B-BBBB", TransactionID: "TXN-2", Problem: license.ProblemPaymentMismatch},
	}, report.OrphanLicenses)
	assert.Equal(t, []license.IncompletePayment{
		{TransactionID: "TXN-STUCK", Status: license.PaymentPending},
	}, report.IncompletePayments)
}
