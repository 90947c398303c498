package license

import (
	"context"
	"log/slog"
)

// Orphan problems reported by Reconcile.
const (
	ProblemMissingPayment  = "missing_payment"
	ProblemPaymentMismatch = "payment_mismatch"
)

// OrphanLicense is a payment-sourced license whose payment record does not
// point back at it.
type OrphanLicense struct {
	Key           string `json:"key"`
	TransactionID string `json:"transactionId"`
	Problem       string `json:"problem"`
}

// IncompletePayment is a payment reservation without a license attached.
// LicenseKey is filled when a license carrying the transaction id exists.
type IncompletePayment struct {
	TransactionID string        `json:"transactionId"`
	Status        PaymentStatus `json:"status"`
	LicenseKey    string        `json:"licenseKey,omitempty"`
}

type ReconcileReport struct {
	CheckedLicenses    int                 `json:"checkedLicenses"`
	CheckedPayments    int                 `json:"checkedPayments"`
	OrphanLicenses     []OrphanLicense     `json:"orphanLicenses"`
	IncompletePayments []IncompletePayment `json:"incompletePayments"`
}

// Consistent reports whether no inconsistency was found.
func (r ReconcileReport) Consistent() bool {
	return len(r.OrphanLicenses) == 0 && len(r.IncompletePayments) == 0
}

// Reconcile cross-checks licenses and payments. It only reports; nothing is
// modified.
func (s *PaymentService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	ctx, span := s.manager.tracer.Start(ctx, "license.reconcile")
	defer span.End()

	licenses, err := s.manager.List(ctx)
	if err != nil {
		s.manager.fail(span, err)
		return ReconcileReport{}, err
	}
	payments, err := s.ListPayments(ctx)
	if err != nil {
		s.manager.fail(span, err)
		return ReconcileReport{}, err
	}

	report := ReconcileReport{
		CheckedLicenses:    len(licenses),
		CheckedPayments:    len(payments),
		OrphanLicenses:     []OrphanLicense{},
		IncompletePayments: []IncompletePayment{},
	}

	byTx := make(map[string]Payment, len(payments))
	for _, p := range payments {
		byTx[p.TransactionID] = p
	}
	keyByTx := make(map[string]string)

	for _, l := range licenses {
		if l.TransactionID == "" {
			continue
		}
		keyByTx[l.TransactionID] = l.Key

		p, ok := byTx[l.TransactionID]
		switch {
		case !ok:
			report.OrphanLicenses = append(report.OrphanLicenses, OrphanLicense{
				Key: l.Key, TransactionID: l.TransactionID, Problem: ProblemMissingPayment,
			})
		case p.LicenseKey != "" && p.LicenseKey != l.Key:
			report.OrphanLicenses = append(report.OrphanLicenses, OrphanLicense{
				Key: l.Key, TransactionID: l.TransactionID, Problem: ProblemPaymentMismatch,
			})
		}
	}

	for _, p := range payments {
		if p.Status == PaymentCompleted && p.LicenseKey != "" {
			continue
		}
		report.IncompletePayments = append(report.IncompletePayments, IncompletePayment{
			TransactionID: p.TransactionID,
			Status:        p.Status,
			LicenseKey:    keyByTx[p.TransactionID],
		})
	}

	level := slog.LevelInfo
	if !report.Consistent() {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "reconcile completed",
		slog.String("action", "reconcile"),
		slog.Int("licenses", report.CheckedLicenses),
		slog.Int("payments", report.CheckedPayments),
		slog.Int("orphan_licenses", len(report.OrphanLicenses)),
		slog.Int("incomplete_payments", len(report.IncompletePayments)))

	return report, nil
}
