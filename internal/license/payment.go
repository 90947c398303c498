package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier is told about licenses issued for a payment. Delivery is best
// effort; failures are logged and never undo the issuance.
type Notifier interface {
	LicenseIssued(ctx context.Context, lic License, payment Payment) error
}

// PaymentEvent is a payment confirmed by the provider.
type PaymentEvent struct {
	TransactionID string
	CustomerEmail string
	PayerName     string
	Amount        string
	Currency      string
}

// PaymentConfig holds defaults applied to incoming payments.
type PaymentConfig struct {
	DefaultAmount   string
	DefaultCurrency string
	// LicenseTerm is the validity of a paid license. Zero issues
	// non-expiring licenses.
	LicenseTerm time.Duration
}

// PaymentService binds provider transactions to licenses, at most one
// license per transaction id.
type PaymentService struct {
	manager  *Manager
	payments PaymentStore
	locks    *KeyedMutex
	notifier Notifier
	cfg      PaymentConfig
	logger   *slog.Logger
}

// PaymentOption customizes a PaymentService.
type PaymentOption func(*PaymentService)

func WithNotifier(n Notifier) PaymentOption {
	return func(s *PaymentService) { s.notifier = n }
}

// NewPaymentService creates the payment binding service. Licenses are issued
// through manager; payments is the idempotency record store.
func NewPaymentService(manager *Manager, payments PaymentStore, cfg PaymentConfig, opts ...PaymentOption) *PaymentService {
	s := &PaymentService{
		manager:  manager,
		payments: payments,
		locks:    NewKeyedMutex(),
		cfg:      cfg,
		logger:   manager.logger.With("service", "payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessPayment issues a license for ev unless its transaction id was seen
// before, in which case it returns ErrDuplicatePayment.
//
// The payment record is reserved in pending state before the license is
// issued. If issuance fails the reservation is removed so the provider may
// retry, unless the failure leaves open whether the license was written (see
// recoverIssued). If attaching the key to the reservation fails the license
// is still returned; Reconcile reports the pending record.
func (s *PaymentService) ProcessPayment(ctx context.Context, ev PaymentEvent) (lic License, err error) {
	start := time.Now()
	ctx, span := s.manager.tracer.Start(ctx, "license.process_payment")
	defer span.End()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(ReasonFor(err))
			s.manager.fail(span, err)
		}
		s.manager.metrics.paymentProcessed(ctx, time.Since(start).Seconds(), outcome)
	}()

	txID := strings.TrimSpace(ev.TransactionID)
	email := strings.TrimSpace(ev.CustomerEmail)
	if txID == "" || email == "" {
		return License{}, fmt.Errorf("%w: transactionId and customerEmail are required", ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("payment.transaction_id", txID))

	amount := strings.TrimSpace(ev.Amount)
	if amount == "" {
		amount = s.cfg.DefaultAmount
	}
	currency := strings.TrimSpace(ev.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	unlock := s.locks.Lock(txID)
	defer unlock()

	now := s.manager.now().UTC()
	reservation := Payment{
		TransactionID: txID,
		CustomerEmail: email,
		PayerName:     strings.TrimSpace(ev.PayerName),
		Amount:        amount,
		Currency:      currency,
		Status:        PaymentPending,
		ReservedAt:    now,
	}

	err = s.payments.CreatePayment(ctx, reservation)
	if errors.Is(err, ErrAlreadyExists) {
		logLicenseAction(ctx, s.logger, slog.LevelWarn, "process_payment", "duplicate", "", email,
			slog.String("transaction_id", txID))
		return License{}, fmt.Errorf("transaction %s: %w", txID, ErrDuplicatePayment)
	}
	if err != nil {
		s.manager.metrics.storageError(ctx, "create_payment")
		logLicenseAction(ctx, s.logger, slog.LevelError, "process_payment", "reservation_failed", "", email,
			slog.String("transaction_id", txID),
			slog.String("error", err.Error()))
		return License{}, fmt.Errorf("reserve payment: %w", err)
	}

	var expiresAt *time.Time
	if s.cfg.LicenseTerm > 0 {
		t := now.Add(s.cfg.LicenseTerm)
		expiresAt = &t
	}

	lic, err = s.manager.Issue(ctx, IssueRequest{
		Email:         email,
		TransactionID: txID,
		Amount:        amount,
		Currency:      currency,
		ExpiresAt:     expiresAt,
		Source:        SourcePayment,
	})
	if err != nil {
		recovered, ok := s.recoverIssued(ctx, txID, email, err)
		if !ok {
			return License{}, err
		}
		lic, err = recovered, nil
	}

	// The license exists from here on; finish the binding even if the
	// caller has gone away.
	payment, cerr := s.payments.UpdatePayment(context.WithoutCancel(ctx), txID, func(p *Payment) error {
		p.Status = PaymentCompleted
		p.LicenseKey = lic.Key
		p.ProcessedAt = &now
		return nil
	})
	if cerr != nil {
		s.manager.metrics.storageError(ctx, "update_payment")
		logLicenseAction(ctx, s.logger, slog.LevelError, "process_payment", "completion_failed", lic.Key, email,
			slog.String("transaction_id", txID),
			slog.String("error", cerr.Error()))
		payment = reservation
		payment.LicenseKey = lic.Key
	}

	logLicenseAction(ctx, s.logger, slog.LevelInfo, "process_payment", "success", lic.Key, email,
		slog.String("transaction_id", txID),
		slog.String("amount", amount),
		slog.String("currency", currency))

	s.notify(ctx, lic, payment)
	return lic, nil
}

// recoverIssued decides what happens to the reservation after Issue failed.
// A storage fault or a cancelled request may hide a license the store did
// write, so the store is asked for a license bound to txID first: a found
// license is adopted, none found releases the reservation, and a failed
// lookup keeps the reservation pending for Reconcile. Any other failure
// releases the reservation.
func (s *PaymentService) recoverIssued(ctx context.Context, txID, email string, cause error) (License, bool) {
	ambiguous := errors.Is(cause, ErrStorageUnavailable) ||
		errors.Is(cause, context.Canceled) ||
		errors.Is(cause, context.DeadlineExceeded)
	if !ambiguous {
		s.release(ctx, txID, email, cause)
		return License{}, false
	}

	found, err := s.manager.FindByTransaction(context.WithoutCancel(ctx), txID)
	switch {
	case err != nil:
		s.manager.metrics.storageError(ctx, "find_licenses")
		logLicenseAction(ctx, s.logger, slog.LevelError, "process_payment", "reservation_kept", "", email,
			slog.String("transaction_id", txID),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()))
		return License{}, false
	case len(found) == 0:
		s.release(ctx, txID, email, cause)
		return License{}, false
	}

	logLicenseAction(ctx, s.logger, slog.LevelWarn, "process_payment", "recovered", found[0].Key, email,
		slog.String("transaction_id", txID),
		slog.String("cause", cause.Error()))
	return found[0], true
}

// release deletes a reservation after a failed issuance.
func (s *PaymentService) release(ctx context.Context, txID, email string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.payments.DeletePayment(ctx, txID); err != nil && !errors.Is(err, ErrNotFound) {
		s.manager.metrics.storageError(ctx, "delete_payment")
		logLicenseAction(ctx, s.logger, slog.LevelError, "process_payment", "release_failed", "", email,
			slog.String("transaction_id", txID),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()))
		return
	}
	logLicenseAction(ctx, s.logger, slog.LevelWarn, "process_payment", "released", "", email,
		slog.String("transaction_id", txID),
		slog.String("cause", cause.Error()))
}

func (s *PaymentService) notify(ctx context.Context, lic License, payment Payment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.LicenseIssued(ctx, lic, payment); err != nil {
		trace.SpanFromContext(ctx).AddEvent("notify.failed")
		logLicenseAction(ctx, s.logger, slog.LevelWarn, "notify", "failed", lic.Key, lic.Email,
			slog.String("error", err.Error()))
	}
}

// GetPayment returns the payment record for transactionID.
func (s *PaymentService) GetPayment(ctx context.Context, transactionID string) (Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return Payment{}, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	return s.payments.GetPayment(ctx, transactionID)
}

func (s *PaymentService) ListPayments(ctx context.Context) ([]Payment, error) {
	payments, err := s.payments.ListPayments(ctx)
	if err != nil {
		s.manager.metrics.storageError(ctx, "list_payments")
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}
