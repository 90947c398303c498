package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	TracerName = "sgpt-license"
	MeterName  = "sgpt-license"
)

// Metrics holds the license counters exported through OpenTelemetry.
type Metrics struct {
	Issued            metric.Int64Counter
	Verifications     metric.Int64Counter
	Revoked           metric.Int64Counter
	PaymentsProcessed metric.Int64Counter
	DuplicatePayments metric.Int64Counter
	StorageErrors     metric.Int64Counter
	PaymentDuration   metric.Float64Histogram
}

// NewMetrics registers the license instruments on meter. A nil meter uses the
// global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	m := &Metrics{}
	var err error

	if m.Issued, err = meter.Int64Counter("license_issued_total",
		metric.WithDescription("Licenses issued, by source")); err != nil {
		return nil, fmt.Errorf("failed to create issued counter: %w", err)
	}
	if m.Verifications, err = meter.Int64Counter("license_verifications_total",
		metric.WithDescription("License verifications, by result")); err != nil {
		return nil, fmt.Errorf("failed to create verifications counter: %w", err)
	}
	if m.Revoked, err = meter.Int64Counter("license_revoked_total",
		metric.WithDescription("Licenses revoked")); err != nil {
		return nil, fmt.Errorf("failed to create revoked counter: %w", err)
	}
	if m.PaymentsProcessed, err = meter.Int64Counter("license_payments_processed_total",
		metric.WithDescription("Payments bound to a new license")); err != nil {
		return nil, fmt.Errorf("failed to create payments counter: %w", err)
	}
	if m.DuplicatePayments, err = meter.Int64Counter("license_duplicate_payments_total",
		metric.WithDescription("Payment deliveries rejected as duplicates")); err != nil {
		return nil, fmt.Errorf("failed to create duplicate payments counter: %w", err)
	}
	if m.StorageErrors, err = meter.Int64Counter("license_storage_errors_total",
		metric.WithDescription("Store operations that failed, by operation")); err != nil {
		return nil, fmt.Errorf("failed to create storage errors counter: %w", err)
	}
	if m.PaymentDuration, err = meter.Float64Histogram("license_payment_duration_seconds",
		metric.WithDescription("Payment processing duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create payment duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) issued(ctx context.Context, source Source) {
	if m == nil {
		return
	}
	m.Issued.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}

func (m *Metrics) verified(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) revoked(ctx context.Context) {
	if m == nil {
		return
	}
	m.Revoked.Add(ctx, 1)
}

func (m *Metrics) paymentProcessed(ctx context.Context, seconds float64, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if outcome == "success" {
		m.PaymentsProcessed.Add(ctx, 1)
	}
	if outcome == string(ReasonDuplicatePayment) {
		m.DuplicatePayments.Add(ctx, 1)
	}
	m.PaymentDuration.Record(ctx, seconds, attrs)
}

func (m *Metrics) storageError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.StorageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
