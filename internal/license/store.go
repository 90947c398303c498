package license

import "context"

// LicenseStore persists license records. Every backend failure is wrapped
// with ErrStorageUnavailable.
type LicenseStore interface {
	// GetLicense returns ErrNotFound when key is absent.
	GetLicense(ctx context.Context, key string) (License, error)
	// CreateLicense stores lic only if its key is unused, otherwise it
	// returns ErrAlreadyExists.
	CreateLicense(ctx context.Context, lic License) error
	PutLicense(ctx context.Context, lic License) error
	// UpdateLicense applies fn to the stored record atomically with respect
	// to other updates of the same key. An error from fn aborts the update
	// and is returned unchanged.
	UpdateLicense(ctx context.Context, key string, fn func(*License) error) (License, error)
	// ListLicenses returns all licenses ordered by CreatedAt, then Key.
	ListLicenses(ctx context.Context) ([]License, error)
	FindLicenses(ctx context.Context, match func(License) bool) ([]License, error)
}

// PaymentStore persists payment records keyed by transaction id.
type PaymentStore interface {
	GetPayment(ctx context.Context, transactionID string) (Payment, error)
	// CreatePayment is the uniqueness guard for transaction ids: it returns
	// ErrAlreadyExists when a record for the id is already present.
	CreatePayment(ctx context.Context, p Payment) error
	UpdatePayment(ctx context.Context, transactionID string, fn func(*Payment) error) (Payment, error)
	DeletePayment(ctx context.Context, transactionID string) error
	// ListPayments returns all payments ordered by ReservedAt, then
	// TransactionID.
	ListPayments(ctx context.Context) ([]Payment, error)
}

// Store is the full persistence contract used by the lifecycle manager and
// the payment service.
type Store interface {
	LicenseStore
	PaymentStore
	Ping(ctx context.Context) error
	Close() error
}
