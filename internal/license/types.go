package license

import "time"

// Status is the stored state of a license. Expiry is never stored; it is
// derived from ExpiresAt when a license is read.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	// StatusExpired is only ever reported, never persisted.
	StatusExpired Status = "expired"
)

// Source records how a license came to exist.
type Source string

const (
	SourcePayment Source = "payment"
	SourceAdmin   Source = "admin"
	SourceSeed    Source = "seed"
)

// License is the persisted license record.
type License struct {
	Key           string     `json:"key"`
	Email         string     `json:"email"`
	Status        Status     `json:"status"`
	Product       string     `json:"product,omitempty"`
	Source        Source     `json:"source,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	Amount        string     `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
}

// IsExpired reports whether the license has an expiry in the past at now.
func (l License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// EffectiveStatus classifies the license at now. Revocation wins over expiry.
func (l License) EffectiveStatus(now time.Time) Status {
	switch {
	case l.Status == StatusRevoked:
		return StatusRevoked
	case l.IsExpired(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// Projection returns the public view of the license handed to verifying
// clients.
func (l License) Projection() LicenseView {
	return LicenseView{
		Key:       l.Key,
		Email:     l.Email,
		ExpiresAt: l.ExpiresAt,
		Status:    l.Status,
	}
}

// LicenseView is the read-only projection returned by verification.
type LicenseView struct {
	Key       string     `json:"key"`
	Email     string     `json:"email"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Status    Status     `json:"status"`
}

// PaymentStatus tracks the two-step binding of a payment to a license.
type PaymentStatus string

const (
	// PaymentPending marks a reserved transaction whose license has not been
	// attached yet.
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Payment is the record of a processed payment-provider transaction.
type Payment struct {
	TransactionID string        `json:"transactionId"`
	CustomerEmail string        `json:"customerEmail"`
	PayerName     string        `json:"payerName,omitempty"`
	Amount        string        `json:"amount,omitempty"`
	Currency      string        `json:"currency,omitempty"`
	Status        PaymentStatus `json:"status"`
	ReservedAt    time.Time     `json:"reservedAt"`
	ProcessedAt   *time.Time    `json:"processedAt,omitempty"`
	LicenseKey    string        `json:"licenseKey,omitempty"`
}

// VerificationResult is the outcome of a verification request. Business
// negatives are reported through Valid and Reason.
type VerificationResult struct {
	Valid   bool         `json:"valid"`
	Reason  Reason       `json:"reason,omitempty"`
	License *LicenseView `json:"license,omitempty"`
}

// Summary aggregates licenses by effective status.
type Summary struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Revoked int `json:"revoked"`
	Expired int `json:"expired"`
}
