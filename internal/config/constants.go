package config

import "time"

// Application constants
const (
	AppName     = "SuperGPT License Service"
	AppVersion  = "1.0.0"
	ServiceName = "sgpt-license"
	ProductName = "SuperGPT"

	DefaultPort           = 3000
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxBodyBytes   = 1 << 20

	// Pricing defaults applied when a payment event omits them
	DefaultPrice    = "29.99"
	DefaultCurrency = "USD"

	// DefaultLicenseTerm is ten years of 365 days.
	DefaultLicenseTerm = 10 * 365 * 24 * time.Hour

	// Rate limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Admin authentication lockout
	MaxAdminAttempts   = 5
	AdminBlockDuration = 15 * time.Minute
	AdminAttemptWindow = 5 * time.Minute

	DefaultLogFile  = "logs/licensed.log"
	DefaultBoltPath = "data/licenses.db"
)

// HTTP headers
const (
	HeaderAdminKey      = "X-Admin-Key"
	HeaderWebhookSecret = "X-Webhook-Secret"
	HeaderRequestID     = "X-Request-ID"
)
