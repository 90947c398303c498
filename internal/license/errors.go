package license

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidFormat      = errors.New("invalid license key format")
	ErrChecksumMismatch   = errors.New("license key checksum mismatch")
	ErrNotFound           = errors.New("not found")
	ErrRevoked            = errors.New("license revoked")
	ErrExpired            = errors.New("license expired")
	ErrEmailMismatch      = errors.New("email does not match license")
	ErrDuplicatePayment   = errors.New("payment already processed")
	ErrAlreadyRevoked     = errors.New("license already revoked")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyGeneration      = errors.New("could not generate a unique license key")
)

// Reason is the stable, wire-visible code attached to a failed operation.
type Reason string

const (
	ReasonInvalidInput       Reason = "InvalidInput"
	ReasonInvalidFormat      Reason = "InvalidFormat"
	ReasonChecksumMismatch   Reason = "ChecksumMismatch"
	ReasonNotFound           Reason = "NotFound"
	ReasonRevoked            Reason = "Revoked"
	ReasonExpired            Reason = "Expired"
	ReasonEmailMismatch      Reason = "EmailMismatch"
	ReasonDuplicatePayment   Reason = "DuplicatePayment"
	ReasonAlreadyRevoked     Reason = "AlreadyRevoked"
	ReasonAlreadyExists      Reason = "AlreadyExists"
	ReasonStorageUnavailable Reason = "StorageUnavailable"
	ReasonKeyGeneration      Reason = "KeyGenerationFailed"
	ReasonInternal           Reason = "InternalError"
)

var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrInvalidInput, ReasonInvalidInput},
	{ErrInvalidFormat, ReasonInvalidFormat},
	{ErrChecksumMismatch, ReasonChecksumMismatch},
	{ErrNotFound, ReasonNotFound},
	{ErrRevoked, ReasonRevoked},
	{ErrExpired, ReasonExpired},
	{ErrEmailMismatch, ReasonEmailMismatch},
	{ErrDuplicatePayment, ReasonDuplicatePayment},
	{ErrAlreadyRevoked, ReasonAlreadyRevoked},
	{ErrAlreadyExists, ReasonAlreadyExists},
	{ErrStorageUnavailable, ReasonStorageUnavailable},
	{ErrKeyGeneration, ReasonKeyGeneration},
}

// ReasonFor maps err to its reason code. Errors outside this package map to
// ReasonInternal.
func ReasonFor(err error) Reason {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

// Err returns the sentinel error for a reason code, or nil.
func (r Reason) Err() error {
	for _, e := range reasons {
		if e.reason == r {
			return e.err
		}
	}
	return nil
}

// Message returns a human readable description for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonInvalidInput:
		return "Missing or invalid request fields"
	case ReasonInvalidFormat:
		return "Invalid license key format"
	case ReasonChecksumMismatch:
		return "License key failed integrity check"
	case ReasonNotFound:
		return "License key not found"
	case ReasonRevoked:
		return "License has been revoked"
	case ReasonExpired:
		return "License has expired"
	case ReasonEmailMismatch:
		return "Email does not match license"
	case ReasonDuplicatePayment:
		return "Payment already processed"
	case ReasonAlreadyRevoked:
		return "License is already revoked"
	case ReasonAlreadyExists:
		return "Record already exists"
	case ReasonStorageUnavailable:
		return "Storage is temporarily unavailable"
	case ReasonKeyGeneration:
		return "Could not generate a unique license key"
	default:
		return "Internal server error"
	}
}
