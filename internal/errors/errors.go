package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/BryanChi/SuperGPT-Website/internal/auth"
	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// Reason codes produced outside the license package.
const (
	ReasonUnauthorized    license.Reason = "Unauthorized"
	ReasonTooManyAttempts license.Reason = "TooManyAttempts"
	ReasonRateLimited     license.Reason = "RateLimitExceeded"
	ReasonTimeout         license.Reason = "Timeout"
)

// ErrorResponse is the JSON body returned for every business failure.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`

	StatusCode int `json:"-"`
}

// Render implements the render.Renderer interface for chi/render
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates an ErrorResponse for reason with its default message.
func New(status int, reason license.Reason, traceID string) *ErrorResponse {
	return &ErrorResponse{
		Success:    false,
		Error:      string(reason),
		Message:    messageFor(reason),
		TraceID:    traceID,
		StatusCode: status,
	}
}

// WithMessage overrides the default message.
func (e *ErrorResponse) WithMessage(msg string) *ErrorResponse {
	e.Message = msg
	return e
}

// publicMessager is implemented by errors whose text is safe to show clients.
type publicMessager interface {
	PublicMessage() string
}

// FromError maps err to a status code and reason.
func FromError(err error, traceID string) *ErrorResponse {
	reason := ReasonOf(err)
	resp := New(StatusFor(reason), reason, traceID)

	var pm publicMessager
	if errors.As(err, &pm) {
		resp.Message = pm.PublicMessage()
	}
	return resp
}

// ReasonOf extends license.ReasonFor with authentication failures.
func ReasonOf(err error) license.Reason {
	switch {
	case errors.Is(err, auth.ErrLockedOut):
		return ReasonTooManyAttempts
	case errors.Is(err, auth.ErrUnauthorized):
		return ReasonUnauthorized
	}
	return license.ReasonFor(err)
}

// StatusFor returns the HTTP status for a reason code.
func StatusFor(reason license.Reason) int {
	switch reason {
	case license.ReasonInvalidInput,
		license.ReasonInvalidFormat,
		license.ReasonChecksumMismatch,
		license.ReasonDuplicatePayment:
		return http.StatusBadRequest
	case ReasonUnauthorized:
		return http.StatusUnauthorized
	case license.ReasonRevoked, license.ReasonExpired, license.ReasonEmailMismatch:
		return http.StatusForbidden
	case license.ReasonNotFound:
		return http.StatusNotFound
	case license.ReasonAlreadyRevoked, license.ReasonAlreadyExists:
		return http.StatusConflict
	case ReasonTooManyAttempts, ReasonRateLimited:
		return http.StatusTooManyRequests
	case ReasonTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(reason license.Reason) string {
	switch reason {
	case ReasonUnauthorized:
		return "Invalid admin key"
	case ReasonTooManyAttempts:
		return "Too many failed attempts, try again later"
	case ReasonRateLimited:
		return "Rate limit exceeded"
	case ReasonTimeout:
		return "The request took too long to process"
	}
	return reason.Message()
}
