package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/BryanChi/SuperGPT-Website/internal/errors"
	"github.com/BryanChi/SuperGPT-Website/internal/license"
	"github.com/BryanChi/SuperGPT-Website/internal/middleware"
)

// PaymentHandler receives payment provider deliveries.
type PaymentHandler struct {
	payments  *license.PaymentService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *license.PaymentService, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		validator: validator,
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "payment")),
		tracer:    otel.Tracer(TracerName),
	}
}

// PaymentRequest is a confirmed payment. Older checkout integrations send
// payerEmail instead of customerEmail.
type PaymentRequest struct {
	TransactionID string     `json:"transactionId" validate:"required,notblank,max=128"`
	CustomerEmail string     `json:"customerEmail" validate:"required_without=PayerEmail,max=254"`
	PayerEmail    string     `json:"payerEmail" validate:"max=254"`
	PayerName     string     `json:"payerName,omitempty" validate:"max=256"`
	Amount        FlexString `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty" validate:"omitempty,alpha,len=3"`
}

// Event converts the request to a payment event.
func (p PaymentRequest) Event() license.PaymentEvent {
	email := strings.TrimSpace(p.CustomerEmail)
	if email == "" {
		email = strings.TrimSpace(p.PayerEmail)
	}
	return license.PaymentEvent{
		TransactionID: p.TransactionID,
		CustomerEmail: email,
		PayerName:     p.PayerName,
		Amount:        string(p.Amount),
		Currency:      strings.ToUpper(p.Currency),
	}
}

// ProcessPayment handles POST /api/payment-webhook and its alias
// POST /api/process-payment.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "payment_handler.process",
		trace.WithAttributes(
			attribute.String("http.route", r.URL.Path),
			attribute.String("operation", "process_payment"),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req PaymentRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("payment.transaction_id", req.TransactionID))

	lic, err := h.payments.ProcessPayment(ctx, req.Event())
	if err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, LicenseResponse{
		Success:    true,
		LicenseKey: lic.Key,
		License:    lic,
	})
}

// GetPayment handles GET /api/payment/{transactionId}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.GetPayment(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, PaymentResponse{Success: true, Payment: p})
}
