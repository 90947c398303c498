package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/BryanChi/SuperGPT-Website/internal/errors"
	"github.com/BryanChi/SuperGPT-Website/internal/infrastructure"
	"github.com/BryanChi/SuperGPT-Website/internal/license"
	"github.com/BryanChi/SuperGPT-Website/internal/middleware"
)

// TracerName is the instrumentation scope of the HTTP handlers.
const TracerName = "sgpt-license/http"

// LicenseHandler serves the public verification endpoint and license lookup.
type LicenseHandler struct {
	manager   *license.Manager
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(manager *license.Manager, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		manager:   manager,
		validator: validator,
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "license")),
		tracer:    otel.Tracer(TracerName),
	}
}

// VerifyRequest is the body of POST /api/verify-license
type VerifyRequest struct {
	LicenseKey       string `json:"licenseKey" validate:"required,notblank"`
	Email            string `json:"email,omitempty" validate:"omitempty,max=254"`
	ExtensionVersion string `json:"extensionVersion,omitempty"`
}

// Verify handles POST /api/verify-license. Business negatives are answered
// with 200 and a reason; a malformed key or body is a 400.
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "license_handler.verify",
		trace.WithAttributes(
			attribute.String("http.route", "/api/verify-license"),
			attribute.String("operation", "verify"),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)
	traceID := infrastructure.GetTraceID(ctx)

	var req VerifyRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		span.RecordError(err)
		_ = render.Render(w, r, &VerifyResponse{
			Valid:      false,
			Reason:     license.ReasonInvalidInput,
			Message:    publicMessage(err, license.ReasonInvalidInput.Message()),
			TraceID:    traceID,
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	result, err := h.manager.Verify(ctx, req.LicenseKey, req.Email)
	if err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	resp := &VerifyResponse{
		Valid:      result.Valid,
		Reason:     result.Reason,
		License:    result.License,
		TraceID:    traceID,
		StatusCode: http.StatusOK,
	}
	if result.Valid {
		resp.Message = "License is valid"
	} else {
		resp.Message = result.Reason.Message()
	}
	if result.Reason == license.ReasonInvalidFormat {
		resp.StatusCode = http.StatusBadRequest
	}

	span.SetAttributes(
		attribute.Bool("license.valid", result.Valid),
		attribute.String("license.reason", string(result.Reason)),
	)
	if req.ExtensionVersion != "" {
		h.logger.DebugContext(ctx, "verification from client",
			slog.String("extension_version", req.ExtensionVersion),
			slog.Bool("valid", result.Valid))
	}

	_ = render.Render(w, r, resp)
}

// Get handles GET /api/license/{key}
func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "license_handler.get",
		trace.WithAttributes(attribute.String("http.route", "/api/license/{key}")),
	)
	defer span.End()
	r = r.WithContext(ctx)

	lic, err := h.manager.Get(ctx, chi.URLParam(r, "key"))
	if err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, LicenseResponse{Success: true, License: lic})
}
