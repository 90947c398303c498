package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/BryanChi/SuperGPT-Website/internal/errors"
	"github.com/BryanChi/SuperGPT-Website/internal/license"
	"github.com/BryanChi/SuperGPT-Website/internal/middleware"
)

// AdminHandler serves the privileged license operations. Authentication is
// done by middleware before any of these run.
type AdminHandler struct {
	manager   *license.Manager
	payments  *license.PaymentService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
	tracer    trace.Tracer
	term      time.Duration
}

// NewAdminHandler creates the admin handler. term is the validity of
// licenses issued without an explicit expiresInDays; zero means they never
// expire.
func NewAdminHandler(manager *license.Manager, payments *license.PaymentService, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, logger *slog.Logger, term time.Duration) *AdminHandler {
	return &AdminHandler{
		manager:   manager,
		payments:  payments,
		validator: validator,
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "admin")),
		tracer:    otel.Tracer(TracerName),
		term:      term,
	}
}

// GenerateRequest is the body of POST /api/generate-license
type GenerateRequest struct {
	Email         string `json:"email" validate:"required,notblank,email,max=254"`
	ExpiresInDays *int   `json:"expiresInDays,omitempty" validate:"omitempty,gte=1,lte=36500"`
}

// RevokeRequest is the body of POST /api/revoke-license
type RevokeRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required,notblank"`
}

// Generate handles POST /api/generate-license
func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "admin_handler.generate",
		trace.WithAttributes(attribute.String("http.route", "/api/generate-license")),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req GenerateRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	var expiresAt *time.Time
	switch {
	case req.ExpiresInDays != nil:
		t := h.manager.Now().UTC().AddDate(0, 0, *req.ExpiresInDays)
		expiresAt = &t
	case h.term > 0:
		t := h.manager.Now().UTC().Add(h.term)
		expiresAt = &t
	}

	lic, err := h.manager.Issue(ctx, license.IssueRequest{
		Email:     req.Email,
		ExpiresAt: expiresAt,
		Source:    license.SourceAdmin,
	})
	if err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, LicenseResponse{Success: true, LicenseKey: lic.Key, License: lic})
}

// Revoke handles POST /api/revoke-license
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "admin_handler.revoke",
		trace.WithAttributes(attribute.String("http.route", "/api/revoke-license")),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req RevokeRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	lic, err := h.manager.Revoke(ctx, req.LicenseKey)
	if err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, LicenseResponse{Success: true, License: lic})
}

// ListLicenses handles GET /api/admin/licenses
func (h *AdminHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.manager.List(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	summary := license.Summarize(licenses, h.manager.Now())
	if licenses == nil {
		licenses = []license.License{}
	}
	render.JSON(w, r, LicenseListResponse{
		Success:  true,
		Total:    summary.Total,
		Active:   summary.Active,
		Revoked:  summary.Revoked,
		Expired:  summary.Expired,
		Licenses: licenses,
	})
}

// ListPayments handles GET /api/admin/payments
func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListPayments(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if payments == nil {
		payments = []license.Payment{}
	}
	render.JSON(w, r, PaymentListResponse{Success: true, Total: len(payments), Payments: payments})
}

// Reconcile handles GET /api/admin/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "admin_handler.reconcile")
	defer span.End()
	r = r.WithContext(ctx)

	report, err := h.payments.Reconcile(ctx)
	if err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, err)
		return
	}

	if !report.Consistent() {
		h.logger.WarnContext(ctx, "reconciliation found inconsistencies",
			slog.Int("orphan_licenses", len(report.OrphanLicenses)),
			slog.Int("incomplete_payments", len(report.IncompletePayments)))
	}
	render.JSON(w, r, ReconcileResponse{Success: true, Consistent: report.Consistent(), Report: report})
}
