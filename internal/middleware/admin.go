package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/BryanChi/SuperGPT-Website/internal/auth"
	apierrors "github.com/BryanChi/SuperGPT-Website/internal/errors"
)

// HeaderAdminKey carries the admin credential.
const HeaderAdminKey = "X-Admin-Key"

// maxCredentialPeek caps how much body is read looking for adminKey.
const maxCredentialPeek = 64 << 10

// AdminAuth guards admin routes. The credential is taken from the
// X-Admin-Key header, an Authorization bearer token, or an adminKey field
// in a JSON body, in that order. Failed attempts count against the client
// IP in the attempt limiter.
type AdminAuth struct {
	verifier auth.AdminVerifier
	limiter  *auth.AttemptLimiter
	errors   *apierrors.ErrorHandler
	logger   *slog.Logger
}

// NewAdminAuth creates the admin guard. limiter may be nil.
func NewAdminAuth(verifier auth.AdminVerifier, limiter *auth.AttemptLimiter, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *AdminAuth {
	return &AdminAuth{
		verifier: verifier,
		limiter:  limiter,
		errors:   errorHandler,
		logger:   logger.With(slog.String("component", "admin_auth")),
	}
}

// Handler implements the admin guard middleware
func (a *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		client := ClientIP(r)

		if a.limiter != nil {
			if blocked, remaining := a.limiter.Blocked(client); blocked {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
				a.errors.HandleError(w, r, auth.ErrLockedOut)
				return
			}
		}

		credential := credentialFromRequest(r)
		if err := a.verifier.Verify(ctx, credential); err != nil {
			a.logger.WarnContext(ctx, "admin authentication failed",
				slog.String("action", "admin_auth"),
				slog.String("result", "failure"),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client", client),
				slog.Bool("credential_present", credential != ""),
			)
			if a.limiter != nil {
				a.limiter.RecordFailure(ctx, client)
			}
			a.errors.HandleError(w, r, auth.ErrUnauthorized)
			return
		}

		if a.limiter != nil {
			a.limiter.RecordSuccess(client)
		}
		next.ServeHTTP(w, r)
	})
}

// credentialFromRequest finds the admin credential. A JSON body is read and
// restored so the handler can decode it again.
func credentialFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAdminKey)); key != "" {
		return key
	}

	if authz := r.Header.Get("Authorization"); authz != "" {
		if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialPeek+1))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
	if len(body) > maxCredentialPeek {
		return ""
	}

	var peek struct {
		AdminKey string `json:"adminKey"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return ""
	}
	return peek.AdminKey
}

// AuditLog records every request to a privileged route
func AuditLog(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(ctx, "audit log",
				"event_type", "admin_access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"remote_addr", ClientIP(r),
				"user_agent", r.UserAgent(),
				"duration", time.Since(start).String(),
			)
		})
	}
}
