package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/BryanChi/SuperGPT-Website/internal/auth"
	apierrors "github.com/BryanChi/SuperGPT-Website/internal/errors"
)

// HeaderWebhookSecret carries the payment provider's shared secret.
const HeaderWebhookSecret = "X-Webhook-Secret"

// WebhookSecret rejects payment deliveries whose X-Webhook-Secret header does
// not match secret. An empty secret disables the check.
func WebhookSecret(secret string, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) func(next http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		if len(want) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(HeaderWebhookSecret))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				logger.WarnContext(r.Context(), "webhook secret rejected",
					slog.String("path", r.URL.Path),
					slog.String("client", ClientIP(r)),
					slog.Bool("header_present", len(got) > 0),
				)
				errorHandler.HandleError(w, r, auth.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
