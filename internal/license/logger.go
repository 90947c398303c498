package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/BryanChi/SuperGPT-Website/internal/infrastructure"
)

const componentName = "license_manager"

// logLicenseAction writes an audit line for a license operation. Keys and
// emails never reach the log unmasked.
func logLicenseAction(ctx context.Context, logger *slog.Logger, level slog.Level, action, result, key, email string, attrs ...slog.Attr) {
	if logger == nil {
		logger = infrastructure.ComponentLogger(ctx, componentName)
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("license.action", action),
			attribute.String("license.result", result),
			attribute.String("license.key_masked", MaskKey(key)),
		)
		infrastructure.AddSpanEvent(ctx, "license.audit", map[string]interface{}{
			"action":           action,
			"result":           result,
			"license_key_hash": hashLicenseKey(key),
		})
	}

	all := []slog.Attr{
		slog.String("action", action),
		slog.String("result", result),
	}
	if key != "" {
		all = append(all,
			slog.String("license_key_masked", MaskKey(key)),
			slog.String("license_key_hash", hashLicenseKey(key)),
		)
	}
	if email != "" {
		all = append(all, slog.String("user_email_masked", maskEmail(email)))
	}
	all = append(all, attrs...)

	logger.LogAttrs(ctx, level, action+" "+result, all...)
}

// maskEmail keeps the first and last character of the local part and the
// whole domain.
func maskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at == -1 {
		return "****"
	}

	user, domain := email[:at], email[at:]
	if len(user) <= 2 {
		return "**" + domain
	}
	return user[:1] + "****" + user[len(user)-1:] + domain
}

// hashLicenseKey returns a short sha256 prefix usable for correlating audit
// lines without exposing the key.
func hashLicenseKey(key string) string {
	if key == "" {
		return ""
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])[:16]
}
