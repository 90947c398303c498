// Package http implements the HTTP handlers of the license service. Handlers
// are thin: they decode and validate the request, call the license manager or
// payment service, and render the result with go-chi/render.
//
// # Endpoints
//
//	POST /api/payment-webhook        payment provider delivery (alias /api/process-payment)
//	POST /api/verify-license         public key verification
//	POST /api/generate-license       admin issuance
//	POST /api/revoke-license         admin revocation
//	GET  /api/license/{key}          admin lookup
//	GET  /api/payment/{transactionId} admin lookup
//	GET  /api/admin/licenses         listing with summary counts
//	GET  /api/admin/payments         payment records
//	GET  /api/admin/reconcile        license/payment consistency report
//	GET  /api/health[/ready|/live], /api/version
//
// # Responses
//
// Success bodies carry "success": true. Business failures are rendered by
// internal/errors as
//
//	{"success": false, "error": "DuplicatePayment", "message": "...", "trace_id": "..."}
//
// The verification endpoint always answers with a "valid" flag and, when the
// key is rejected, a "reason" code. Only an unreadable request or a malformed
// key is a 400 there; revoked, expired and unknown keys are 200.
//
// Route wiring and the middleware chain live in internal/app.
package http
