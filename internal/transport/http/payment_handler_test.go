package http

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

var keyPattern = regexp.MustCompile(`^SGPT-[A-Z0-9]+-[A-Z0-9]+-[A-Z0-9]{4}$`)

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/payment-webhook",
		`{"transactionId":"TXN-1","customerEmail":"customer@test.com","amount":"9.90","currency":"USD"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var issued LicenseResponse
	decode(t, rec, &issued)
	assert.True(t, issued.Success)
	assert.Regexp(t, keyPattern, issued.LicenseKey)
	assert.Equal(t, issued.LicenseKey, issued.License.Key)
	assert.Equal(t, "customer@test.com", issued.License.Email)
	assert.Equal(t, "9.90", issued.License.Amount)
	assert.Equal(t, "TXN-1", issued.License.TransactionID)

	rec = env.do(t, http.MethodPost, "/api/verify-license", `{"licenseKey":"`+issued.LicenseKey+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var verified VerifyResponse
	decode(t, rec, &verified)
	assert.True(t, verified.Valid)

	rec = env.do(t, http.MethodPost, "/api/revoke-license", `{"licenseKey":"`+issued.LicenseKey+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var revoked LicenseResponse
	decode(t, rec, &revoked)
	assert.Equal(t, license.StatusRevoked, revoked.License.Status)

	rec = env.do(t, http.MethodPost, "/api/verify-license", `{"licenseKey":"`+issued.LicenseKey+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	verified = VerifyResponse{}
	decode(t, rec, &verified)
	assert.False(t, verified.Valid)
	assert.Equal(t, license.ReasonRevoked, verified.Reason)

	rec = env.do(t, http.MethodPost, "/api/payment-webhook",
		`{"transactionId":"TXN-1","customerEmail":"customer@test.com","amount":"9.90","currency":"USD"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var dup errorBody
	decode(t, rec, &dup)
	assert.False(t, dup.Success)
	assert.Equal(t, "DuplicatePayment", dup.Error)
}

func TestProcessPaymentRequests(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantCode   int
		wantError  string
		wantEmail  string
		wantAmount string
	}{
		{
			name:       "payer email alias",
			path:       "/api/process-payment",
			body:       `{"transactionId":"TXN-A","payerEmail":"payer@test.com","payerName":"Pat"}`,
			wantCode:   http.StatusOK,
			wantEmail:  "payer@test.com",
			wantAmount: "29.99",
		},
		{
			name:       "numeric amount",
			path:       "/api/payment-webhook",
			body:       `{"transactionId":"TXN-B","customerEmail":"c@test.com","amount":12.5,"currency":"eur"}`,
			wantCode:   http.StatusOK,
			wantEmail:  "c@test.com",
			wantAmount: "12.5",
		},
		{
			name:      "missing transaction",
			path:      "/api/payment-webhook",
			body:      `{"customerEmail":"c@test.com"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "InvalidInput",
		},
		{
			name:      "blank transaction",
			path:      "/api/payment-webhook",
			body:      `{"transactionId":"   ","customerEmail":"c@test.com"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "InvalidInput",
		},
		{
			name:      "missing email",
			path:      "/api/payment-webhook",
			body:      `{"transactionId":"TXN-C"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "InvalidInput",
		},
		{
			name:      "malformed body",
			path:      "/api/payment-webhook",
			body:      `{"transactionId":`,
			wantCode:  http.StatusBadRequest,
			wantError: "InvalidInput",
		},
		{
			name:      "amount is not a number",
			path:      "/api/payment-webhook",
			body:      `{"transactionId":"TXN-D","customerEmail":"c@test.com","amount":true}`,
			wantCode:  http.StatusBadRequest,
			wantError: "InvalidInput",
		},
		{
			name:      "bad currency",
			path:      "/api/payment-webhook",
			body:      `{"transactionId":"TXN-E","customerEmail":"c@test.com","currency":"dollars"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "InvalidInput",
		},
		{
			name:      "empty body",
			path:      "/api/payment-webhook",
			wantCode:  http.StatusBadRequest,
			wantError: "InvalidInput",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantError != "" {
				var body errorBody
				decode(t, rec, &body)
				assert.False(t, body.Success)
				assert.Equal(t, tt.wantError, body.Error)
				assert.NotEmpty(t, body.Message)

				payments, err := env.payments.ListPayments(context.Background())
				require.NoError(t, err)
				assert.Empty(t, payments, "rejected deliveries must not reserve a payment")
				return
			}

			var resp LicenseResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.wantEmail, resp.License.Email)
			assert.Equal(t, tt.wantAmount, resp.License.Amount)
			assert.Equal(t, license.SourcePayment, resp.License.Source)
			require.NotNil(t, resp.License.ExpiresAt)
			assert.True(t, testNow.Add(10*365*24*time.Hour).Equal(*resp.License.ExpiresAt))
		})
	}
}

func TestProcessPaymentUppercasesCurrency(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/payment-webhook",
		`{"transactionId":"TXN-1","customerEmail":"c@test.com","currency":"eur"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LicenseResponse
	decode(t, rec, &resp)
	assert.Equal(t, "EUR", resp.License.Currency)
}

func TestProcessPaymentConcurrentDeliveriesOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	const deliveries = 16

	codes := make([]int, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := env.do(t, http.MethodPost, "/api/payment-webhook",
				`{"transactionId":"TXN-RACE","customerEmail":"c@test.com"}`)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
			continue
		}
		assert.Equal(t, http.StatusBadRequest, code)
	}
	assert.Equal(t, 1, ok)

	bound, err := env.manager.FindByTransaction(context.Background(), "TXN-RACE")
	require.NoError(t, err)
	assert.Len(t, bound, 1)
}

func TestProcessPaymentStorageUnavailable(t *testing.T) {
	env := newTestEnvWithStore(t, brokenStore{})
	rec := env.do(t, http.MethodPost, "/api/payment-webhook",
		`{"transactionId":"TXN-1","customerEmail":"c@test.com"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "StorageUnavailable", body.Error)
}

func TestGetPayment(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/payment-webhook",
		`{"transactionId":"TXN-1","customerEmail":"c@test.com","payerName":"Casey"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var issued LicenseResponse
	decode(t, rec, &issued)

	rec = env.do(t, http.MethodGet, "/api/payment/TXN-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PaymentResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, license.PaymentCompleted, resp.Payment.Status)
	assert.Equal(t, issued.LicenseKey, resp.Payment.LicenseKey)
	assert.Equal(t, "Casey", resp.Payment.PayerName)

	rec = env.do(t, http.MethodGet, "/api/payment/TXN-404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "NotFound", body.Error)
}
