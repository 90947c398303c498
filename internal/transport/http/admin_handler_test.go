package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

func TestGenerateLicense(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantExpiry time.Time
	}{
		{
			name:       "default term",
			body:       `{"email":"buyer@test.com","adminKey":"ignored-here"}`,
			wantCode:   http.StatusOK,
			wantExpiry: testNow.Add(10 * 365 * 24 * time.Hour),
		},
		{
			name:       "explicit days",
			body:       `{"email":"buyer@test.com","expiresInDays":30}`,
			wantCode:   http.StatusOK,
			wantExpiry: testNow.AddDate(0, 0, 30),
		},
		{
			name:     "missing email",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid email",
			body:     `{"email":"not-an-email"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "zero days",
			body:     `{"email":"buyer@test.com","expiresInDays":0}`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/generate-license", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCode != http.StatusOK {
				var body errorBody
				decode(t, rec, &body)
				assert.Equal(t, "InvalidInput", body.Error)

				all, err := env.manager.List(context.Background())
				require.NoError(t, err)
				assert.Empty(t, all)
				return
			}

			var resp LicenseResponse
			decode(t, rec, &resp)
			assert.True(t, resp.Success)
			assert.Regexp(t, keyPattern, resp.LicenseKey)
			assert.True(t, license.ValidateChecksum(resp.LicenseKey))
			assert.Equal(t, license.SourceAdmin, resp.License.Source)
			assert.Empty(t, resp.License.TransactionID)
			require.NotNil(t, resp.License.ExpiresAt)
			assert.True(t, tt.wantExpiry.Equal(*resp.License.ExpiresAt), "expiry %s", resp.License.ExpiresAt)
		})
	}
}

func TestRevokeLicense(t *testing.T) {
	env := newTestEnv(t)
	lic := env.issue(t, "a@test.com")

	rec := env.do(t, http.MethodPost, "/api/revoke-license", `{"licenseKey":"`+lic.Key+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LicenseResponse
	decode(t, rec, &resp)
	assert.Equal(t, license.StatusRevoked, resp.License.Status)
	require.NotNil(t, resp.License.RevokedAt)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
	}{
		{"already revoked", `{"licenseKey":"` + lic.Key + `"}`, http.StatusConflict, "AlreadyRevoked"},
		{"unknown", `{"licenseKey":"SGPT-NOPE-NOPE-NOPE"}`, http.StatusNotFound, "NotFound"},
		{"missing key", `{}`, http.StatusBadRequest, "InvalidInput"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/revoke-license", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)
			var body errorBody
			decode(t, rec, &body)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantError, body.Error)
		})
	}

	stored, err := env.manager.Get(context.Background(), lic.Key)
	require.NoError(t, err)
	assert.Equal(t, resp.License.RevokedAt.UTC(), stored.RevokedAt.UTC(), "second revoke must not touch the record")
}

func TestListLicenses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/api/admin/licenses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"total":0,"active":0,"revoked":0,"expired":0,"licenses":[]}`, rec.Body.String())

	env.issue(t, "a@test.com")
	r := env.issue(t, "b@test.com")
	_, err := env.manager.Revoke(ctx, r.Key)
	require.NoError(t, err)
	soon := testNow.Add(time.Hour)
	_, err = env.manager.Issue(ctx, license.IssueRequest{Email: "c@test.com", ExpiresAt: &soon})
	require.NoError(t, err)
	env.clock.Advance(2 * time.Hour)

	rec = env.do(t, http.MethodGet, "/api/admin/licenses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LicenseListResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Active)
	assert.Equal(t, 1, resp.Revoked)
	assert.Equal(t, 1, resp.Expired)
	assert.Len(t, resp.Licenses, 3)
}

func TestListLicensesStorageUnavailable(t *testing.T) {
	env := newTestEnvWithStore(t, brokenStore{})
	rec := env.do(t, http.MethodGet, "/api/admin/licenses", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "StorageUnavailable", body.Error)
}

func TestListPaymentsAndReconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/api/admin/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"total":0,"payments":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/payment-webhook", `{"transactionId":"TXN-1","customerEmail":"c@test.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payments PaymentListResponse
	decode(t, rec, &payments)
	assert.Equal(t, 1, payments.Total)
	require.Len(t, payments.Payments, 1)
	assert.Equal(t, "TXN-1", payments.Payments[0].TransactionID)

	rec = env.do(t, http.MethodGet, "/api/admin/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report ReconcileResponse
	decode(t, rec, &report)
	assert.True(t, report.Success)
	assert.True(t, report.Consistent)

	require.NoError(t, env.store.PutLicense(ctx, license.License{
		Key:           "SGPT-ORPH-ORPH-ORPH",
		Email:         "o@test.com",
		Status:        license.StatusActive,
		CreatedAt:     testNow,
		TransactionID: "TXN-GHOST",
	}))

	rec = env.do(t, http.MethodGet, "/api/admin/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report = ReconcileResponse{}
	decode(t, rec, &report)
	assert.False(t, report.Consistent)
	require.Len(t, report.Report.OrphanLicenses, 1)
	assert.Equal(t, "TXN-GHOST", report.Report.OrphanLicenses[0].TransactionID)
}
