package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

func TestVerifyLicense(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	active := env.issue(t, "active@test.com")
	revoked := env.issue(t, "revoked@test.com")
	_, err := env.manager.Revoke(ctx, revoked.Key)
	require.NoError(t, err)

	past := testNow.Add(-time.Hour)
	expired, err := env.manager.Issue(ctx, license.IssueRequest{Email: "old@test.com", ExpiresAt: &past})
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantValid  bool
		wantReason license.Reason
	}{
		{
			name:      "valid",
			body:      `{"licenseKey":"` + active.Key + `"}`,
			wantCode:  http.StatusOK,
			wantValid: true,
		},
		{
			name:      "lowercase key with matching email",
			body:      `{"licenseKey":"` + strings.ToLower(active.Key) + `","email":"active@test.com"}`,
			wantCode:  http.StatusOK,
			wantValid: true,
		},
		{
			name:       "email differs in case",
			body:       `{"licenseKey":"` + active.Key + `","email":"Active@test.com"}`,
			wantCode:   http.StatusOK,
			wantReason: license.ReasonEmailMismatch,
		},
		{
			name:       "revoked",
			body:       `{"licenseKey":"` + revoked.Key + `"}`,
			wantCode:   http.StatusOK,
			wantReason: license.ReasonRevoked,
		},
		{
			name:       "expired",
			body:       `{"licenseKey":"` + expired.Key + `"}`,
			wantCode:   http.StatusOK,
			wantReason: license.ReasonExpired,
		},
		{
			name:       "unknown",
			body:       `{"licenseKey":"SGPT-AAAA-BBBB-CCCC"}`,
			wantCode:   http.StatusOK,
			wantReason: license.ReasonNotFound,
		},
		{
			name:       "bad format",
			body:       `{"licenseKey":"not-a-key"}`,
			wantCode:   http.StatusBadRequest,
			wantReason: license.ReasonInvalidFormat,
		},
		{
			name:       "missing key",
			body:       `{"email":"active@test.com"}`,
			wantCode:   http.StatusBadRequest,
			wantReason: license.ReasonInvalidInput,
		},
		{
			name:       "unparsable body",
			body:       `licenseKey=abc`,
			wantCode:   http.StatusBadRequest,
			wantReason: license.ReasonInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/verify-license", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			var resp VerifyResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.wantValid, resp.Valid)
			assert.Equal(t, tt.wantReason, resp.Reason)
			assert.NotEmpty(t, resp.Message)

			if tt.wantValid {
				require.NotNil(t, resp.License)
				assert.Equal(t, active.Key, resp.License.Key)
				assert.Equal(t, "active@test.com", resp.License.Email)
			} else {
				assert.Nil(t, resp.License)
			}
		})
	}
}

func TestVerifyLicenseProjectionHidesAdminFields(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/payment-webhook",
		`{"transactionId":"TXN-9","customerEmail":"c@test.com","amount":"29.99"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var issued LicenseResponse
	decode(t, rec, &issued)

	rec = env.do(t, http.MethodPost, "/api/verify-license", `{"licenseKey":"`+issued.LicenseKey+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "TXN-9")
	assert.NotContains(t, body, "29.99")
	assert.NotContains(t, body, "createdAt")
}

func TestVerifyLicenseStorageUnavailable(t *testing.T) {
	env := newTestEnvWithStore(t, brokenStore{})
	rec := env.do(t, http.MethodPost, "/api/verify-license", `{"licenseKey":"SGPT-AAAA-BBBB-CCCC"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	decode(t, rec, &body)
	assert.False(t, body.Success)
	assert.Equal(t, "StorageUnavailable", body.Error)
}

func TestVerifyLicenseAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	soon := testNow.Add(24 * time.Hour)
	lic, err := env.manager.Issue(context.Background(), license.IssueRequest{Email: "a@test.com", ExpiresAt: &soon})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/verify-license", `{"licenseKey":"`+lic.Key+`"}`)
	var resp VerifyResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Valid)

	env.clock.Advance(48 * time.Hour)

	rec = env.do(t, http.MethodPost, "/api/verify-license", `{"licenseKey":"`+lic.Key+`"}`)
	resp = VerifyResponse{}
	decode(t, rec, &resp)
	assert.False(t, resp.Valid)
	assert.Equal(t, license.ReasonExpired, resp.Reason)
}

func TestGetLicense(t *testing.T) {
	env := newTestEnv(t)
	lic := env.issue(t, "a@test.com")

	rec := env.do(t, http.MethodGet, "/api/license/"+strings.ToLower(lic.Key), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LicenseResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, lic.Key, resp.License.Key)
	assert.Equal(t, license.SourceAdmin, resp.License.Source)

	rec = env.do(t, http.MethodGet, "/api/license/SGPT-NOPE-NOPE-NOPE", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "NotFound", body.Error)
}
