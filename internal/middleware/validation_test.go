package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

type sampleRequest struct {
	TransactionID string `json:"transactionId" validate:"notblank,max=128"`
	Email         string `json:"customerEmail" validate:"required,email"`
	Currency      string `json:"currency" validate:"omitempty,iso4217"`
	Days          int    `json:"expiresInDays" validate:"gte=0,lte=36500"`
}

func TestValidatorDecodeJSON(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantFields []string
		wantMsg    string
	}{
		{
			name: "valid",
			body: `{"transactionId":"TXN-1","customerEmail":"a@b.com","currency":"USD"}`,
		},
		{
			name:       "blank transaction",
			body:       `{"transactionId":"   ","customerEmail":"a@b.com"}`,
			wantErr:    true,
			wantFields: []string{"transactionId"},
			wantMsg:    "transactionId is required",
		},
		{
			name:       "bad email and currency",
			body:       `{"transactionId":"T","customerEmail":"nope","currency":"XXXX"}`,
			wantErr:    true,
			wantFields: []string{"customerEmail", "currency"},
		},
		{
			name:       "out of range days",
			body:       `{"transactionId":"T","customerEmail":"a@b.com","expiresInDays":-1}`,
			wantErr:    true,
			wantFields: []string{"expiresInDays"},
		},
		{
			name:    "malformed json",
			body:    `{"transactionId":`,
			wantErr: true,
			wantMsg: "request body must be valid JSON",
		},
		{
			name:    "empty body",
			body:    ``,
			wantErr: true,
			wantMsg: "request body is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst sampleRequest
			err := v.DecodeJSON(req, &dst)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "TXN-1", dst.TransactionID)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, license.ErrInvalidInput))
			assert.Equal(t, license.ReasonInvalidInput, license.ReasonFor(err))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			fields := make([]string, 0, len(ve.Fields))
			for _, f := range ve.Fields {
				fields = append(fields, f.Field)
			}
			if tt.wantFields != nil {
				assert.ElementsMatch(t, tt.wantFields, fields)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, ve.PublicMessage(), tt.wantMsg)
			}
		})
	}
}

func TestValidatorBodyTooLarge(t *testing.T) {
	v := NewValidator()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"transactionId":"`+strings.Repeat("x", 100)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 16)

	var dst sampleRequest
	err := v.DecodeJSON(req, &dst)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "request body too large", ve.PublicMessage())
}
