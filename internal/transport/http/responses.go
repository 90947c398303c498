package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// LicenseResponse carries a single license.
type LicenseResponse struct {
	Success    bool            `json:"success"`
	LicenseKey string          `json:"licenseKey,omitempty"`
	License    license.License `json:"license"`
}

// PaymentResponse carries a single payment record.
type PaymentResponse struct {
	Success bool            `json:"success"`
	Payment license.Payment `json:"payment"`
}

// LicenseListResponse is the admin listing with summary counts.
type LicenseListResponse struct {
	Success  bool              `json:"success"`
	Total    int               `json:"total"`
	Active   int               `json:"active"`
	Revoked  int               `json:"revoked"`
	Expired  int               `json:"expired"`
	Licenses []license.License `json:"licenses"`
}

// PaymentListResponse is the admin payment listing.
type PaymentListResponse struct {
	Success  bool              `json:"success"`
	Total    int               `json:"total"`
	Payments []license.Payment `json:"payments"`
}

// ReconcileResponse wraps a reconciliation report.
type ReconcileResponse struct {
	Success    bool                    `json:"success"`
	Consistent bool                    `json:"consistent"`
	Report     license.ReconcileReport `json:"report"`
}

// VerifyResponse is returned by the verification endpoint for both valid and
// rejected keys.
type VerifyResponse struct {
	Valid   bool                 `json:"valid"`
	Reason  license.Reason       `json:"reason,omitempty"`
	Message string               `json:"message"`
	License *license.LicenseView `json:"license,omitempty"`
	TraceID string               `json:"trace_id,omitempty"`

	StatusCode int `json:"-"`
}

// Render implements render.Renderer
func (v *VerifyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if v.StatusCode != 0 {
		render.Status(r, v.StatusCode)
	}
	return nil
}

// publicMessage returns the client-safe text of err, or fallback.
func publicMessage(err error, fallback string) string {
	var pm interface{ PublicMessage() string }
	if errors.As(err, &pm) {
		return pm.PublicMessage()
	}
	return fallback
}

// FlexString accepts a JSON string or number. Payment providers disagree on
// how amounts are encoded.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}
