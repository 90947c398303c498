package http

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`

	StatusCode int `json:"-"`
}

// Render implements render.Renderer
func (h *HealthResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if h.StatusCode != 0 {
		render.Status(r, h.StatusCode)
	}
	return nil
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store        Pinger
	build        BuildInfo
	started      time.Time
	checkTimeout time.Duration
	logger       *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, build BuildInfo, logger *slog.Logger) *HealthHandler {
	if build.GoVersion == "" {
		build.GoVersion = runtime.Version()
	}
	return &HealthHandler{
		store:        store,
		build:        build,
		started:      time.Now(),
		checkTimeout: 2 * time.Second,
		logger:       logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// ReadinessCheck handles GET /api/health/ready
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	resp := &HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{"storage": "ok"},
	}
	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(r.Context(), "Readiness check failed",
			slog.String("check", "storage"),
			slog.String("error", err.Error()))
		resp.Status = "not_ready"
		resp.Checks["storage"] = "unavailable"
		resp.StatusCode = http.StatusServiceUnavailable
	}
	_ = render.Render(w, r, resp)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, &HealthResponse{Status: "alive", Timestamp: time.Now().UTC()})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.build)
}
