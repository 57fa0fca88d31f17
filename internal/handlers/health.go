package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const readinessProbeTimeout = 5 * time.Second

// ReadinessCheck probes one dependency. A nil error means ready.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	clock   func() time.Time
	started time.Time
	version string
	checks  map[string]ReadinessCheck
}

// HealthOption customises HealthHandlers construction.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
			h.started = clock()
		}
	}
}

// WithHealthVersion reports a build version in the health payload.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithReadinessCheck adds a named dependency probe to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// NewHealthHandlers constructs a new HealthHandlers instance.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		checks: make(map[string]ReadinessCheck),
	}
	h.started = h.clock()
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type healthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Uptime:    now.Sub(h.started).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

// Readyz runs every registered dependency probe and reports 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	payload := readinessResponse{Status: "ready", Checks: results}
	if !healthy {
		status = http.StatusServiceUnavailable
		payload.Status = "not_ready"
	}
	writeJSONResponse(w, status, payload)
}
