package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status    string            `json:"status"` // "healthy" or "unhealthy"
	Checks    map[string]string `json:"checks"`
	Version   string            `json:"version,omitempty"`
	UptimeSec float64           `json:"uptime_seconds"`
}

// LivenessCheck reports whether a named component (typically a transport's
// accept loop) is still running.
type LivenessCheck func() (ok bool, detail string)

// HealthChecker aggregates a set of named liveness checks — one per
// enabled transport — into a single /health response, the way the
// teacher's HealthChecker aggregates session-store/rate-limiter/audit
// checks into one report.
type HealthChecker struct {
	version   string
	startedAt time.Time
	checks    map[string]LivenessCheck
}

// NewHealthChecker returns a HealthChecker reporting process uptime plus
// whatever named checks are registered via WithCheck.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, startedAt: time.Now(), checks: make(map[string]LivenessCheck)}
}

// WithCheck registers a named liveness check and returns the receiver for
// chaining at construction time.
func (h *HealthChecker) WithCheck(name string, check LivenessCheck) *HealthChecker {
	h.checks[name] = check
	return h
}

// Check runs every registered liveness check.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string, len(h.checks)+1)
	healthy := true

	for name, check := range h.checks {
		ok, detail := check()
		if detail == "" {
			detail = "ok"
		}
		if !ok {
			healthy = false
			detail = "down: " + detail
		}
		checks[name] = detail
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:    status,
		Checks:    checks,
		Version:   h.version,
		UptimeSec: time.Since(h.startedAt).Seconds(),
	}
}

// Handler returns an HTTP handler for the /health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
