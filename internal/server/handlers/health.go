// Package handlers implements the HTTP handlers of the ops gateway.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

// Checker probes one dependency of the gateway.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the body returned for healthy and degraded states.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager aggregates dependency checks into one gateway health
// verdict.
type HealthManager struct {
	version  string
	mu       sync.RWMutex
	checkers map[string]Checker

	// perCheckTimeout bounds each dependency probe.
	perCheckTimeout time.Duration
}

// NewHealthManager builds a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:         version,
		checkers:        make(map[string]Checker),
		perCheckTimeout: 5 * time.Second,
	}
}

// RegisterChecker adds a named dependency probe.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.perCheckTimeout)
		err := c.CheckHealth(checkCtx)
		cancel()
		switch {
		case err == nil:
			results[name] = "healthy"
		case checkCtx.Err() == context.DeadlineExceeded:
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds per-check results into one status. A timeout
// is degradation rather than failure: the dependency may still be serving,
// just slowly.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, result := range checks {
		switch result {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler reports the aggregate gateway health. Unhealthy states get a
// 503 error envelope carrying the per-check results.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		details := map[string]any{"checks": checks}
		apperrors.RespondWithError(w, http.StatusServiceUnavailable,
			apperrors.CodeServiceUnavailable, "one or more dependencies are unhealthy", details)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler answers as long as the process is serving requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "alive", Version: m.version})
}

// ReadinessHandler mirrors HealthHandler: the gateway is ready only when its
// dependencies are reachable.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports whether initialization finished. Manager existence
// is the signal; construction happens after wiring completes.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "started", Version: m.version})
}

var (
	globalMu            sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager installs the process-wide manager.
func InitHealthManager(version string) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide manager, or nil before init.
func GetHealthManager() *HealthManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalHealthManager
}

func withGlobal(w http.ResponseWriter, r *http.Request, fn func(*HealthManager, http.ResponseWriter, *http.Request)) {
	m := GetHealthManager()
	if m == nil {
		apperrors.RespondWithError(w, http.StatusServiceUnavailable,
			apperrors.CodeServiceUnavailable, "health manager not initialized", nil)
		return
	}
	fn(m, w, r)
}

// HealthHandler serves the global manager's aggregate health.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).HealthHandler)
}

// LivenessHandler serves the global manager's liveness probe.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).LivenessHandler)
}

// ReadinessHandler serves the global manager's readiness probe.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).ReadinessHandler)
}

// StartupHandler serves the global manager's startup probe.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal(w, r, (*HealthManager).StartupHandler)
}
