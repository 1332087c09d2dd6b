package ergors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	// Name is the name of the check.
	Name string `json:"name"`

	// Healthy indicates whether the check passed.
	Healthy bool `json:"healthy"`

	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// HealthStatus represents the overall health status of the manager.
type HealthStatus struct {
	// Healthy indicates whether all checks passed.
	Healthy bool `json:"healthy"`

	// Checks contains the results of individual checks.
	Checks []CheckResult `json:"checks"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// IsHealthy returns true if the manager is running.
// This is a quick check suitable for liveness probes.
func (m *Manager) IsHealthy() bool {
	return m.IsRunning()
}

// ReadinessChecks performs detailed health checks and returns the results.
// This is suitable for readiness probes and debugging.
//
// Checks performed:
//   - manager_running: Whether the manager is started and not stopped
//   - peers_connected: Whether any peer session is live (informational)
//   - topology_complete: Whether the cluster is a complete tetrahedron
//     (informational)
func (m *Manager) ReadinessChecks() HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Checks:    make([]CheckResult, 0, 3),
		Timestamp: time.Now(),
	}

	// Check 1: Manager running
	start := time.Now()
	running := m.IsRunning()
	status.Checks = append(status.Checks, CheckResult{
		Name:     "manager_running",
		Healthy:  running,
		Message:  boolToMessage(running, "manager is running", "manager is not running"),
		Duration: time.Since(start),
	})
	if !running {
		status.Healthy = false
	}

	// Check 2: Peers connected (informational, doesn't affect health)
	start = time.Now()
	online := 0
	for _, p := range m.Peers() {
		if p.Online {
			online++
		}
	}
	peerMsg := "no peers connected"
	if online > 0 {
		peerMsg = fmt.Sprintf("connected (%d)", online)
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "peers_connected",
		Healthy:  true,
		Message:  peerMsg,
		Duration: time.Since(start),
	})

	// Check 3: Topology completeness (informational, doesn't affect health)
	start = time.Now()
	complete := m.IsComplete()
	status.Checks = append(status.Checks, CheckResult{
		Name:     "topology_complete",
		Healthy:  true,
		Message:  boolToMessage(complete, "cluster is a complete tetrahedron", "cluster is not complete"),
		Duration: time.Since(start),
	})

	return status
}

// boolToMessage returns trueMsg if b is true, otherwise falseMsg.
func boolToMessage(b bool, trueMsg, falseMsg string) string {
	if b {
		return trueMsg
	}
	return falseMsg
}

// HealthHandler returns an http.Handler that serves health check responses.
// The handler responds with:
//   - 200 OK if the manager is healthy
//   - 503 Service Unavailable if the manager is unhealthy
//
// The response body contains a JSON representation of HealthStatus.
//
// Example usage:
//
//	http.Handle("/health", ergors.HealthHandler(manager))
func HealthHandler(m *Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := m.ReadinessChecks()

		w.Header().Set("Content-Type", "application/json")
		if status.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	})
}

// LivenessHandler returns an http.Handler that serves liveness check responses.
// This is a quick check that returns:
//   - 200 OK if the manager is alive
//   - 503 Service Unavailable if the manager is not alive
//
// Unlike HealthHandler, this does not perform detailed checks.
//
// Example usage:
//
//	http.Handle("/live", ergors.LivenessHandler(manager))
func LivenessHandler(m *Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		healthy := m.IsHealthy()

		w.Header().Set("Content-Type", "application/json")
		if healthy {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"healthy":true}`))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"healthy":false}`))
		}
	})
}
