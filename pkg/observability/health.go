package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-redis/redis/v8"
)

// readinessTimeout bounds a full dependency sweep so a hung backend
// cannot stall the probe past the kubelet's own deadline.
const readinessTimeout = 5 * time.Second

// HealthChecker reports liveness and readiness over the API's backing
// services. Postgres is required; Redis only backs the rate limiter, so
// losing it degrades the service rather than failing it.
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	version string
}

// NewHealthChecker creates a health checker. Either dependency may be
// nil, in which case it is skipped.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redis,
		version: moduleVersion(),
	}
}

// HealthStatus is the readiness report: the rolled-up status plus the
// state of each checked dependency.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the health of a single dependency.
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Latency   float64   `json:"latency_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// dependencyCheck names one backing service. Critical dependencies take
// the whole service unhealthy; the rest only degrade it.
type dependencyCheck struct {
	name     string
	critical bool
	run      func(context.Context) DependencyStatus
}

func (h *HealthChecker) checks() []dependencyCheck {
	var checks []dependencyCheck
	if h.db != nil {
		checks = append(checks, dependencyCheck{name: "database", critical: true, run: h.checkDatabase})
	}
	if h.redis != nil {
		checks = append(checks, dependencyCheck{name: "redis", critical: false, run: h.checkRedis})
	}
	return checks
}

// Liveness answers 200 as long as the process is serving requests. It
// deliberately touches no dependencies.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness sweeps the dependencies and answers 503 only when a critical
// one is down. Degraded still serves traffic, so it stays 200.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check runs every configured dependency check and rolls the results up.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	for _, check := range h.checks() {
		dep := check.run(ctx)
		status.Dependencies[check.name] = dep

		switch {
		case dep.Status == StatusUnhealthy && check.critical:
			status.Status = StatusUnhealthy
		case dep.Status != StatusHealthy && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}

	return status
}

// checkDatabase verifies the primary connection with a ping and a
// round-trip query, then looks at pool pressure.
func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start,
	}

	if err := h.db.PingContext(ctx); err != nil {
		status.Latency = millisecondsSince(start)
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		status.Latency = millisecondsSince(start)
		status.Status = StatusUnhealthy
		status.Message = "query failed: " + err.Error()
		return status
	}
	status.Latency = millisecondsSince(start)

	// An exhausted pool still answers probes while API queries queue
	// behind it. Unlimited pools (MaxOpenConnections 0) never exhaust.
	if stats := h.db.Stats(); stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		status.Status = StatusDegraded
		status.Message = "connection pool exhausted"
	}

	return status
}

// checkRedis pings the rate limiter's shared counter store.
func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start,
	}

	err := h.redis.Ping(ctx).Err()
	status.Latency = millisecondsSince(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}

// millisecondsSince returns elapsed wall time in milliseconds, keeping
// sub-millisecond precision for local round trips.
func millisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// moduleVersion resolves the running binary's module version. Builds
// outside module mode report "dev".
func moduleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// RegisterHealthRoutes mounts the probe endpoints on the ops mux.
// /health/live is the liveness probe; /health and /health/ready both
// serve the readiness sweep.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
