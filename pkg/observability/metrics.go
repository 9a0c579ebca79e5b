package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the API server. The webhook
// and entitlement counters are what dashboards alert on; the rest support
// capacity planning.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	WebhooksReceivedTotal     *prometheus.CounterVec
	WebhooksDuplicateTotal    *prometheus.CounterVec
	WebhooksRejectedTotal     *prometheus.CounterVec
	WebhookProcessingDuration *prometheus.HistogramVec

	SubscriptionEventsAppliedTotal *prometheus.CounterVec
	SubscriptionEventsIgnoredTotal *prometheus.CounterVec

	EntitlementChecksTotal  *prometheus.CounterVec
	EntitlementDenialsTotal *prometheus.CounterVec

	RateLimitThrottledTotal *prometheus.CounterVec

	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	RedisConnectionsActive prometheus.Gauge
	RedisCommandsTotal     *prometheus.CounterVec
	RedisCommandDuration   *prometheus.HistogramVec

	OrganizationsTotal  prometheus.Gauge
	UsersTotal          prometheus.Gauge
	APITokensActive     prometheus.Gauge
	SubscriptionsByPlan *prometheus.GaugeVec
}

// NewMetrics builds and registers every instrument on the given registry.
// Callers hand each server its own registry so tests stay isolated.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "axle_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPRequestSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "axle_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "path"}),
		HTTPResponseSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "axle_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "path"}),

		WebhooksReceivedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_webhooks_received_total",
			Help: "Total number of webhook deliveries received",
		}, []string{"event_type"}),
		WebhooksDuplicateTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_webhooks_duplicate_total",
			Help: "Total number of webhook deliveries skipped as replays",
		}, []string{"event_type"}),
		WebhooksRejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_webhooks_rejected_total",
			Help: "Total number of webhook deliveries rejected before processing",
		}, []string{"reason"}),
		WebhookProcessingDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "axle_webhook_processing_duration_seconds",
			Help:    "Webhook processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type"}),

		SubscriptionEventsAppliedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_subscription_events_applied_total",
			Help: "Total number of subscription events applied to tenant state",
		}, []string{"event_type"}),
		SubscriptionEventsIgnoredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_subscription_events_ignored_total",
			Help: "Total number of subscription events recorded without a state change",
		}, []string{"reason"}),

		EntitlementChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_entitlement_checks_total",
			Help: "Total number of feature entitlement checks",
		}, []string{"feature", "decision"}),
		EntitlementDenialsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_entitlement_denials_total",
			Help: "Total number of plan-gated requests denied",
		}, []string{"feature"}),

		RateLimitThrottledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_rate_limit_throttled_total",
			Help: "Total number of requests throttled by the rate limiter",
		}, []string{"scope"}),

		DBConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_db_connections_active",
			Help: "Number of active database connections",
		}),
		DBConnectionsIdle: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBConnectionsWaitCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_db_connections_wait_count",
			Help: "Total number of connections waited for",
		}),
		DBConnectionsWaitDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_db_connections_wait_duration_seconds",
			Help: "Total time spent waiting for connections",
		}),

		RedisConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_redis_connections_active",
			Help: "Number of active Redis connections",
		}),
		RedisCommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axle_redis_commands_total",
			Help: "Total number of Redis commands",
		}, []string{"command", "status"}),
		RedisCommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "axle_redis_command_duration_seconds",
			Help:    "Redis command duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"command"}),

		OrganizationsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_organizations_total",
			Help: "Total number of organizations",
		}),
		UsersTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_users_total",
			Help: "Total number of users across all organizations",
		}),
		APITokensActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "axle_api_tokens_active",
			Help: "Number of active API tokens",
		}),
		SubscriptionsByPlan: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "axle_subscriptions_by_plan",
			Help: "Number of subscriptions per plan and status",
		}, []string{"plan", "status"}),
	}
}

// responseWriter captures the status code and body size for metric labels.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware records request counts, latency, and sizes. Paths
// in this API are a small fixed set, so the path label stays bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint exposes the registry on /metrics.
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
