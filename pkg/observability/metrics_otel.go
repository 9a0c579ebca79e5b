package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the service metrics onto OTel instruments for
// deployments that ship telemetry over OTLP instead of scraping the
// Prometheus endpoint.
type OTelMetrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	httpRequestSize     metric.Int64Histogram
	httpResponseSize    metric.Int64Histogram

	dbConnectionsActive metric.Int64UpDownCounter
	dbConnectionsIdle   metric.Int64UpDownCounter
	dbConnectionsMax    metric.Int64Gauge
	dbQueryDuration     metric.Float64Histogram
	dbQueriesTotal      metric.Int64Counter

	cacheHitsTotal      metric.Int64Counter
	cacheMissesTotal    metric.Int64Counter
	cacheEvictionsTotal metric.Int64Counter
	cacheSize           metric.Int64UpDownCounter

	webhookDeliveries metric.Int64Counter
	webhookDuration   metric.Float64Histogram

	storageOperations metric.Int64Counter
	storageDuration   metric.Float64Histogram
	storageBytes      metric.Int64Histogram
}

// instrumentBuilder keeps the first creation error so instrument setup
// stays a flat list instead of eighteen error checks.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, description, unit string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	inst, err := b.meter.Int64Counter(name,
		metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return inst
}

// seconds returns a duration histogram in seconds, the OTel convention
// for latency instruments.
func (b *instrumentBuilder) seconds(name, description string) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	inst, err := b.meter.Float64Histogram(name,
		metric.WithDescription(description), metric.WithUnit("s"))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return inst
}

func (b *instrumentBuilder) sizeHistogram(name, description string) metric.Int64Histogram {
	if b.err != nil {
		return nil
	}
	inst, err := b.meter.Int64Histogram(name,
		metric.WithDescription(description), metric.WithUnit("By"))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return inst
}

func (b *instrumentBuilder) upDown(name, description, unit string) metric.Int64UpDownCounter {
	if b.err != nil {
		return nil
	}
	inst, err := b.meter.Int64UpDownCounter(name,
		metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return inst
}

func (b *instrumentBuilder) gauge(name, description, unit string) metric.Int64Gauge {
	if b.err != nil {
		return nil
	}
	inst, err := b.meter.Int64Gauge(name,
		metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return inst
}

// NewOTelMetrics creates every instrument on the global meter provider.
// Call after InitOTel so the instruments bind to the real provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	b := &instrumentBuilder{meter: otel.Meter("github.com/platinummonkey/axle")}

	m := &OTelMetrics{
		httpRequestsTotal:   b.counter("http.server.requests", "Total number of HTTP requests", "{request}"),
		httpRequestDuration: b.seconds("http.server.duration", "HTTP request duration in seconds"),
		httpRequestSize:     b.sizeHistogram("http.server.request.size", "HTTP request size in bytes"),
		httpResponseSize:    b.sizeHistogram("http.server.response.size", "HTTP response size in bytes"),

		dbConnectionsActive: b.upDown("db.connections.active", "Number of active database connections", "{connection}"),
		dbConnectionsIdle:   b.upDown("db.connections.idle", "Number of idle database connections", "{connection}"),
		dbConnectionsMax:    b.gauge("db.connections.max", "Maximum number of database connections", "{connection}"),
		dbQueryDuration:     b.seconds("db.query.duration", "Database query duration in seconds"),
		dbQueriesTotal:      b.counter("db.queries.total", "Total number of database queries", "{query}"),

		cacheHitsTotal:      b.counter("cache.hits.total", "Total number of cache hits", "{hit}"),
		cacheMissesTotal:    b.counter("cache.misses.total", "Total number of cache misses", "{miss}"),
		cacheEvictionsTotal: b.counter("cache.evictions.total", "Total number of cache evictions", "{eviction}"),
		cacheSize:           b.upDown("cache.size", "Current cache size", "By"),

		webhookDeliveries: b.counter("webhook.deliveries", "Total number of webhook deliveries by outcome", "{delivery}"),
		webhookDuration:   b.seconds("webhook.processing.duration", "Webhook processing duration in seconds"),

		storageOperations: b.counter("storage.operations.total", "Total number of storage operations", "{operation}"),
		storageDuration:   b.seconds("storage.operation.duration", "Storage operation duration in seconds"),
		storageBytes:      b.sizeHistogram("storage.bytes", "Storage operation bytes transferred"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordHTTPRequest records one served request. Sizes of zero are skipped
// so missing Content-Length headers do not distort the distributions.
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
	if requestSize > 0 {
		m.httpRequestSize.Record(ctx, requestSize, attrs)
	}
	if responseSize > 0 {
		m.httpResponseSize.Record(ctx, responseSize, attrs)
	}
}

// RecordDBQuery records one query by logical operation name.
func (m *OTelMetrics) RecordDBQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.Bool("error", err != nil),
	)

	m.dbQueriesTotal.Add(ctx, 1, attrs)
	m.dbQueryDuration.Record(ctx, duration.Seconds(), attrs)
}

// UpdateDBConnectionStats pushes pool gauges. Call with deltas for the
// up/down counters and the current limit for the max gauge.
func (m *OTelMetrics) UpdateDBConnectionStats(ctx context.Context, active, idle, max int) {
	m.dbConnectionsActive.Add(ctx, int64(active))
	m.dbConnectionsIdle.Add(ctx, int64(idle))
	m.dbConnectionsMax.Record(ctx, int64(max))
}

// RecordCacheHit counts a hit for the named cache.
func (m *OTelMetrics) RecordCacheHit(ctx context.Context, cacheType string) {
	m.cacheHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.type", cacheType)))
}

// RecordCacheMiss counts a miss for the named cache.
func (m *OTelMetrics) RecordCacheMiss(ctx context.Context, cacheType string) {
	m.cacheMissesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.type", cacheType)))
}

// RecordCacheEviction counts an eviction for the named cache.
func (m *OTelMetrics) RecordCacheEviction(ctx context.Context, cacheType string) {
	m.cacheEvictionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.type", cacheType)))
}

// UpdateCacheSize adjusts the size gauge by delta bytes.
func (m *OTelMetrics) UpdateCacheSize(ctx context.Context, cacheType string, size int64) {
	m.cacheSize.Add(ctx, size, metric.WithAttributes(attribute.String("cache.type", cacheType)))
}

// RecordWebhookDelivery records the outcome of one provider event
// (applied, duplicate, ignored, rejected).
func (m *OTelMetrics) RecordWebhookDelivery(ctx context.Context, eventType, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("webhook.event_type", eventType),
		attribute.String("webhook.outcome", outcome),
	)

	m.webhookDeliveries.Add(ctx, 1, attrs)
	m.webhookDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStorageOperation records one object store round trip.
func (m *OTelMetrics) RecordStorageOperation(ctx context.Context, operation, storageType string, duration time.Duration, bytes int64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("storage.operation", operation),
		attribute.String("storage.type", storageType),
		attribute.Bool("error", err != nil),
	)

	m.storageOperations.Add(ctx, 1, attrs)
	m.storageDuration.Record(ctx, duration.Seconds(), attrs)
	if bytes > 0 {
		m.storageBytes.Record(ctx, bytes, attrs)
	}
}
