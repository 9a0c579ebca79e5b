package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestInitOTel_Disabled tests that a disabled config yields no providers
func TestInitOTel_Disabled(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)

	assert.NoError(t, err)
	assert.Nil(t, providers)
}

// TestInitOTel_CreatesProviders tests initialization without a collector.
// Exporter creation is lazy, so an unreachable endpoint still succeeds;
// only exports fail later.
func TestInitOTel_CreatesProviders(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	cfg := OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:0",
		ServiceName:    "axle-test",
		ServiceVersion: "0.0.1",
		Insecure:       true,
	}

	providers, err := InitOTel(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)

	// Globals are installed as part of init.
	assert.NotNil(t, otel.GetTextMapPropagator())
	_, span := otel.Tracer("axle-test").Start(context.Background(), "webhook.process")
	assert.True(t, span.IsRecording())
	span.End()

	// Shutdown flushes to a collector that does not exist; the error is
	// expected and irrelevant here.
	_ = ShutdownOTel(context.Background(), providers, logger)
}

// TestInitOTel_TransportModes tests that both secure and insecure configs
// construct exporters
func TestInitOTel_TransportModes(t *testing.T) {
	for _, insecureMode := range []bool{true, false} {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		providers, err := InitOTel(context.Background(), OTelConfig{
			Enabled:        true,
			Endpoint:       "localhost:0",
			ServiceName:    "axle-test",
			ServiceVersion: "0.0.1",
			Insecure:       insecureMode,
		}, logger)

		require.NoError(t, err)
		require.NotNil(t, providers)
		_ = ShutdownOTel(context.Background(), providers, logger)
	}
}

// TestShutdownOTel_NilSafety tests that nil providers and nil members are
// handled without error
func TestShutdownOTel_NilSafety(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
	assert.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{}, logger))
}

// TestUpdateLoggerWithTraceContext_NoSpan tests that the logger passes
// through unchanged without an active span
func TestUpdateLoggerWithTraceContext_NoSpan(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	updated := UpdateLoggerWithTraceContext(context.Background(), logger)

	assert.Same(t, logger, updated)
}

// TestUpdateLoggerWithTraceContext_WithSpan tests that trace and span IDs
// land in the log output
func TestUpdateLoggerWithTraceContext_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("axle-test").Start(context.Background(), "billing.reconcile")
	defer span.End()

	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	updated := UpdateLoggerWithTraceContext(ctx, logger)
	updated.Info("reconciled")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	assert.Equal(t, "reconciled", entry["msg"])
}

// TestUpdateLoggerWithTraceContext_NonRecordingSpan tests that sampled-out
// spans add nothing
func TestUpdateLoggerWithTraceContext_NonRecordingSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("axle-test").Start(context.Background(), "billing.reconcile")
	defer span.End()

	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	updated := UpdateLoggerWithTraceContext(ctx, logger)

	assert.Same(t, logger, updated)
}

// BenchmarkUpdateLoggerWithTraceContext benchmarks the per-request cost of
// attaching trace context
func BenchmarkUpdateLoggerWithTraceContext(b *testing.B) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("axle-bench").Start(context.Background(), "bench")
	defer span.End()

	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = UpdateLoggerWithTraceContext(ctx, logger)
	}
}
