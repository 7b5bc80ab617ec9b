package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/codetree/pkg/observability"
)

// acceptanceSpanCount is the expected number of spans in the acceptance test
// (analysis + read + hydrate).
const acceptanceSpanCount = 3

// acceptanceCommitCount is the simulated commit count used in log assertions.
const acceptanceCommitCount = 42

// TestAcceptance_EndToEnd verifies all three observability signals (traces,
// metrics, structured logs with trace context) work together in a single
// simulated pipeline run.
func TestAcceptance_EndToEnd(t *testing.T) {
	t.Parallel()

	// Setup: in-memory trace exporter.
	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	tracer := tp.Tracer("codetree/engine")

	// Setup: in-memory metric reader.
	metricReader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader))
	meter := mp.Meter("codetree")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	analysis, err := observability.NewAnalysisMetrics(meter)
	require.NoError(t, err)

	// Setup: structured logger with trace context.
	var logBuf bytes.Buffer

	innerHandler := slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	tracingHandler := observability.NewTracingHandler(innerHandler, "codetree", "test", observability.ModeCLI)
	logger := slog.New(tracingHandler)

	// Simulate pipeline: root span, child spans, metrics, logs.
	ctx, rootSpan := tracer.Start(observability.WithRunID(context.Background(), "run-42"), "codetree.analysis")

	_, readSpan := tracer.Start(ctx, "codetree.analysis.read")
	readSpan.End()

	_, hydrateSpan := tracer.Start(ctx, "codetree.analysis.hydrate")
	hydrateSpan.End()

	// Record metrics within the trace context.
	red.RecordRequest(ctx, "analyze", "ok", time.Second)

	analysis.RecordRun(ctx, observability.AnalysisStats{
		Outcome:     observability.OutcomeOK,
		Reason:      "open",
		Duration:    2 * time.Second,
		Commits:     acceptanceCommitCount,
		CommitsRead: acceptanceCommitCount,
		FullRead:    true,
		Unresolved:  2,
		Merges:      1,
		Recomputed:  []string{"cache", "tree"},
	})

	// Emit a log line within the trace context.
	logger.InfoContext(ctx, "analysis complete", "commits", acceptanceCommitCount)

	rootSpan.End()

	// Assert: Traces.
	spans := spanExporter.GetSpans()
	require.Len(t, spans, acceptanceSpanCount, "expected root + 2 child spans")

	spanNames := make(map[string]bool, len(spans))
	for _, s := range spans {
		spanNames[s.Name] = true
	}

	assert.True(t, spanNames["codetree.analysis"], "root span should exist")
	assert.True(t, spanNames["codetree.analysis.read"], "read span should exist")
	assert.True(t, spanNames["codetree.analysis.hydrate"], "hydrate span should exist")

	// All spans share the same trace ID.
	traceID := spans[0].SpanContext.TraceID()
	for _, s := range spans[1:] {
		assert.Equal(t, traceID, s.SpanContext.TraceID(),
			"span %q should share trace ID", s.Name)
	}

	// Assert: Metrics.
	var rm metricdata.ResourceMetrics

	err = metricReader.Collect(ctx, &rm)
	require.NoError(t, err)

	for _, name := range []string{
		"codetree.requests.total",
		"codetree.request.duration.seconds",
		"codetree.analysis.runs.total",
		"codetree.analysis.run.duration.seconds",
		"codetree.analysis.commits.total",
		"codetree.analysis.commits.read.total",
		"codetree.analysis.changes.dropped.total",
		"codetree.analysis.items.recomputed.total",
		"codetree.analysis.cache.lookups.total",
	} {
		assert.NotNil(t, findMetric(rm, name), "%s should be recorded", name)
	}

	recomputed := findMetric(rm, "codetree.analysis.items.recomputed.total")
	require.NotNil(t, recomputed)

	sum, ok := recomputed.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2, "one series per recomputed item")

	// Assert: Logs contain trace_id.
	var logRecord map[string]any

	err = json.Unmarshal(logBuf.Bytes(), &logRecord)
	require.NoError(t, err)

	assert.Equal(t, traceID.String(), logRecord["trace_id"],
		"log line should contain the active trace_id")
	assert.Contains(t, logRecord, "span_id",
		"log line should contain span_id")
	assert.Equal(t, "codetree", logRecord["service"],
		"log line should contain service name")
	assert.Equal(t, "run-42", logRecord["run_id"])

	commits, ok := logRecord["commits"].(float64)
	require.True(t, ok, "commits should be a number")
	assert.InDelta(t, acceptanceCommitCount, commits, 0,
		"log line should contain custom attributes")
}
