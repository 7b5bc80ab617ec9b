package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	runsTotal    = instrument{"codetree.analysis.runs.total", "Hydration runs by outcome and reason", "{run}"}
	runDuration  = instrument{"codetree.analysis.run.duration.seconds", "Hydration run duration in seconds", "s"}
	commitsWalk  = instrument{"codetree.analysis.commits.total", "Commits walked by the aggregator", "{commit}"}
	commitsRead  = instrument{"codetree.analysis.commits.read.total", "Commits parsed from git log output", "{commit}"}
	dropped      = instrument{"codetree.analysis.changes.dropped.total", "File changes dropped, by kind", "{change}"}
	recomputed   = instrument{"codetree.analysis.items.recomputed.total", "Derived data items recomputed", "{item}"}
	cacheLookups = instrument{"codetree.analysis.cache.lookups.total", "Cache entry lookups by result", "{lookup}"}
)

const (
	attrOutcome = "outcome"
	attrReason  = "reason"
	attrRead    = "read"
	attrKind    = "kind"
	attrItem    = "item"
	attrResult  = "result"
)

// Run outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// AnalysisMetrics holds OTel instruments for hydration runs.
type AnalysisMetrics struct {
	runsTotal   metric.Int64Counter
	runDuration metric.Float64Histogram
	commits     metric.Int64Counter
	commitsRead metric.Int64Counter
	dropped     metric.Int64Counter
	recomputed  metric.Int64Counter
	cacheLookup metric.Int64Counter
}

// AnalysisStats holds the statistics of one run, decoupled from engine types.
type AnalysisStats struct {
	Outcome  string
	Reason   string
	Duration time.Duration
	// Commits is the number of commits walked by the aggregator.
	Commits int64
	// CommitsRead is the number of commits parsed from git during the run.
	CommitsRead int64
	FullRead    bool
	CacheHit    bool
	Unresolved  int64
	MissingBlob int64
	Merges      int64
	Recomputed  []string
}

// NewAnalysisMetrics creates analysis metric instruments from the given meter.
func NewAnalysisMetrics(mt metric.Meter) (*AnalysisMetrics, error) {
	b := newMetricBuilder(mt)

	am := &AnalysisMetrics{
		runsTotal:   b.counter(runsTotal),
		runDuration: b.durationHistogram(runDuration),
		commits:     b.counter(commitsWalk),
		commitsRead: b.counter(commitsRead),
		dropped:     b.counter(dropped),
		recomputed:  b.counter(recomputed),
		cacheLookup: b.counter(cacheLookups),
	}

	if b.err != nil {
		return nil, b.err
	}

	return am, nil
}

// RecordRun records the statistics of a finished run.
// Safe to call on a nil receiver (no-op).
func (am *AnalysisMetrics) RecordRun(ctx context.Context, stats AnalysisStats) {
	if am == nil {
		return
	}

	runAttrs := metric.WithAttributes(
		attribute.String(attrOutcome, stats.Outcome),
		attribute.String(attrReason, stats.Reason),
	)
	am.runsTotal.Add(ctx, 1, runAttrs)
	am.runDuration.Record(ctx, stats.Duration.Seconds(), runAttrs)

	am.commits.Add(ctx, stats.Commits)

	read := "incremental"
	if stats.FullRead {
		read = "full"
	}

	am.commitsRead.Add(ctx, stats.CommitsRead, metric.WithAttributes(attribute.String(attrRead, read)))

	am.dropped.Add(ctx, stats.Unresolved, metric.WithAttributes(attribute.String(attrKind, "unresolved_rename")))
	am.dropped.Add(ctx, stats.MissingBlob, metric.WithAttributes(attribute.String(attrKind, "missing_blob")))
	am.dropped.Add(ctx, stats.Merges, metric.WithAttributes(attribute.String(attrKind, "merge_first_parent")))

	for _, item := range stats.Recomputed {
		am.recomputed.Add(ctx, 1, metric.WithAttributes(attribute.String(attrItem, item)))
	}

	result := "miss"
	if stats.CacheHit {
		result = "hit"
	}

	am.cacheLookup.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
