package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/observability"
	"github.com/Sumatoshi-tech/codetree/pkg/progress"
	"github.com/Sumatoshi-tech/codetree/pkg/refresh"
)

// Analyzer runs analyses of one (repository, branch) pair. At most one run
// executes at a time; identical requests arriving while a run is in flight
// join it instead of starting another walk.
type Analyzer struct {
	key      cache.Key
	engine   *Engine
	provider gitlog.Provider

	flight singleflight.Group
	runMu  sync.Mutex

	mu         sync.Mutex
	generation uint64
	cancelRun  context.CancelFunc

	reporter atomic.Pointer[progress.Reporter]
}

func newAnalyzer(e *Engine, key cache.Key, provider gitlog.Provider) *Analyzer {
	a := &Analyzer{key: key, engine: e, provider: provider}
	a.reporter.Store(progress.New())

	return a
}

// Key returns the pair analyzed.
func (a *Analyzer) Key() cache.Key {
	return a.key
}

// Progress returns the progress of the latest run.
func (a *Analyzer) Progress() progress.Snapshot {
	return a.reporter.Load().Snapshot()
}

// Analyze runs req or joins an identical run in flight. A forced refresh
// supersedes the current run: its results are discarded and its callers
// receive the result of the refresh instead. ctx only bounds the wait; the
// run itself continues for other callers.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.Reason == refresh.ReasonRefresh {
		a.supersede()
	}

	detached := context.WithoutCancel(ctx)

	for {
		gen := a.currentGeneration()
		flightKey := strconv.FormatUint(gen, 10) + "|" + req.fingerprint()

		ch := a.flight.DoChan(flightKey, func() (any, error) {
			return a.run(detached, gen, req)
		})

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
		case res := <-ch:
			if errors.Is(res.Err, ErrSuperseded) && a.currentGeneration() != gen {
				continue
			}

			if res.Err != nil {
				return nil, res.Err
			}

			result, _ := res.Val.(*Result)

			return result, nil
		}
	}
}

func (a *Analyzer) currentGeneration() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.generation
}

// supersede invalidates the running generation and cancels its walk.
func (a *Analyzer) supersede() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.generation++

	if a.cancelRun != nil {
		a.cancelRun()
		a.cancelRun = nil
	}
}

func (a *Analyzer) run(parent context.Context, gen uint64, req Request) (*Result, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a.mu.Lock()
	if a.generation != gen {
		a.mu.Unlock()

		return nil, ErrSuperseded
	}

	a.cancelRun = cancel
	a.mu.Unlock()

	runID := uuid.NewString()
	reporter := progress.New()
	a.reporter.Store(reporter)

	logger := a.engine.logger.With(
		"repository", a.key.Repository,
		"branch", a.key.Branch,
		"reason", string(req.Reason),
	)

	ctx = observability.WithRunID(ctx, runID)

	ctx, span := a.engine.tracer.Start(ctx, "codetree.analysis",
		trace.WithAttributes(
			attribute.String("analysis.repository", a.key.Repository),
			attribute.String("analysis.branch", a.key.Branch),
			attribute.String("analysis.reason", string(req.Reason)),
			attribute.String("analysis.run_id", runID),
		))
	defer span.End()

	start := time.Now()
	p := &pass{
		analyzer: a,
		req:      req,
		runID:    runID,
		reporter: reporter,
		logger:   logger,
		stats:    observability.AnalysisStats{Reason: string(req.Reason)},
	}

	result, entry, err := p.execute(ctx)
	if err == nil {
		err = a.commit(ctx, gen, entry, logger)
	}

	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrSuperseded) {
		err = fmt.Errorf("%w: %w", ErrSuperseded, err)
	}

	p.stats.Duration = time.Since(start)

	switch {
	case err == nil:
		p.stats.Outcome = observability.OutcomeOK

		reporter.Advance(progress.StatusDone)
		logger.InfoContext(ctx, "analysis finished",
			"commits", result.Commits,
			"new_commits", result.NewCommits,
			"recomputed", len(result.Recomputed),
			"duration", p.stats.Duration)
	case errors.Is(err, ErrSuperseded):
		p.stats.Outcome = observability.OutcomeSuperseded

		reporter.Fail()
		logger.InfoContext(ctx, "analysis superseded, results discarded")
	default:
		p.stats.Outcome = observability.OutcomeError

		reporter.Fail()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "analysis failed, previous cache entry kept", "error", err)
	}

	span.SetAttributes(
		attribute.String("analysis.outcome", p.stats.Outcome),
		attribute.Int64("analysis.commits", p.stats.Commits),
		attribute.Int64("analysis.commits_read", p.stats.CommitsRead),
		attribute.Bool("analysis.full_read", p.stats.FullRead),
	)
	a.engine.metrics.RecordRun(ctx, p.stats)

	if err != nil {
		return nil, err
	}

	return result, nil
}

// commit stores entry unless the run was superseded meanwhile. The
// generation check and the write happen under one lock so that Clear cannot
// interleave with them.
func (a *Analyzer) commit(ctx context.Context, gen uint64, entry *cache.Entry, logger *slog.Logger) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generation != gen {
		return ErrSuperseded
	}

	a.cancelRun = nil

	if entry == nil {
		return nil
	}

	err := a.engine.store.Set(ctx, entry)
	if err != nil {
		logger.WarnContext(ctx, "result not cached", "error", err)
	}

	return nil
}
