// Package engine runs history hydration for repository and branch pairs,
// reusing cached results as far as the invalidation policy allows.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/gitlog"
	"github.com/Sumatoshi-tech/codetree/pkg/observability"
	"github.com/Sumatoshi-tech/codetree/pkg/progress"
)

// tracerName is the OTel tracer name for the engine package.
const tracerName = "codetree/engine"

// Sentinel errors.
var (
	// ErrSuperseded is returned by a run whose results were discarded because
	// a forced refresh was requested for the same pair while it was running.
	ErrSuperseded = errors.New("analysis superseded by a newer refresh")
	// ErrAborted wraps the cancellation cause of an aborted run.
	ErrAborted = errors.New("analysis aborted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
	// ErrInvalidRequest is returned for requests missing a repository.
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// ProviderFactory opens the history provider of a repository.
type ProviderFactory func(repository string) (gitlog.Provider, error)

// GitProviderFactory opens repositories with go-git and reads logs with the
// given git executable.
func GitProviderFactory(gitBinary string) ProviderFactory {
	return func(repository string) (gitlog.Provider, error) {
		repo, err := gitlog.OpenRepository(repository, gitBinary)
		if err != nil {
			return nil, err
		}

		return repo, nil
	}
}

// Engine owns one Analyzer per (repository, branch) pair.
type Engine struct {
	store   cache.Store
	open    ProviderFactory
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.AnalysisMetrics
	red     *observability.REDMetrics

	mu        sync.Mutex
	analyzers map[cache.Key]*Analyzer
	closed    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer sets the tracer used for run spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithMetrics records run statistics and request RED metrics.
func WithMetrics(metrics *observability.AnalysisMetrics, red *observability.REDMetrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
		e.red = red
	}
}

// WithProviderFactory replaces the default go-git/git CLI provider.
func WithProviderFactory(open ProviderFactory) Option {
	return func(e *Engine) { e.open = open }
}

// New creates an engine storing results in store.
func New(store cache.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		open:      GitProviderFactory(gitlog.DefaultGitBinary),
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		analyzers: map[cache.Key]*Analyzer{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Analyzer returns the analyzer of key, creating it on first use. Later
// calls for the same key return the same instance.
func (e *Engine) Analyzer(key cache.Key) (*Analyzer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	if a, ok := e.analyzers[key]; ok {
		return a, nil
	}

	provider, err := e.open(key.Repository)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key.Repository, err)
	}

	a := newAnalyzer(e, key, provider)
	e.analyzers[key] = a

	return a, nil
}

// Analyze runs (or joins) the analysis described by req and waits for its result.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	done := e.red.TrackInflight(ctx, "analyze")
	defer done()

	var (
		result *Result
		err    error
	)

	start := time.Now()

	defer func() {
		e.red.RecordRequest(ctx, "analyze", observability.RequestStatus(err), time.Since(start))
	}()

	req, err = req.Normalize()
	if err != nil {
		return nil, err
	}

	a, err := e.Analyzer(req.Key())
	if err != nil {
		return nil, err
	}

	result, err = a.Analyze(ctx, req)

	return result, err
}

// Start launches the analysis in the background and returns immediately.
// Progress is observable through Progress; the outcome through the returned
// channel, which receives exactly one value.
func (e *Engine) Start(req Request) (<-chan Outcome, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	a, err := e.Analyzer(req.Key())
	if err != nil {
		return nil, err
	}

	out := make(chan Outcome, 1)

	go func() {
		result, runErr := a.Analyze(context.Background(), req)
		out <- Outcome{Result: result, Err: runErr}
	}()

	return out, nil
}

// Outcome is the result of a background run.
type Outcome struct {
	Result *Result
	Err    error
}

// Progress returns the progress of the latest run of key.
func (e *Engine) Progress(key cache.Key) (progress.Snapshot, bool) {
	e.mu.Lock()
	a, ok := e.analyzers[key]
	e.mu.Unlock()

	if !ok {
		return progress.Snapshot{}, false
	}

	return a.Progress(), true
}

// Clear drops the cached entry of key. A running analysis of key is
// superseded first so it cannot write the entry back.
func (e *Engine) Clear(ctx context.Context, key cache.Key) error {
	e.mu.Lock()
	a, ok := e.analyzers[key]
	e.mu.Unlock()

	if ok {
		a.supersede()
	}

	err := e.store.Clear(ctx, key)
	if err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}

	return nil
}

// Close cancels every running analysis. The store is not closed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	for _, a := range e.analyzers {
		a.supersede()
	}
}
