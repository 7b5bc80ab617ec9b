package observability

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// GitTracerName is the tracer of pkg/gitlog, one span per git invocation.
// A full hydration runs git a handful of times, an incremental one once per
// request, so these spans are noise unless verbose tracing is asked for.
const GitTracerName = "codetree/gitlog"

type filteringTracerProvider struct {
	embedded.TracerProvider

	delegate   trace.TracerProvider
	noop       trace.TracerProvider
	suppressed map[string]struct{}
}

// NewFilteringTracerProvider returns delegate with the named tracers
// replaced by no-ops. Without names it suppresses GitTracerName.
func NewFilteringTracerProvider(delegate trace.TracerProvider, names ...string) trace.TracerProvider {
	if len(names) == 0 {
		names = []string{GitTracerName}
	}

	suppressed := make(map[string]struct{}, len(names))
	for _, name := range names {
		suppressed[name] = struct{}{}
	}

	return &filteringTracerProvider{
		delegate:   delegate,
		noop:       nooptrace.NewTracerProvider(),
		suppressed: suppressed,
	}
}

func (f *filteringTracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if _, ok := f.suppressed[name]; ok {
		return f.noop.Tracer(name, opts...)
	}

	return f.delegate.Tracer(name, opts...)
}
