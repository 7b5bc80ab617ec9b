package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/codetree/pkg/observability"
)

func TestInit_CLIDefaultsAreNoop(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.Logger)
	assert.Nil(t, providers.MetricsHandler)

	_, span := providers.Tracer.Start(context.Background(), "codetree.analysis")
	assert.False(t, span.SpanContext().IsValid(), "no exporter, no recorded span")
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))
	require.NoError(t, providers.Shutdown(context.Background()), "shutdown is repeatable")
}

func TestInit_ServeModeLogsWithServiceMetadata(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "staging"
	cfg.Mode = observability.ModeServe
	cfg.LogJSON = true

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	_, ok := providers.Logger.Handler().(*observability.TracingHandler)
	assert.True(t, ok, "logger goes through the tracing handler")
}

func TestBuildResource(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "staging"
	cfg.Mode = observability.ModeServe

	res, err := observability.ProbeBuildResource(cfg)
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	assert.Equal(t, "codetree", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "staging", attrs["deployment.environment"])
	assert.Equal(t, "serve", attrs["app.mode"])
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", nil},
		{"single", "x-honeycomb-team=abc", map[string]string{"x-honeycomb-team": "abc"}},
		{"multiple", "k1=v1,k2=v2", map[string]string{"k1": "v1", "k2": "v2"}},
		{"spaces", " k1 = v1 , k2 = v2 ", map[string]string{"k1": "v1", "k2": "v2"}},
		{"no equals", "invalid", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, observability.ParseOTLPHeaders(tt.input))
		})
	}
}

// The sampler cases mutate OTEL_TRACES_SAMPLER and cannot run in parallel.
func TestSelectSampler(t *testing.T) {
	tests := []struct {
		name    string
		sampler string
		arg     string
		debug   bool
		ratio   float64
		sampled bool
	}{
		{name: "default samples roots", sampled: true},
		{name: "config ratio", ratio: 1.0, sampled: true},
		{name: "always_on", sampler: "always_on", sampled: true},
		{name: "always_off", sampler: "always_off", sampled: false},
		{name: "traceidratio", sampler: "traceidratio", arg: "1.0", sampled: true},
		{name: "traceidratio zero", sampler: "traceidratio", arg: "0", sampled: false},
		{name: "parentbased_always_on", sampler: "parentbased_always_on", sampled: true},
		{name: "parentbased_always_off drops roots", sampler: "parentbased_always_off", sampled: false},
		{name: "unknown falls back", sampler: "sometimes", sampled: true},
		{name: "debug overrides env", sampler: "always_off", debug: true, sampled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_TRACES_SAMPLER", tt.sampler)
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.arg)

			cfg := observability.DefaultConfig()
			cfg.DebugTrace = tt.debug
			cfg.SampleRatio = tt.ratio

			assert.Equal(t, tt.sampled, observability.ProbeSamplerSpan(cfg))
		})
	}
}

func TestNewFilteringTracerProvider_KeepsNoopNoop(t *testing.T) {
	t.Parallel()

	tp := observability.NewFilteringTracerProvider(nooptrace.NewTracerProvider())

	_, span := tp.Tracer("codetree/engine").Start(context.Background(), "codetree.analysis")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
