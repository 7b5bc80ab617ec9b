// Package commands implements CLI command handlers for codetree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/config"
	"github.com/Sumatoshi-tech/codetree/pkg/engine"
	"github.com/Sumatoshi-tech/codetree/pkg/observability"
	"github.com/Sumatoshi-tech/codetree/pkg/version"
)

const (
	flagConfig  = "config"
	flagVerbose = "verbose"
	flagQuiet   = "quiet"
)

// Environment variables honoured on top of the config file.
const (
	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
)

// AddGlobalFlags registers the persistent flags shared by every command.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().String(flagConfig, "", "config file (default .codetree.yaml in . or $HOME)")
	root.PersistentFlags().BoolP(flagVerbose, "v", false, "verbose output")
	root.PersistentFlags().BoolP(flagQuiet, "q", false, "suppress progress and info logs")
}

type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
}

func readGlobalFlags(cmd *cobra.Command) globalFlags {
	configPath, _ := cmd.Flags().GetString(flagConfig)
	verbose, _ := cmd.Flags().GetBool(flagVerbose)
	quiet, _ := cmd.Flags().GetBool(flagQuiet)

	return globalFlags{configPath: configPath, verbose: verbose, quiet: quiet}
}

// app bundles what every command needs to talk to the engine.
type app struct {
	cfg         *config.Config
	providers   observability.Providers
	store       cache.Store
	engine      *engine.Engine
	red         *observability.REDMetrics
	logger      *slog.Logger
	metricsAddr string
}

type appOptions struct {
	mode observability.AppMode
	// prometheus attaches the pull exporter.
	prometheus bool
	// metricsAddr overrides observability.metrics_addr; a non-empty result
	// also attaches the pull exporter.
	metricsAddr string
}

func newApp(flags globalFlags, opts appOptions) (*app, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	if opts.metricsAddr == "" {
		opts.metricsAddr = cfg.Observability.MetricsAddr
	}

	opts.prometheus = opts.prometheus || opts.metricsAddr != ""

	obsCfg, err := observabilityConfig(cfg, flags, opts)
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	storeOpts, err := cfg.Cache.StoreOptions()
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	store, err := cache.Open(storeOpts)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open cache: %w", err), providers.Shutdown(context.Background()))
	}

	if mem, ok := store.(*cache.MemoryStore); ok {
		err = observability.RegisterCacheMetrics(providers.Meter, cache.BackendMemory, mem)
		if err != nil {
			providers.Logger.Warn("cache metrics unavailable", "error", err)
		}
	}

	analysisMetrics, err := observability.NewAnalysisMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, store.Close(), providers.Shutdown(context.Background()))
	}

	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, store.Close(), providers.Shutdown(context.Background()))
	}

	eng := engine.New(store,
		engine.WithLogger(providers.Logger),
		engine.WithTracer(providers.Tracer),
		engine.WithMetrics(analysisMetrics, red),
		engine.WithProviderFactory(engine.GitProviderFactory(cfg.Analysis.GitBinary)),
	)

	return &app{
		cfg:         cfg,
		providers:   providers,
		store:       store,
		engine:      eng,
		red:         red,
		metricsAddr: opts.metricsAddr,
		logger:      providers.Logger,
	}, nil
}

func observabilityConfig(cfg *config.Config, flags globalFlags, opts appOptions) (observability.Config, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.Mode = opts.mode
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = cfg.Observability.OTLPHeaders
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.DebugTrace = cfg.Observability.DebugTrace
	obsCfg.Prometheus = opts.prometheus
	obsCfg.LogJSON = cfg.Logging.JSON()

	if obsCfg.OTLPEndpoint == "" {
		obsCfg.OTLPEndpoint = os.Getenv(envOTLPEndpoint)
	}

	if len(obsCfg.OTLPHeaders) == 0 {
		obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv(envOTLPHeaders))
	}

	level, err := observability.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return obsCfg, err
	}

	obsCfg.LogLevel = level

	switch {
	case flags.verbose:
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.TraceVerbose = true
	case flags.quiet:
		obsCfg.LogLevel = slog.LevelWarn
	}

	return obsCfg, nil
}

// Close stops running analyses and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	a.engine.Close()

	return errors.Join(a.store.Close(), a.providers.Shutdown(ctx))
}

// cacheCheck is the readiness probe of the configured cache store.
func cacheCheck(store cache.Store) observability.ReadyCheck {
	return observability.ReadyCheck{
		Name:  "cache",
		Probe: func(ctx context.Context) error { return cache.Ping(ctx, store) },
	}
}
