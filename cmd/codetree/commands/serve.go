package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/codetree/pkg/cache"
	"github.com/Sumatoshi-tech/codetree/pkg/config"
	"github.com/Sumatoshi-tech/codetree/pkg/engine"
	"github.com/Sumatoshi-tech/codetree/pkg/filetree"
	"github.com/Sumatoshi-tech/codetree/pkg/observability"
	"github.com/Sumatoshi-tech/codetree/pkg/refresh"
	"github.com/Sumatoshi-tech/codetree/pkg/version"
)

const (
	paramRepository = "repository"
	paramBranch     = "branch"
	paramAsync      = "async"
	maxBodyBytes    = 1 << 20
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis engine behind an HTTP API",
		Long: `Serve the analysis engine over HTTP.

  POST   /v1/analyze   run (or join) an analysis; ?async=true returns at once
  GET    /v1/progress  progress of the latest run of ?repository=&branch=
  DELETE /v1/cache     drop the cached entry of ?repository=&branch=
  GET    /healthz /readyz /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	a, err := newApp(readGlobalFlags(cmd), appOptions{mode: observability.ModeServe, prometheus: true})
	if err != nil {
		return err
	}

	defer func() {
		closeErr := a.Close(context.Background())
		if closeErr != nil {
			a.logger.Warn("shutdown failed", "error", closeErr)
		}
	}()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := newServerHandler(serverDeps{
		engine:   a.engine,
		store:    a.store,
		metrics:  a.providers.MetricsHandler,
		tracer:   a.providers.Tracer,
		red:      a.red,
		logger:   a.logger,
		analysis: a.cfg.Analysis,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)

	go func() {
		a.logger.Info("serving", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err = <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

type serverDeps struct {
	engine   *engine.Engine
	store    cache.Store
	metrics  http.Handler
	tracer   trace.Tracer
	red      *observability.REDMetrics
	logger   *slog.Logger
	analysis config.AnalysisConfig
}

// analyzeBody is the JSON body of POST /v1/analyze. Omitted fields fall back
// to the analysis section of the config.
type analyzeBody struct {
	Repository   string     `json:"repository"`
	Branch       string     `json:"branch,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Hidden       []string   `json:"hidden,omitempty"`
	HideVendored *bool      `json:"hideVendored,omitempty"`
	Aliases      [][]string `json:"aliases,omitempty"`
	Since        string     `json:"since,omitempty"`
	Until        string     `json:"until,omitempty"`
}

type accepted struct {
	Key cache.Key `json:"key"`
}

type apiError struct {
	Error string `json:"error"`
}

func newServerHandler(deps serverDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/analyze", deps.handleAnalyze)
	mux.HandleFunc("GET /v1/progress", deps.handleProgress)
	mux.HandleFunc("DELETE /v1/cache", deps.handleClear)
	mux.Handle("GET /healthz", observability.HealthHandler(version.String()))
	mux.Handle("GET /readyz", observability.ReadyHandler(cacheCheck(deps.store)))

	if deps.metrics != nil {
		mux.Handle("GET /metrics", deps.metrics)
	}

	return observability.HTTPMiddleware(deps.tracer, deps.red, mux)
}

func (d serverDeps) handleAnalyze(rw http.ResponseWriter, hr *http.Request) {
	var body analyzeBody

	dec := json.NewDecoder(http.MaxBytesReader(rw, hr.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(&body)
	if err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))

		return
	}

	req, err := d.request(body)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)

		return
	}

	async, _ := strconv.ParseBool(hr.URL.Query().Get(paramAsync))
	if async {
		_, err = d.engine.Start(req)
		if err != nil {
			writeError(rw, statusFor(err), err)

			return
		}

		writeJSON(rw, http.StatusAccepted, accepted{Key: req.Key()})

		return
	}

	result, err := d.engine.Analyze(hr.Context(), req)
	if err != nil {
		d.logger.WarnContext(hr.Context(), "analysis failed", "key", req.Key().String(), "error", err)
		writeError(rw, statusFor(err), err)

		return
	}

	writeJSON(rw, http.StatusOK, result)
}

func (d serverDeps) request(body analyzeBody) (engine.Request, error) {
	analysis := d.analysis

	if body.Since != "" {
		analysis.Since = body.Since
	}

	if body.Until != "" {
		analysis.Until = body.Until
	}

	window, err := analysis.Window()
	if err != nil {
		return engine.Request{}, fmt.Errorf("%w: %w", engine.ErrInvalidRequest, err)
	}

	hidden := filetree.HiddenFilter{Patterns: analysis.Hidden, HideVendored: analysis.HideVendored}
	if body.Hidden != nil {
		hidden.Patterns = body.Hidden
	}

	if body.HideVendored != nil {
		hidden.HideVendored = *body.HideVendored
	}

	aliases := body.Aliases
	if aliases == nil {
		aliases = analysis.AliasGroups
	}

	branch := body.Branch
	if branch == "" {
		branch = analysis.Branch
	}

	reason := body.Reason
	if reason == "" {
		reason = string(refresh.ReasonOpen)
	}

	return engine.Request{
		Repository: body.Repository,
		Branch:     branch,
		Reason:     refresh.InvocationReason(reason),
		Hidden:     hidden,
		Aliases:    aliases,
		Window:     window,
	}.Normalize()
}

func (d serverDeps) keyFromQuery(hr *http.Request) (cache.Key, error) {
	branch := hr.URL.Query().Get(paramBranch)
	if branch == "" {
		branch = d.analysis.Branch
	}

	req, err := engine.Request{Repository: hr.URL.Query().Get(paramRepository), Branch: branch}.Normalize()
	if err != nil {
		return cache.Key{}, err
	}

	return req.Key(), nil
}

func (d serverDeps) handleProgress(rw http.ResponseWriter, hr *http.Request) {
	key, err := d.keyFromQuery(hr)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)

		return
	}

	snapshot, ok := d.engine.Progress(key)
	if !ok {
		writeError(rw, http.StatusNotFound, fmt.Errorf("no analysis of %s", key))

		return
	}

	writeJSON(rw, http.StatusOK, snapshot)
}

func (d serverDeps) handleClear(rw http.ResponseWriter, hr *http.Request) {
	key, err := d.keyFromQuery(hr)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err)

		return
	}

	err = d.engine.Clear(hr.Context(), key)
	if err != nil {
		writeError(rw, statusFor(err), err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, engine.ErrClosed), errors.Is(err, engine.ErrAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, apiError{Error: err.Error()})
}
