package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute names requests the mux rejected before routing.
const unmatchedRoute = "unmatched"

// recorder remembers the status code written through it.
type recorder struct {
	http.ResponseWriter

	status int
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(buf []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(buf) //nolint:wrapcheck // pass-through writer
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// HTTPMiddleware traces every request of the codetree service and records
// it in red. The span is renamed to the matched mux pattern once the inner
// handler returns, so "POST /v1/analyze" groups all analyze calls whatever
// their query string. A nil red skips metrics.
func HTTPMiddleware(tracer trace.Tracer, red *REDMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		start := time.Now()
		parent := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

		ctx, span := tracer.Start(parent, hr.Method+" "+hr.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(hr.Method),
				attribute.String("http.target", hr.URL.Path),
			),
		)
		defer span.End()

		route := hr.WithContext(ctx)
		rec := &recorder{ResponseWriter: rw}

		done := red.TrackInflight(ctx, hr.Method)
		next.ServeHTTP(rec, route)
		done()

		op := route.Pattern
		if op == "" {
			op = unmatchedRoute
		} else {
			span.SetName(op)
			span.SetAttributes(semconv.HTTPRoute(op))
		}

		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))

		status := statusOK
		if rec.status >= http.StatusInternalServerError {
			status = statusError

			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}

		red.RecordRequest(ctx, op, status, time.Since(start))
	})
}
