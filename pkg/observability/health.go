package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"

	readyProbeTimeout = 2 * time.Second
)

// ReadyCheck probes one subsystem the service depends on.
type ReadyCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// healthReport is the body of /healthz and /readyz.
type healthReport struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// HealthHandler serves liveness. It always answers 200 and reports the
// running build.
func HealthHandler(version string) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, healthReport{Status: healthStatusOK, Version: version})
	})
}

// ReadyHandler serves readiness. Every check runs; a single failure turns
// the answer into 503 listing the failing checks by name.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		ctx, cancel := context.WithTimeout(hr.Context(), readyProbeTimeout)
		defer cancel()

		report := healthReport{Status: healthStatusOK}

		for _, check := range checks {
			err := check.Probe(ctx)
			if err == nil {
				continue
			}

			if report.Failed == nil {
				report.Failed = map[string]string{}
			}

			report.Failed[check.Name] = err.Error()
		}

		code := http.StatusOK
		if len(report.Failed) > 0 {
			code = http.StatusServiceUnavailable
			report.Status = healthStatusUnavailable
		}

		writeHealth(rw, code, report)
	})
}

func writeHealth(rw http.ResponseWriter, code int, report healthReport) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	_ = json.NewEncoder(rw).Encode(report)
}
