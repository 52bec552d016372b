package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// RegisterOperationalRoutes mounts /health and /metrics. /health answers 503 with the
// names of the failing checks when any check fails.
func RegisterOperationalRoutes(r chi.Router, checks map[string]HealthCheck) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		failing := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failing[name] = err.Error()
			}
		}

		if len(failing) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
			return
		}

		names := make([]string, 0, len(failing))
		for name := range failing {
			names = append(names, name)
		}
		sort.Strings(names)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "unavailable",
			"failing": names,
			"errors":  failing,
		})
	})

	r.Handle("/metrics", promhttp.Handler())
}
