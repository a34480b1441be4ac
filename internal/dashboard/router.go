package dashboard

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HealthInfo is reported by /health
type HealthInfo struct {
	Mode       string `json:"mode"`
	WorkerID   string `json:"worker_id"`
	InstanceID string `json:"instance_id"`
	Version    string `json:"version"`
	Store      string `json:"store"`
}

// NewRouter mounts health, metrics and the dashboard behind tracing
func NewRouter(h *Handler, gatherer prometheus.Gatherer, info HealthInfo) http.Handler {
	started := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"info":   info,
			"uptime": time.Since(started).Round(time.Second).String(),
		})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if h != nil {
		h.RegisterRoutes(r)
	}

	return otelhttp.NewHandler(r, "taskrelay-http")
}
