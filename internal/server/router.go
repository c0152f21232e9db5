package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notra/internal/logging"
)

// RouterDeps carries the handlers and cross-cutting pieces the router wires
// together.
type RouterDeps struct {
	Triggers  *TriggerHandler
	Workflows *WorkflowHandler
	Registry  *prometheus.Registry
	Logger    logging.Logger
}

// NewRouter creates the HTTP router with all endpoints.
func NewRouter(deps RouterDeps) http.Handler {
	logger := logging.OrNop(deps.Logger)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/triggers", deps.Triggers.HandleCreate)
	mux.HandleFunc("PUT /api/triggers/{id}", deps.Triggers.HandleUpdate)
	mux.HandleFunc("DELETE /api/triggers/{id}", deps.Triggers.HandleDelete)

	mux.HandleFunc("POST /api/workflows/run", deps.Workflows.HandleScheduleCallback)
	mux.HandleFunc("POST /api/workflows/run-now", deps.Workflows.HandleRunNow)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return loggingMiddleware(logger)(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
		})
	}
}
