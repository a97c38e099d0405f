// Package api wires the operator-facing HTTP surface.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/perchwatch/server/internal/api/handlers"
	"github.com/perchwatch/server/internal/api/middleware"
	"github.com/perchwatch/server/internal/audit"
	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/metrics"
	"github.com/perchwatch/server/internal/sync"
)

// NewRouter builds the HTTP handler tree: health probes, metrics, and the
// source management API.
func NewRouter(repo sources.Repository, coordinator *sync.Coordinator, pool *pgxpool.Pool, env string, logger zerolog.Logger) http.Handler {
	sourcesHandler := handlers.NewSourcesHandler(repo, coordinator, audit.NewLogger(logger), env)

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/sources", methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(sourcesHandler.List),
		http.MethodPost: http.HandlerFunc(sourcesHandler.Create),
	}))
	mux.Handle("/api/v1/sources/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(sourcesHandler.Get),
	}))
	mux.Handle("/api/v1/sources/{id}/enabled", methodMux(map[string]http.Handler{
		http.MethodPatch: http.HandlerFunc(sourcesHandler.SetEnabled),
	}))
	mux.Handle("/api/v1/sources/{id}/pull", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(sourcesHandler.Pull),
	}))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
