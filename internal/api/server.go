package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postbox/internal/health"
	"postbox/internal/logging"
	"postbox/internal/metrics"
	"postbox/internal/store"
)

// NewRouter assembles the full HTTP surface: mailbox admin, webhook
// ingestion, dashboard queries, retry trigger, health and metrics.
func NewRouter(s store.Store, sched Scheduler, log *logging.Logger, reg *prometheus.Registry, corsOrigins []string) *chi.Mux {
	h := NewHandlers(s, sched, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", APIKeyHeader},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/mailboxes", h.ListMailboxes)
		r.Post("/mailboxes", h.CreateMailbox)
		r.Get("/webhooks", h.ListWebhooks)
		r.Get("/webhooks/{trackingNumber}", h.GetWebhook)
		r.Post("/webhooks/{trackingNumber}/retry", h.RetryWebhook)
	})
	r.Post("/webhooks/{mailboxID}", h.Ingest)

	r.Get("/healthz", health.HTTPHandler(s))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

// requestLogger emits one structured line per handled request.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithContext(r.Context()).WithFields(map[string]any{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"elapsed_ms": time.Since(start).Milliseconds(),
			}).Debug("request handled")
		})
	}
}
