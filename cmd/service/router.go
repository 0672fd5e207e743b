package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"musico/internal/httpx"
	"musico/internal/queue"
	"musico/internal/realtime"
)

// newRouter mounts the REST queue API and the relay. The request timeout is
// applied to REST routes only; websocket connections are long lived.
func newRouter(queues *queue.Handler, relay *realtime.Server, requestTimeout time.Duration, maxBodyBytes int64) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		httpx.BodyLimit(maxBodyBytes),
	)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		queues.Routes(r)
	})
	relay.Routes(r)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "musico",
	})
}
