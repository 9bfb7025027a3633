package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/chunk_transfer/internal/telemetry"
)

// NewRouter assembles the local status server: /status, /history, /healthz
// and /metrics behind request id, logging and telemetry middleware.
func NewRouter(status *StatusHandler, tel *telemetry.Telemetry) http.Handler {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", HandleHealth)
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", status.Routes())

	return r
}
