package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kondee/pocsdcard/internal/telemetry"
)

// NewRouter wires the file routes behind the request id, logging and
// telemetry middleware. /healthz and /metrics stay outside basic auth.
func NewRouter(h *FileHandler, tel *telemetry.Telemetry) http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", tel.Handler())

	r.Mount("/", h.Routes())

	return r
}
