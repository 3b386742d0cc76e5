// Package http assembles the public router: platform middleware, health and
// metrics endpoints, and the authenticated feature handlers.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docket/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// Registrar mounts a feature's endpoints on the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires middleware and feature handlers. Everything under the
// authenticated group requires a valid bearer token; health and metrics stay
// open for probes and scrapers.
func NewRouter(logger *slog.Logger, validator middleware.JWTValidator, features ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Metadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(gr chi.Router) {
		gr.Use(middleware.ContentTypeJSON)
		gr.Use(middleware.RequireAuth(validator, logger))
		for _, feature := range features {
			feature.Register(gr)
		}
	})
	return r
}
