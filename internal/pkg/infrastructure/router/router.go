// Package router builds the chi.Mux shared by every HTTP-facing binary
// (edge intake, cloud relay, ingest consumer, read API): CORS,
// request-id/recovery, and OTel tracing
// wired the same way regardless of which component mounts its routes.
package router

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/rs/cors"
)

// New returns a router with the ambient middleware stack every telemetry-core
// HTTP component needs before it mounts its own routes. serviceName becomes
// both the otelchi tracer name and the value callers should use for their
// OTel resource attribute.
func New(serviceName string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))

	return r
}
