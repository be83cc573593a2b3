// Package readapi implements C8: the uniform read endpoints consumed by
// dashboards and partners, serving everything out of C2's store (and C3's
// registry for sensor metadata).
package readapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/registry"
	"github.com/munbon/telemetry-core/internal/pkg/store"
)

// Authenticator is the narrow surface C9 exposes to this package: a chi
// middleware enforcing the X-API-Key scheme. Kept as an interface so
// readapi does not import presentation/apikey directly.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// API wires every read endpoint onto a chi router.
type API struct {
	store store.Store
	reg   *registry.Registry
	auth  Authenticator
	log   zerolog.Logger
}

func New(s store.Store, reg *registry.Registry, auth Authenticator, log zerolog.Logger) *API {
	return &API{store: s, reg: reg, auth: auth, log: log}
}

// Routes mounts the "/api/v1" group from spec §6 onto r. /health stays
// outside authentication, matching spec's explicit exemption.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", a.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.auth.Middleware)

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", a.listSensors)
			r.Get("/nearby", a.nearbySensors)
			r.Get("/{id}", a.getSensor)
			r.Get("/{id}/latest", a.latestReading)
			r.Get("/{id}/readings", a.seriesReadings)
			r.Get("/{id}/statistics", a.statistics)
		})

		for _, family := range []string{"water-levels", "moisture", "weather"} {
			family := family
			r.Route("/"+family, func(r chi.Router) {
				r.Get("/", a.familySeries(family))
				r.Get("/aggregated", a.familyAggregated(family))
				r.Get("/alerts", a.familyAlerts(family))
				r.Get("/comparison", a.familyComparison(family))
			})
		}

		r.Route("/public", func(r chi.Router) {
			for _, family := range []string{"water-levels", "moisture", "weather"} {
				family := family
				r.Route("/"+family, func(r chi.Router) {
					r.Get("/latest", a.publicLatest(family))
					r.Get("/timeseries", a.publicTimeseries(family))
					r.Get("/statistics", a.publicStatistics(family))
				})
			}
		})

		r.Route("/external/rid-ms", func(r chi.Router) {
			r.Get("/sensors", a.externalSensors)
			r.Get("/readings", a.externalReadings)
			r.Get("/spatial", a.externalSpatial)
		})
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": "munbon-telemetry-core-readapi"})
}
