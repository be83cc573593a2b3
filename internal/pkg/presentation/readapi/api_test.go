package readapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/registry"
	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/munbon/telemetry-core/pkg/types"
)

type allowAllAuth struct{}

func (allowAllAuth) Middleware(next http.Handler) http.Handler { return next }

func newTestAPI(t *testing.T) (*API, store.Store) {
	t.Helper()
	s, err := store.New(store.NewSQLiteConnector(zerolog.Nop()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reg, err := registry.New(s)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return New(s, reg, allowAllAuth{}, zerolog.Nop()), s
}

func newTestRouter(a *API) *chi.Mux {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}

func seedWaterLevelSensor(t *testing.T, s store.Store, reg *registry.Registry, id types.SensorID, loc types.LatLng) {
	t.Helper()
	_, err := reg.Observe(context.Background(), store.SensorFacts{
		ID:       id,
		Family:   types.FamilyWaterLevel,
		Location: &loc,
	}, time.Now())
	if err != nil {
		t.Fatalf("observe sensor: %v", err)
	}
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	is := is.New(t)
	a, _ := newTestAPI(t)
	r := newTestRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)
}

func TestListSensorsReturnsPaginationEnvelope(t *testing.T) {
	is := is.New(t)
	a, s := newTestAPI(t)
	reg, err := registry.New(s)
	is.NoErr(err)
	seedWaterLevelSensor(t, s, reg, "WL-AAAAAAAAAAAA", types.LatLng{Latitude: 13.7, Longitude: 100.5})

	r := newTestRouter(a)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)

	var body envelope
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &body))
	is.Equal(body.Pagination.Page, 1)
	is.Equal(body.Pagination.Limit, defaultLimit)
}

func TestGetSensorNotFoundMapsTo404(t *testing.T) {
	is := is.New(t)
	a, _ := newTestAPI(t)
	r := newTestRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/WL-MISSING", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusNotFound)
}

func TestLatestReadingRoundTrips(t *testing.T) {
	is := is.New(t)
	a, s := newTestAPI(t)
	reg, err := registry.New(s)
	is.NoErr(err)
	id := types.SensorID("WL-BBBBBBBBBBBB")
	seedWaterLevelSensor(t, s, reg, id, types.LatLng{Latitude: 13.7, Longitude: 100.5})

	now := time.Now().UTC()
	is.NoErr(s.WriteWaterLevel(context.Background(), types.WaterLevelReading{
		Reading: types.Reading{Time: now, SensorID: id, Quality: 1},
		LevelCM: 12.5,
	}))

	r := newTestRouter(a)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/"+string(id)+"/latest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)

	var reading types.WaterLevelReading
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &reading))
	is.Equal(reading.LevelCM, 12.5)
}

func TestNearbySensorsFiltersByRadius(t *testing.T) {
	is := is.New(t)
	a, s := newTestAPI(t)
	reg, err := registry.New(s)
	is.NoErr(err)
	seedWaterLevelSensor(t, s, reg, "WL-NEAR00000001", types.LatLng{Latitude: 13.70, Longitude: 100.50})
	seedWaterLevelSensor(t, s, reg, "WL-FAR000000001", types.LatLng{Latitude: 20.00, Longitude: 100.50})

	r := newTestRouter(a)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/nearby?lat=13.70&lng=100.50&radius=5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)

	var body envelope
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &body))
	is.Equal(body.Pagination.Total, 1)
}

func TestPublicTimeseriesRequiresDateParam(t *testing.T) {
	is := is.New(t)
	a, _ := newTestAPI(t)
	r := newTestRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/water-levels/timeseries?sensorId=WL-X", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusBadRequest)
}

func TestPublicTimeseriesMatchesBuddhistEraWorkedExample(t *testing.T) {
	is := is.New(t)
	a, s := newTestAPI(t)
	reg, err := registry.New(s)
	is.NoErr(err)
	id := types.SensorID("WL-BE00000000001")
	seedWaterLevelSensor(t, s, reg, id, types.LatLng{Latitude: 13.7, Longitude: 100.5})

	within, err := time.Parse(time.RFC3339, "2025-07-07T01:00:00Z")
	is.NoErr(err)
	is.NoErr(s.WriteWaterLevel(context.Background(), types.WaterLevelReading{
		Reading: types.Reading{Time: within, SensorID: id, Quality: 1},
		LevelCM: 9,
	}))

	r := newTestRouter(a)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/water-levels/timeseries?sensorId="+string(id)+"&date=07/07/2568", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)

	var body envelope
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &body))
	is.Equal(body.Pagination.Total, 1)
}

func TestExternalSpatialReturnsGeoJSONFeatureCollection(t *testing.T) {
	is := is.New(t)
	a, s := newTestAPI(t)
	reg, err := registry.New(s)
	is.NoErr(err)
	seedWaterLevelSensor(t, s, reg, "WL-GEO00000000001", types.LatLng{Latitude: 13.7, Longitude: 100.5})

	r := newTestRouter(a)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/external/rid-ms/spatial", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)

	var fc geoJSONFeatureCollection
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &fc))
	is.Equal(fc.Type, "FeatureCollection")
	is.Equal(len(fc.Features), 1)
	is.Equal(fc.Features[0].Geometry.Coordinates[0], 100.5)
}
