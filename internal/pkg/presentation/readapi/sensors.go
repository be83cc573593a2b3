package readapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/munbon/telemetry-core/internal/pkg/registry"
	"github.com/munbon/telemetry-core/pkg/types"
)

// listSensors implements GET /sensors?type=&page=&limit=.
func (a *API) listSensors(w http.ResponseWriter, r *http.Request) {
	family := types.Family(r.URL.Query().Get("type"))
	sensors, err := a.reg.List(r.Context(), family)
	if err != nil {
		writeError(w, err)
		return
	}
	page, limit := pageLimit(r)
	sliced, p := paginate(sensors, page, limit)
	writeList(w, sliced, p)
}

func (a *API) getSensor(w http.ResponseWriter, r *http.Request) {
	id := types.SensorID(chi.URLParam(r, "id"))
	sensor, err := a.reg.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

func (a *API) latestReading(w http.ResponseWriter, r *http.Request) {
	id := types.SensorID(chi.URLParam(r, "id"))
	family, err := a.resolveFamily(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	var reading any
	switch family {
	case types.FamilyWaterLevel:
		reading, err = a.store.LatestWaterLevel(r.Context(), id)
	case types.FamilyMoisture:
		reading, err = a.store.LatestMoisture(r.Context(), id)
	case types.FamilyWeather:
		reading, err = a.store.LatestWeather(r.Context(), id)
	default:
		writeError(w, types.NewError(types.KindValidation, "unsupported sensor family", nil))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (a *API) seriesReadings(w http.ResponseWriter, r *http.Request) {
	id := types.SensorID(chi.URLParam(r, "id"))
	family, err := a.resolveFamily(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	start, end, err := timeRange(r)
	if err != nil {
		writeError(w, types.NewError(types.KindValidation, "invalid start/end", err))
		return
	}
	_, limit := pageLimit(r)

	var data any
	var n int
	switch family {
	case types.FamilyWaterLevel:
		rows, err := a.store.SeriesWaterLevel(r.Context(), id, start, end, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		data, n = rows, len(rows)
	case types.FamilyMoisture:
		rows, err := a.store.SeriesMoisture(r.Context(), id, start, end, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		data, n = rows, len(rows)
	case types.FamilyWeather:
		rows, err := a.store.SeriesWeather(r.Context(), id, start, end, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		data, n = rows, len(rows)
	default:
		writeError(w, types.NewError(types.KindValidation, "unsupported sensor family", nil))
		return
	}

	writeList(w, data, paginationOf(1, limit, n))
}

// statistics implements GET /sensors/{id}/statistics?start=&end=, returning
// a single bucket spanning the whole window per aggregate stat.
func (a *API) statistics(w http.ResponseWriter, r *http.Request) {
	id := types.SensorID(chi.URLParam(r, "id"))
	family, err := a.resolveFamily(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	start, end, err := timeRange(r)
	if err != nil {
		writeError(w, types.NewError(types.KindValidation, "invalid start/end", err))
		return
	}

	stat := defaultStatFieldFor(family)
	buckets, err := a.store.Aggregate(r.Context(), family, id, start, end, end.Sub(start), stat)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(buckets) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0})
		return
	}
	writeJSON(w, http.StatusOK, buckets[0].Stats)
}

// nearbySensors implements GET /sensors/nearby?lat=&lng=&radius= (km).
func (a *API) nearbySensors(w http.ResponseWriter, r *http.Request) {
	lat := atofOr(r.URL.Query().Get("lat"), 0)
	lng := atofOr(r.URL.Query().Get("lng"), 0)
	radiusKM := atofOr(r.URL.Query().Get("radius"), 1)

	all, err := a.reg.List(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}

	center := types.LatLng{Latitude: lat, Longitude: lng}
	var nearby []types.Sensor
	for _, s := range all {
		if s.Location == nil {
			continue
		}
		if registry.HaversineMeters(center, *s.Location) <= radiusKM*1000 {
			nearby = append(nearby, s)
		}
	}

	page, limit := pageLimit(r)
	sliced, p := paginate(nearby, page, limit)
	writeList(w, sliced, p)
}

func (a *API) resolveFamily(r *http.Request, id types.SensorID) (types.Family, error) {
	sensor, err := a.reg.Get(r.Context(), id)
	if err != nil {
		return "", err
	}
	return sensor.Family, nil
}

func defaultStatFieldFor(family types.Family) string {
	switch family {
	case types.FamilyWaterLevel:
		return "level_cm"
	case types.FamilyMoisture:
		return "moisture_surface_pct"
	case types.FamilyWeather:
		return "rainfall_mm"
	default:
		return ""
	}
}

func atofOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
