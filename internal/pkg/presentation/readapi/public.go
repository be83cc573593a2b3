package readapi

import (
	"net/http"
	"time"

	"github.com/munbon/telemetry-core/internal/pkg/calendar"
	"github.com/munbon/telemetry-core/pkg/types"
)

// publicLatest implements GET /public/{family}/latest: the latest reading
// across every sensor in the family, unauthenticated-shape but still behind
// the same middleware (spec §6 groups /public under the same API-key gate).
func (a *API) publicLatest(segment string) http.HandlerFunc {
	family := familyFromPathSegment(segment)
	return func(w http.ResponseWriter, r *http.Request) {
		sensors, err := a.reg.List(r.Context(), family)
		if err != nil {
			writeError(w, err)
			return
		}

		data := make([]map[string]any, 0, len(sensors))
		for _, s := range sensors {
			reading, at, err := a.latestForFamily(r, family, s.ID)
			if err != nil {
				continue
			}
			data = append(data, map[string]any{
				"sensorId":           s.ID,
				"reading":            reading,
				"timestamp":          at,
				"timestamp_buddhist": calendar.FormatBE(at),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": data})
	}
}

func (a *API) latestForFamily(r *http.Request, family types.Family, id types.SensorID) (any, time.Time, error) {
	switch family {
	case types.FamilyWaterLevel:
		reading, err := a.store.LatestWaterLevel(r.Context(), id)
		return reading, reading.Time, err
	case types.FamilyMoisture:
		reading, err := a.store.LatestMoisture(r.Context(), id)
		return reading, reading.Time, err
	case types.FamilyWeather:
		reading, err := a.store.LatestWeather(r.Context(), id)
		return reading, reading.Time, err
	default:
		return nil, time.Time{}, types.NewError(types.KindValidation, "unsupported sensor family", nil)
	}
}

// publicTimeseries implements GET /public/{family}/timeseries?date=DD/MM/YYYY,
// translating the Buddhist-Era date to a UTC range per spec §4.8 and
// echoing both Gregorian and BE timestamps on every row.
func (a *API) publicTimeseries(segment string) http.HandlerFunc {
	family := familyFromPathSegment(segment)
	return func(w http.ResponseWriter, r *http.Request) {
		dateParam := r.URL.Query().Get("date")
		start, end, err := calendar.RangeForBEDateParam(dateParam)
		if err != nil {
			writeError(w, types.NewError(types.KindValidation, "invalid date, expected DD/MM/YYYY in Buddhist Era", err))
			return
		}

		id := types.SensorID(r.URL.Query().Get("sensorId"))
		if id == "" {
			writeError(w, types.NewError(types.KindValidation, "sensorId query parameter is required", nil))
			return
		}

		_, limit := pageLimit(r)
		rows, err := a.seriesWithTimestamps(r, family, id, start, end, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeList(w, rows, paginationOf(1, limit, len(rows)))
	}
}

func (a *API) seriesWithTimestamps(r *http.Request, family types.Family, id types.SensorID, start, end time.Time, limit int) ([]map[string]any, error) {
	var times []time.Time
	var readings []any

	switch family {
	case types.FamilyWaterLevel:
		rows, err := a.store.SeriesWaterLevel(r.Context(), id, start, end, limit)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			times = append(times, row.Time)
			readings = append(readings, row)
		}
	case types.FamilyMoisture:
		rows, err := a.store.SeriesMoisture(r.Context(), id, start, end, limit)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			times = append(times, row.Time)
			readings = append(readings, row)
		}
	case types.FamilyWeather:
		rows, err := a.store.SeriesWeather(r.Context(), id, start, end, limit)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			times = append(times, row.Time)
			readings = append(readings, row)
		}
	default:
		return nil, types.NewError(types.KindValidation, "unsupported sensor family", nil)
	}

	out := make([]map[string]any, len(readings))
	for i, reading := range readings {
		out[i] = map[string]any{
			"reading":            reading,
			"timestamp":          times[i],
			"timestamp_buddhist": calendar.FormatBE(times[i]),
		}
	}
	return out, nil
}

// publicStatistics implements GET /public/{family}/statistics?date=DD/MM/YYYY,
// aggregating the same BE day into a single bucket.
func (a *API) publicStatistics(segment string) http.HandlerFunc {
	family := familyFromPathSegment(segment)
	return func(w http.ResponseWriter, r *http.Request) {
		dateParam := r.URL.Query().Get("date")
		start, end, err := calendar.RangeForBEDateParam(dateParam)
		if err != nil {
			writeError(w, types.NewError(types.KindValidation, "invalid date, expected DD/MM/YYYY in Buddhist Era", err))
			return
		}

		id := types.SensorID(r.URL.Query().Get("sensorId"))
		if id == "" {
			writeError(w, types.NewError(types.KindValidation, "sensorId query parameter is required", nil))
			return
		}

		stat := defaultStatFieldFor(family)
		buckets, err := a.store.Aggregate(r.Context(), family, id, start, end, end.Sub(start), stat)
		if err != nil {
			writeError(w, err)
			return
		}

		result := map[string]any{
			"date_buddhist": dateParam,
			"start":         start,
			"end":           end,
		}
		if len(buckets) == 0 {
			result["stats"] = map[string]float64{"count": 0}
		} else {
			result["stats"] = buckets[0].Stats
		}
		writeJSON(w, http.StatusOK, result)
	}
}
