package readapi

import (
	"net/http"
	"time"

	"github.com/munbon/telemetry-core/pkg/types"
)

func familyFromPathSegment(segment string) types.Family {
	switch segment {
	case "water-levels":
		return types.FamilyWaterLevel
	case "moisture":
		return types.FamilyMoisture
	case "weather":
		return types.FamilyWeather
	default:
		return ""
	}
}

// familySeries implements GET /{family}?start=&end=, a flat series across
// every sensor in the family (spec §6's "/water-levels|/moisture").
func (a *API) familySeries(segment string) http.HandlerFunc {
	family := familyFromPathSegment(segment)
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := timeRange(r)
		if err != nil {
			writeError(w, types.NewError(types.KindValidation, "invalid start/end", err))
			return
		}
		_, limit := pageLimit(r)

		sensors, err := a.reg.List(r.Context(), family)
		if err != nil {
			writeError(w, err)
			return
		}

		data, err := a.seriesAcrossSensors(r, family, sensors, start, end, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeList(w, data, paginationOf(1, limit, len(data)))
	}
}

func (a *API) seriesAcrossSensors(r *http.Request, family types.Family, sensors []types.Sensor, start, end time.Time, limit int) ([]any, error) {
	var out []any
	for _, s := range sensors {
		switch family {
		case types.FamilyWaterLevel:
			rows, err := a.store.SeriesWaterLevel(r.Context(), s.ID, start, end, limit)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				out = append(out, row)
			}
		case types.FamilyMoisture:
			rows, err := a.store.SeriesMoisture(r.Context(), s.ID, start, end, limit)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				out = append(out, row)
			}
		case types.FamilyWeather:
			rows, err := a.store.SeriesWeather(r.Context(), s.ID, start, end, limit)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

// familyAggregated implements GET /{family}/aggregated, returning bucketed
// rows per spec §4.8's interval/aggregation params, multi-agg allowed.
func (a *API) familyAggregated(segment string) http.HandlerFunc {
	family := familyFromPathSegment(segment)
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := timeRange(r)
		if err != nil {
			writeError(w, types.NewError(types.KindValidation, "invalid start/end", err))
			return
		}
		bucket, ok := intervalBucket(r.URL.Query().Get("interval"))
		if !ok {
			writeError(w, types.NewError(types.KindValidation, "invalid interval", nil))
			return
		}

		stat := defaultStatFieldFor(family)
		if s := r.URL.Query().Get("stat"); s != "" {
			stat = s
		}

		sensors, err := a.reg.List(r.Context(), family)
		if err != nil {
			writeError(w, err)
			return
		}

		var buckets []types.Bucket
		for _, s := range sensors {
			b, err := a.store.Aggregate(r.Context(), family, s.ID, start, end, bucket, stat)
			if err != nil {
				writeError(w, err)
				return
			}
			buckets = append(buckets, b...)
		}

		aggs := aggregations(r.URL.Query().Get("aggregation"))
		for _, agg := range aggs {
			if !validAggregations[agg] {
				writeError(w, types.NewError(types.KindValidation, "unsupported aggregation", nil))
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"data": buckets, "aggregations": aggs})
	}
}

// familyAlerts implements GET /{family}/alerts: currently-active threshold
// alerts, derived on the fly from each sensor's latest reading (spec §4.7's
// thresholds, applied at read time rather than stored).
func (a *API) familyAlerts(segment string) http.HandlerFunc {
	family := familyFromPathSegment(segment)
	return func(w http.ResponseWriter, r *http.Request) {
		sensors, err := a.reg.List(r.Context(), family)
		if err != nil {
			writeError(w, err)
			return
		}

		var alerts []map[string]any
		for _, s := range sensors {
			switch family {
			case types.FamilyWaterLevel:
				reading, err := a.store.LatestWaterLevel(r.Context(), s.ID)
				if err != nil {
					continue
				}
				alerts = append(alerts, waterLevelAlerts(reading)...)
			case types.FamilyMoisture:
				reading, err := a.store.LatestMoisture(r.Context(), s.ID)
				if err != nil {
					continue
				}
				alerts = append(alerts, moistureAlerts(reading)...)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"data": alerts})
	}
}

func waterLevelAlerts(r types.WaterLevelReading) []map[string]any {
	switch {
	case r.LevelCM > 25:
		return []map[string]any{{"severity": "critical", "kind": "water_high", "sensorId": r.SensorID, "reading": r}}
	case r.LevelCM < 5:
		return []map[string]any{{"severity": "warning", "kind": "water_low", "sensorId": r.SensorID, "reading": r}}
	default:
		return nil
	}
}

func moistureAlerts(r types.MoistureReading) []map[string]any {
	var out []map[string]any
	if r.MoistureSurfacePct < 20 {
		out = append(out, map[string]any{"severity": "warning", "kind": "moisture_low", "sensorId": r.SensorID, "reading": r})
	}
	if r.Flood {
		out = append(out, map[string]any{"severity": "critical", "kind": "flood", "sensorId": r.SensorID, "reading": r})
	}
	return out
}

// familyComparison implements GET /{family}/comparison, returning each
// sensor's latest reading side by side for dashboard cross-sensor views.
func (a *API) familyComparison(segment string) http.HandlerFunc {
	family := familyFromPathSegment(segment)
	return func(w http.ResponseWriter, r *http.Request) {
		sensors, err := a.reg.List(r.Context(), family)
		if err != nil {
			writeError(w, err)
			return
		}

		data := make(map[string]any, len(sensors))
		for _, s := range sensors {
			var reading any
			var err error
			switch family {
			case types.FamilyWaterLevel:
				reading, err = a.store.LatestWaterLevel(r.Context(), s.ID)
			case types.FamilyMoisture:
				reading, err = a.store.LatestMoisture(r.Context(), s.ID)
			case types.FamilyWeather:
				reading, err = a.store.LatestWeather(r.Context(), s.ID)
			}
			if err != nil {
				continue
			}
			data[string(s.ID)] = reading
		}

		writeJSON(w, http.StatusOK, map[string]any{"data": data})
	}
}
