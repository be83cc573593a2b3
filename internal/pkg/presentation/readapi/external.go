package readapi

import (
	"net/http"

	"github.com/munbon/telemetry-core/pkg/types"
)

// externalSensors implements GET /external/rid-ms/sensors, the legacy
// partner shape: a flat list keyed by the fields the rid-ms integration
// already expects rather than the registry's own Sensor struct.
func (a *API) externalSensors(w http.ResponseWriter, r *http.Request) {
	family := types.Family(r.URL.Query().Get("type"))
	sensors, err := a.reg.List(r.Context(), family)
	if err != nil {
		writeError(w, err)
		return
	}

	page, limit := pageLimit(r)
	sliced, p := paginate(sensors, page, limit)

	data := make([]map[string]any, len(sliced))
	for i, s := range sliced {
		data[i] = map[string]any{
			"station_id":   s.ID,
			"station_type": s.Family,
			"manufacturer": s.Manufacturer,
			"last_seen":    s.LastSeen,
			"location":     s.Location,
		}
	}
	writeList(w, data, p)
}

// externalReadings implements GET /external/rid-ms/readings?sensorId=&start=&end=.
func (a *API) externalReadings(w http.ResponseWriter, r *http.Request) {
	id := types.SensorID(r.URL.Query().Get("sensorId"))
	if id == "" {
		writeError(w, types.NewError(types.KindValidation, "sensorId query parameter is required", nil))
		return
	}

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

	data, err := a.seriesAcrossSensors(r, family, []types.Sensor{{ID: id, Family: family}}, start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, data, paginationOf(1, limit, len(data)))
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string         `json:"type"`
	Geometry   geoJSONPoint   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// externalSpatial implements GET /external/rid-ms/spatial, a GeoJSON
// FeatureCollection of every sensor with a known location, one Feature per
// sensor carrying its latest reading in properties.
func (a *API) externalSpatial(w http.ResponseWriter, r *http.Request) {
	family := types.Family(r.URL.Query().Get("type"))
	sensors, err := a.reg.List(r.Context(), family)
	if err != nil {
		writeError(w, err)
		return
	}

	fc := geoJSONFeatureCollection{Type: "FeatureCollection"}
	for _, s := range sensors {
		if s.Location == nil {
			continue
		}
		reading, _, _ := a.latestForFamily(r, s.Family, s.ID)
		fc.Features = append(fc.Features, geoJSONFeature{
			Type: "Feature",
			Geometry: geoJSONPoint{
				Type:        "Point",
				Coordinates: []float64{s.Location.Longitude, s.Location.Latitude},
			},
			Properties: map[string]any{
				"sensorId": s.ID,
				"family":   s.Family,
				"reading":  reading,
			},
		})
	}
	writeJSON(w, http.StatusOK, fc)
}
