package codec

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/munbon/telemetry-core/internal/pkg/identity"
	"github.com/munbon/telemetry-core/pkg/types"
)

// weatherRow mirrors one row of the SCADA-style weather station feed. Every
// domain field is a nullable string column, matched to the canonical field
// by the static mapping below rather than by struct tag alone.
type weatherRow struct {
	StationNo string `json:"station_no"`
	DateTime  string `json:"datetime"`
	Lat       string `json:"lat"`
	Lng       string `json:"lng"`

	Rainfall   string `json:"rainfall_mm"`
	Temp       string `json:"temperature_c"`
	Humidity   string `json:"humidity_pct"`
	WindSpeed  string `json:"wind_speed_ms"`
	WindMax    string `json:"wind_max_ms"`
	WindDir    string `json:"wind_dir_deg"`
	SolarRad   string `json:"solar_radiation_wm2"`
	BatteryV   string `json:"battery_v"`
	PressureHP string `json:"pressure_hpa"`
}

// WeatherDecoder decodes one row of the weather feed into a canonical
// WeatherReading. The station is itself the sensor (family "weather").
type WeatherDecoder struct{}

func (WeatherDecoder) Decode(env types.RawEnvelope) (Result, error) {
	if len(env.VendorBody) == 0 {
		return Result{}, types.NewDecodeError(types.ReasonEmptyPayload, "empty weather row", nil)
	}

	var row weatherRow
	if err := json.Unmarshal(env.VendorBody, &row); err != nil {
		return Result{}, types.NewDecodeError(types.ReasonShapeMismatch, "weather row is not valid JSON", err)
	}

	if strings.TrimSpace(row.StationNo) == "" {
		return Result{}, types.NewDecodeError(types.ReasonMissingIdentity, "missing station_no", nil)
	}

	at, err := time.Parse(time.RFC3339, row.DateTime)
	if err != nil {
		return Result{}, types.NewDecodeError(types.ReasonBadTimestamp, "unparseable datetime", err)
	}

	sensorID := identity.Weather(row.StationNo)

	var loc *types.LatLng
	if lat, ok := parseFloatField(row.Lat); ok {
		if lng, ok2 := parseFloatField(row.Lng); ok2 {
			loc = &types.LatLng{Latitude: lat, Longitude: lng}
		}
	}

	reading := types.WeatherReading{
		Reading: types.Reading{
			Time:     at.UTC(),
			SensorID: sensorID,
			Quality:  1.0,
			Location: loc,
		},
		RainfallMM:        ptrIfPresent(row.Rainfall),
		TemperatureC:      ptrIfPresent(row.Temp),
		HumidityPct:       ptrIfPresent(row.Humidity),
		WindSpeedMS:       ptrIfPresent(row.WindSpeed),
		WindMaxMS:         ptrIfPresent(row.WindMax),
		WindDirDeg:        ptrIfPresent(row.WindDir),
		SolarRadiationWM2: ptrIfPresent(row.SolarRad),
		BatteryV:          ptrIfPresent(row.BatteryV),
		PressureHPa:       ptrIfPresent(row.PressureHP),
	}

	q := newQuality()
	if reading.TemperatureC != nil {
		q.temperatureOutOfRange(*reading.TemperatureC)
	}
	if reading.BatteryV != nil {
		q.lowVoltage(*reading.BatteryV, 11.0)
	}
	reading.Quality = q.value()

	return Result{
		Weather: []types.WeatherReading{reading},
		Facts: []SensorFacts{{
			ID:       sensorID,
			Family:   types.FamilyWeather,
			Location: loc,
		}},
	}, nil
}

func ptrIfPresent(s string) *float64 {
	v, ok := parseFloatField(s)
	if !ok {
		return nil
	}
	return &v
}
