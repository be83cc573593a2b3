package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/munbon/telemetry-core/internal/pkg/identity"
	"github.com/munbon/telemetry-core/pkg/types"
)

// moistureGatewayPayload mirrors the vendor v2 shape (§4.1): a gateway
// envelope carrying ambient fields plus an array of in-ground sensor
// readings. All numeric vendor fields arrive as strings, sometimes with
// leading zeros ("016"), and an empty string means null.
type moistureGatewayPayload struct {
	GatewayID       string                  `json:"gw_id"`
	Lat             string                  `json:"gps_lat"`
	Lng             string                  `json:"gps_lng"`
	GatewayUTC      string                  `json:"gw_utc"`
	GatewayDate     string                  `json:"gw_date"`
	AmbientHumidity string                  `json:"ambient_humid"`
	AmbientTemp     string                  `json:"ambient_temp"`
	Battery         string                  `json:"battery"`
	Sensors         []moistureSensorPayload `json:"sensor"`
}

type moistureSensorPayload struct {
	SensorID   string `json:"sensor_id"`
	SensorUTC  string `json:"sensor_utc"`
	SensorDate string `json:"sensor_date"`
	HumidHi    string `json:"humid_hi"`  // surface moisture %
	HumidLow   string `json:"humid_low"` // deep moisture %
	TempHi     string `json:"temp_hi"`
	TempLow    string `json:"temp_low"`
	AmbHumid   string `json:"amb_humid"`
	AmbTemp    string `json:"amb_temp"`
	Flood      string `json:"flood"`
	Voltage    string `json:"volt"`
}

// MoistureDecoder decodes the vendor moisture v2 payload into one
// MoistureReading per sensor array entry, plus a registry-only gateway
// SensorFacts entry. Whether a gateway with an absent sensor[] but present
// ambient fields should synthesize a weather-like reading is an open
// question in spec §9; this decoder keeps it registry-only, per the spec's
// stated (if unconfirmed) choice.
type MoistureDecoder struct{}

func (MoistureDecoder) Decode(env types.RawEnvelope) (Result, error) {
	if len(env.VendorBody) == 0 {
		return Result{}, types.NewDecodeError(types.ReasonEmptyPayload, "empty moisture body", nil)
	}

	var p moistureGatewayPayload
	if err := json.Unmarshal(env.VendorBody, &p); err != nil {
		return Result{}, types.NewDecodeError(types.ReasonShapeMismatch, "moisture body is not valid JSON", err)
	}

	if p.GatewayID == "" {
		return Result{}, types.NewDecodeError(types.ReasonMissingIdentity, "missing gw_id", nil)
	}

	gwID := identity.Gateway(p.GatewayID)

	var gwLoc *types.LatLng
	if lat, ok := parseFloatField(p.Lat); ok {
		if lng, ok2 := parseFloatField(p.Lng); ok2 {
			gwLoc = &types.LatLng{Latitude: lat, Longitude: lng}
		}
	}

	gwTime, hasGwTime := parseMoistureTime(p.GatewayDate, p.GatewayUTC)

	result := Result{
		Facts: []SensorFacts{{
			ID:       gwID,
			Family:   types.FamilyGateway,
			Location: gwLoc,
			Metadata: gatewayMetadata(p),
		}},
	}

	if len(p.Sensors) == 0 {
		return result, nil
	}

	for _, s := range p.Sensors {
		if s.SensorID == "" {
			continue
		}

		at, ok := parseMoistureTime(s.SensorDate, s.SensorUTC)
		if !ok {
			if !hasGwTime {
				return Result{}, types.NewDecodeError(types.ReasonBadTimestamp, "no valid sensor or gateway timestamp", nil)
			}
			at = gwTime
		}

		surface, _ := parseFloatField(s.HumidHi)
		deep, _ := parseFloatField(s.HumidLow)
		tempSurface, _ := parseFloatField(s.TempHi)
		tempDeep, _ := parseFloatField(s.TempLow)
		ambHumid, _ := parseFloatField(s.AmbHumid)
		ambTemp, _ := parseFloatField(s.AmbTemp)
		voltage, _ := parseFloatField(s.Voltage)

		q := newQuality().
			moistureOutOfRange(surface).
			moistureOutOfRange(deep).
			temperatureOutOfRange(tempSurface).
			temperatureOutOfRange(tempDeep).
			lowVoltage(voltage, 3.0).
			value()

		sensorID := identity.Moisture(p.GatewayID, s.SensorID)

		reading := types.MoistureReading{
			Reading: types.Reading{
				Time:     at,
				SensorID: sensorID,
				Quality:  q,
				Location: gwLoc,
			},
			MoistureSurfacePct: surface,
			MoistureDeepPct:    deep,
			TempSurfaceC:       tempSurface,
			TempDeepC:          tempDeep,
			AmbientHumidityPct: ambHumid,
			AmbientTempC:       ambTemp,
			Flood:              strings.EqualFold(strings.TrimSpace(s.Flood), "yes"),
			VoltageV:           voltage,
		}

		result.Moisture = append(result.Moisture, reading)
		result.Facts = append(result.Facts, SensorFacts{
			ID:       sensorID,
			Family:   types.FamilyMoisture,
			Location: gwLoc,
			Metadata: map[string]string{"gatewayId": string(gwID)},
		})
	}

	return result, nil
}

func gatewayMetadata(p moistureGatewayPayload) map[string]string {
	m := map[string]string{}
	if v, ok := parseFloatField(p.AmbientHumidity); ok {
		m["ambientHumidityPct"] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v, ok := parseFloatField(p.AmbientTemp); ok {
		m["ambientTempC"] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v, ok := parseFloatField(p.Battery); ok {
		m["batteryV"] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return m
}

// parseFloatField treats an empty string as null and otherwise parses the
// field (which may carry leading zeros, e.g. "018") as a decimal number.
func parseFloatField(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseMoistureTime combines a "YYYY/MM/DD" date and "HH:MM:SS" time field.
// Fields literally named *_utc/*_date in this vendor's payload are UTC per
// spec §9's resolution of the timestamp open question.
func parseMoistureTime(date, clock string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006/01/02 15:04:05", fmt.Sprintf("%s %s", date, clock))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
