package codec

import (
	"encoding/json"
	"time"

	"github.com/munbon/telemetry-core/internal/pkg/identity"
	"github.com/munbon/telemetry-core/pkg/types"
)

// waterLevelPayload mirrors the vendor's flat JSON shape (§4.1): deviceID,
// macAddress, latitude, longitude, RSSI, voltage, level, timestamp.
type waterLevelPayload struct {
	DeviceID  string  `json:"deviceID"`
	MAC       string  `json:"macAddress"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RSSI      int     `json:"RSSI"`
	Voltage   float64 `json:"voltage"` // centivolts
	Level     float64 `json:"level"`   // cm
	Timestamp int64   `json:"timestamp"`
}

// WaterLevelDecoder decodes the vendor water-level payload into a canonical
// WaterLevelReading.
type WaterLevelDecoder struct{}

func (WaterLevelDecoder) Decode(env types.RawEnvelope) (Result, error) {
	if len(env.VendorBody) == 0 {
		return Result{}, types.NewDecodeError(types.ReasonEmptyPayload, "empty water-level body", nil)
	}

	var p waterLevelPayload
	if err := json.Unmarshal(env.VendorBody, &p); err != nil {
		return Result{}, types.NewDecodeError(types.ReasonShapeMismatch, "water-level body is not valid JSON", err)
	}

	if p.MAC == "" {
		return Result{}, types.NewDecodeError(types.ReasonMissingIdentity, "missing macAddress", nil)
	}
	if p.Timestamp <= 0 {
		return Result{}, types.NewDecodeError(types.ReasonBadTimestamp, "missing or non-positive timestamp", nil)
	}

	sensorID := identity.WaterLevel(p.MAC)
	at := time.UnixMilli(p.Timestamp).UTC()
	voltageV := p.Voltage / 100

	q := newQuality().lowVoltage(voltageV, 3.0).value()

	var loc *types.LatLng
	if p.Latitude != 0 || p.Longitude != 0 {
		loc = &types.LatLng{Latitude: p.Latitude, Longitude: p.Longitude}
	}

	reading := types.WaterLevelReading{
		Reading: types.Reading{
			Time:     at,
			SensorID: sensorID,
			Quality:  q,
			Location: loc,
		},
		LevelCM:  p.Level,
		VoltageV: voltageV,
		RSSIDBm:  p.RSSI,
	}

	return Result{
		WaterLevel: []types.WaterLevelReading{reading},
		Facts: []SensorFacts{{
			ID:       sensorID,
			Family:   types.FamilyWaterLevel,
			Location: loc,
			Metadata: map[string]string{"deviceID": p.DeviceID},
		}},
	}, nil
}
