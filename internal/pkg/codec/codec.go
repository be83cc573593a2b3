// Package codec implements C1: pure, side-effect-free decoders that turn a
// vendor-specific RawEnvelope into canonical readings plus the identity
// facts the registry needs to mint or refresh a Sensor row.
package codec

import (
	"strings"

	"github.com/munbon/telemetry-core/pkg/types"
)

// SensorFacts carries the identity/location/metadata a decoder observed,
// which the registry (C3) uses to upsert a Sensor row. It never touches the
// store itself — decoders are pure.
type SensorFacts struct {
	ID           types.SensorID
	Family       types.Family
	Manufacturer string
	Location     *types.LatLng
	Metadata     map[string]string
}

// Result is what Decode returns on success: one or more canonical readings
// (a moisture payload fans out into several) plus the sensor facts for each
// distinct sensor id observed.
type Result struct {
	WaterLevel []types.WaterLevelReading
	Moisture   []types.MoistureReading
	Weather    []types.WeatherReading
	Facts      []SensorFacts
}

// Decoder is implemented by each vendor-specific codec. Decode must be a
// pure function: identical input bytes always produce an identical Result,
// with no side effects (spec property P1).
type Decoder interface {
	Decode(env types.RawEnvelope) (Result, error)
}

// Dispatch returns the decoder for a family. Tokens such as
// munbon-ridr-water-level or munbon-m2m-moisture are not parsed here: the
// cloud relay maps token->family through its token table (C5); the edge
// path (C4) encodes family in the URL path segment directly, so Dispatch is
// keyed by family, not by sniffing the token.
func Dispatch(family types.Family) (Decoder, bool) {
	switch family {
	case types.FamilyWaterLevel:
		return WaterLevelDecoder{}, true
	case types.FamilyMoisture, types.FamilyGateway:
		return MoistureDecoder{}, true
	case types.FamilyWeather:
		return WeatherDecoder{}, true
	default:
		return nil, false
	}
}

// FamilyFromPath maps the {family} path segment used by C4/C5's
// POST /api/sensor-data/{family}/{token} route to a canonical Family.
func FamilyFromPath(segment string) (types.Family, bool) {
	switch strings.ToLower(segment) {
	case "water-level", "water_level":
		return types.FamilyWaterLevel, true
	case "moisture":
		return types.FamilyMoisture, true
	case "weather":
		return types.FamilyWeather, true
	default:
		return "", false
	}
}
