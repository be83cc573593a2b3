package registry

import "github.com/munbon/telemetry-core/internal/pkg/identity"

// The four derivation rules live in internal/pkg/identity so both this
// package and the codecs can mint the same canonical SensorID without a
// cyclic import between registry and codec. These aliases keep the names
// spec-facing readers expect at the registry's own package boundary.
var (
	DeriveWaterLevelID = identity.WaterLevel
	DeriveMoistureID    = identity.Moisture
	DeriveGatewayID     = identity.Gateway
	DeriveWeatherID     = identity.Weather
)
