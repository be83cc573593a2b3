package registry

import (
	"math"

	"github.com/munbon/telemetry-core/pkg/types"
)

const earthRadiusMeters = 6371000.0

// HaversineMeters is the great-circle distance between two WGS84 points,
// used to decide whether a new fix counts as sensor movement (spec §4.3's
// 50m drift threshold) rather than GPS jitter, and reused by the read API's
// /sensors/nearby radius search.
func HaversineMeters(a, b types.LatLng) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}
