// Package identity holds the pure sensor_id derivation rules (spec §3, §4.3).
// This is the only place a SensorID string is minted, shared by C1's
// decoders (to label each reading) and C3's registry (to upsert).
package identity

import (
	"fmt"
	"strings"

	"github.com/munbon/telemetry-core/pkg/types"
)

// WaterLevel derives "WL-<mac12hex>" from a MAC address. Non-hex characters
// are stripped and the result upper-cased, taking the last 12 hex digits.
func WaterLevel(macAddress string) types.SensorID {
	hex := strings.ToUpper(onlyHex(macAddress))
	if len(hex) > 12 {
		hex = hex[len(hex)-12:]
	}
	return types.SensorID("WL-" + hex)
}

// Moisture derives "MS-<gwid5>-<sid5>" for an in-ground moisture sensor.
func Moisture(gatewayID, sensorID string) types.SensorID {
	return types.SensorID(fmt.Sprintf("MS-%s-%s", pad5(gatewayID), pad5(sensorID)))
}

// Gateway derives "GW-<gwid5>" for a moisture gateway.
func Gateway(gatewayID string) types.SensorID {
	return types.SensorID(fmt.Sprintf("GW-%s", pad5(gatewayID)))
}

// Weather derives "AOS-<stationNum>" for a weather station.
func Weather(stationNum string) types.SensorID {
	n := strings.TrimLeft(strings.TrimSpace(stationNum), "0")
	if n == "" {
		n = "0"
	}
	return types.SensorID("AOS-" + n)
}

func onlyHex(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// pad5 parses a numeric string (possibly with leading zeros, e.g. "016") as
// a decimal integer and re-renders it zero-padded to 5 digits.
func pad5(s string) string {
	s = strings.TrimSpace(s)
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		n = n*10 + int(r-'0')
	}
	return fmt.Sprintf("%05d", n)
}
