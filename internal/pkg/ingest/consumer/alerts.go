package consumer

import (
	"fmt"

	"github.com/munbon/telemetry-core/pkg/types"
)

// Alert is published to the realtime fan-out on topic
// alerts/<severity>/<kind>, derived synchronously before publish (spec
// §4.7). It carries no history of its own; C7 is fire-and-forget.
type Alert struct {
	Severity string
	Kind     string
	SensorID types.SensorID
	Reading  any
}

func (a Alert) Topic() string {
	return fmt.Sprintf("alerts/%s/%s", a.Severity, a.Kind)
}

// deriveWaterLevelAlerts implements spec §4.7's thresholds: > 25cm is
// critical water_high, < 5cm is warning water_low. A reading cannot be
// both.
func deriveWaterLevelAlerts(r types.WaterLevelReading) []Alert {
	switch {
	case r.LevelCM > 25:
		return []Alert{{Severity: "critical", Kind: "water_high", SensorID: r.SensorID, Reading: r}}
	case r.LevelCM < 5:
		return []Alert{{Severity: "warning", Kind: "water_low", SensorID: r.SensorID, Reading: r}}
	default:
		return nil
	}
}

func deriveMoistureAlerts(r types.MoistureReading) []Alert {
	var alerts []Alert
	if r.MoistureSurfacePct < 20 {
		alerts = append(alerts, Alert{Severity: "warning", Kind: "moisture_low", SensorID: r.SensorID, Reading: r})
	}
	if r.Flood {
		alerts = append(alerts, Alert{Severity: "critical", Kind: "flood", SensorID: r.SensorID, Reading: r})
	}
	return alerts
}
