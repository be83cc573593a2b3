package store

import (
	"time"
)

// SensorRow is the registry table: one row per distinct sensor id ever
// observed by a decoder, upserted on every reading (spec §4.3).
type SensorRow struct {
	ID           string `gorm:"primaryKey;column:sensor_id"`
	Family       string `gorm:"index"`
	Manufacturer string
	Latitude     *float64
	Longitude    *float64
	FirstSeen    time.Time
	LastSeen     time.Time `gorm:"index"`
	Metadata     string    // JSON-encoded map[string]string
}

// LocationHistoryRow records a sensor's location whenever it drifts more
// than the registry's configured threshold from its last known fix.
type LocationHistoryRow struct {
	ID        uint `gorm:"primaryKey"`
	SensorID  string `gorm:"index"`
	At        time.Time
	Latitude  float64
	Longitude float64
}

// WaterLevelRow is the per-family readings table for the water-level
// family. The (sensor_id, time) unique index is what makes redelivered
// envelopes idempotent (spec I1/P3).
type WaterLevelRow struct {
	ID           uint `gorm:"primaryKey"`
	SensorID     string `gorm:"uniqueIndex:idx_water_level_sensor_time"`
	Time         time.Time `gorm:"uniqueIndex:idx_water_level_sensor_time"`
	LevelCM      float64
	VoltageV     float64
	RSSIDBm      int
	TemperatureC *float64
	Quality      float64
	Latitude     *float64
	Longitude    *float64
}

type MoistureRow struct {
	ID                 uint `gorm:"primaryKey"`
	SensorID           string `gorm:"uniqueIndex:idx_moisture_sensor_time"`
	Time               time.Time `gorm:"uniqueIndex:idx_moisture_sensor_time"`
	MoistureSurfacePct float64
	MoistureDeepPct    float64
	TempSurfaceC       float64
	TempDeepC          float64
	AmbientHumidityPct float64
	AmbientTempC       float64
	Flood              bool
	VoltageV           float64
	Quality            float64
	Latitude           *float64
	Longitude          *float64
}

type WeatherRow struct {
	ID                uint `gorm:"primaryKey"`
	SensorID          string `gorm:"uniqueIndex:idx_weather_sensor_time"`
	Time              time.Time `gorm:"uniqueIndex:idx_weather_sensor_time"`
	RainfallMM        *float64
	TemperatureC      *float64
	HumidityPct       *float64
	WindSpeedMS       *float64
	WindMaxMS         *float64
	WindDirDeg        *float64
	SolarRadiationWM2 *float64
	BatteryV          *float64
	PressureHPa       *float64
	Quality           float64
	Latitude          *float64
	Longitude         *float64
}

// ApiKeyRow backs C9's static API-key authority.
type ApiKeyRow struct {
	ID              string `gorm:"primaryKey"`
	Hash            string `gorm:"uniqueIndex"`
	Tenant          string `gorm:"index"`
	Tier            string
	AllowedFamilies string // comma-separated Family values
	AllowedZones    string // comma-separated zone identifiers
	ExpiresAt       *time.Time
	Active          bool
	CreatedAt       time.Time
	LastUsedAt      *time.Time
	UsageCount      uint64
}
