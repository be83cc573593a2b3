package types

import "time"

// Reading is the common envelope every concrete reading variant embeds.
type Reading struct {
	Time     time.Time `json:"time"`
	SensorID SensorID  `json:"sensorId"`
	Quality  float64   `json:"quality"`
	Location *LatLng   `json:"location,omitempty"`
}

// WaterLevelReading is decoded from the water-level vendor payload.
type WaterLevelReading struct {
	Reading
	LevelCM       float64  `json:"levelCm"`
	VoltageV      float64  `json:"voltageV"`
	RSSIDBm       int      `json:"rssiDbm"`
	TemperatureC  *float64 `json:"temperatureC,omitempty"`
}

// MoistureReading is decoded from one entry of the moisture vendor payload's
// sensor array.
type MoistureReading struct {
	Reading
	MoistureSurfacePct float64 `json:"moistureSurfacePct"`
	MoistureDeepPct    float64 `json:"moistureDeepPct"`
	TempSurfaceC       float64 `json:"tempSurfaceC"`
	TempDeepC          float64 `json:"tempDeepC"`
	AmbientHumidityPct float64 `json:"ambientHumidityPct"`
	AmbientTempC       float64 `json:"ambientTempC"`
	Flood              bool    `json:"flood"`
	VoltageV           float64 `json:"voltageV"`
}

// WeatherReading is derived from the SCADA-style weather station feed.
// Every domain field is optional because the row feed does not guarantee
// every column is populated for every station.
type WeatherReading struct {
	Reading
	RainfallMM        *float64 `json:"rainfallMm,omitempty"`
	TemperatureC      *float64 `json:"temperatureC,omitempty"`
	HumidityPct       *float64 `json:"humidityPct,omitempty"`
	WindSpeedMS       *float64 `json:"windSpeedMs,omitempty"`
	WindMaxMS         *float64 `json:"windMaxMs,omitempty"`
	WindDirDeg        *float64 `json:"windDirDeg,omitempty"`
	SolarRadiationWM2 *float64 `json:"solarRadiationWm2,omitempty"`
	BatteryV          *float64 `json:"batteryV,omitempty"`
	PressureHPa       *float64 `json:"pressureHpa,omitempty"`
}

// Bucket is one row of an aggregate query result.
type Bucket struct {
	Start time.Time          `json:"start"`
	End   time.Time          `json:"end"`
	Stats map[string]float64 `json:"stats"`
}
