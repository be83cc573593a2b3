package store

import (
	"context"
	"time"

	"github.com/munbon/telemetry-core/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// onConflictDoNothing implements the idempotent-write half of spec I1/P3:
// a redelivered envelope hits the (sensor_id, time) unique index and is
// silently absorbed rather than erroring. Callers distinguish a fresh write
// from a duplicate via RowsAffected.
func onConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{DoNothing: true}
}

func (s *gormStore) WriteWaterLevel(ctx context.Context, r types.WaterLevelReading) error {
	row := WaterLevelRow{
		SensorID:     string(r.SensorID),
		Time:         r.Time,
		LevelCM:      r.LevelCM,
		VoltageV:     r.VoltageV,
		RSSIDBm:      r.RSSIDBm,
		TemperatureC: r.TemperatureC,
		Quality:      r.Quality,
	}
	if r.Location != nil {
		row.Latitude = &r.Location.Latitude
		row.Longitude = &r.Location.Longitude
	}

	result := s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(&row)
	if result.Error != nil {
		return types.NewError(types.KindTransientIO, "write water-level reading failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.ErrDuplicate
	}
	return nil
}

func (s *gormStore) WriteMoisture(ctx context.Context, r types.MoistureReading) error {
	row := MoistureRow{
		SensorID:           string(r.SensorID),
		Time:               r.Time,
		MoistureSurfacePct: r.MoistureSurfacePct,
		MoistureDeepPct:    r.MoistureDeepPct,
		TempSurfaceC:       r.TempSurfaceC,
		TempDeepC:          r.TempDeepC,
		AmbientHumidityPct: r.AmbientHumidityPct,
		AmbientTempC:       r.AmbientTempC,
		Flood:              r.Flood,
		VoltageV:           r.VoltageV,
		Quality:            r.Quality,
	}
	if r.Location != nil {
		row.Latitude = &r.Location.Latitude
		row.Longitude = &r.Location.Longitude
	}

	result := s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(&row)
	if result.Error != nil {
		return types.NewError(types.KindTransientIO, "write moisture reading failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.ErrDuplicate
	}
	return nil
}

func (s *gormStore) WriteWeather(ctx context.Context, r types.WeatherReading) error {
	row := WeatherRow{
		SensorID:          string(r.SensorID),
		Time:              r.Time,
		RainfallMM:        r.RainfallMM,
		TemperatureC:      r.TemperatureC,
		HumidityPct:       r.HumidityPct,
		WindSpeedMS:       r.WindSpeedMS,
		WindMaxMS:         r.WindMaxMS,
		WindDirDeg:        r.WindDirDeg,
		SolarRadiationWM2: r.SolarRadiationWM2,
		BatteryV:          r.BatteryV,
		PressureHPa:       r.PressureHPa,
		Quality:           r.Quality,
	}
	if r.Location != nil {
		row.Latitude = &r.Location.Latitude
		row.Longitude = &r.Location.Longitude
	}

	result := s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(&row)
	if result.Error != nil {
		return types.NewError(types.KindTransientIO, "write weather reading failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.ErrDuplicate
	}
	return nil
}

func (s *gormStore) LatestWaterLevel(ctx context.Context, id types.SensorID) (types.WaterLevelReading, error) {
	var row WaterLevelRow
	err := s.db.WithContext(ctx).Order("time desc").Limit(1).First(&row, "sensor_id = ?", string(id)).Error
	if err != nil {
		return types.WaterLevelReading{}, notFoundOrIOErr(err, "water-level")
	}
	return waterLevelRowToReading(row), nil
}

func (s *gormStore) LatestMoisture(ctx context.Context, id types.SensorID) (types.MoistureReading, error) {
	var row MoistureRow
	err := s.db.WithContext(ctx).Order("time desc").Limit(1).First(&row, "sensor_id = ?", string(id)).Error
	if err != nil {
		return types.MoistureReading{}, notFoundOrIOErr(err, "moisture")
	}
	return moistureRowToReading(row), nil
}

func (s *gormStore) LatestWeather(ctx context.Context, id types.SensorID) (types.WeatherReading, error) {
	var row WeatherRow
	err := s.db.WithContext(ctx).Order("time desc").Limit(1).First(&row, "sensor_id = ?", string(id)).Error
	if err != nil {
		return types.WeatherReading{}, notFoundOrIOErr(err, "weather")
	}
	return weatherRowToReading(row), nil
}

func (s *gormStore) SeriesWaterLevel(ctx context.Context, id types.SensorID, from, to time.Time, limit int) ([]types.WaterLevelReading, error) {
	var rows []WaterLevelRow
	q := s.db.WithContext(ctx).Where("sensor_id = ? AND time >= ? AND time <= ?", string(id), from, to).Order("time asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.KindTransientIO, "water-level series query failed", err)
	}

	out := make([]types.WaterLevelReading, 0, len(rows))
	for _, r := range rows {
		out = append(out, waterLevelRowToReading(r))
	}
	return out, nil
}

func (s *gormStore) SeriesMoisture(ctx context.Context, id types.SensorID, from, to time.Time, limit int) ([]types.MoistureReading, error) {
	var rows []MoistureRow
	q := s.db.WithContext(ctx).Where("sensor_id = ? AND time >= ? AND time <= ?", string(id), from, to).Order("time asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.KindTransientIO, "moisture series query failed", err)
	}

	out := make([]types.MoistureReading, 0, len(rows))
	for _, r := range rows {
		out = append(out, moistureRowToReading(r))
	}
	return out, nil
}

func (s *gormStore) SeriesWeather(ctx context.Context, id types.SensorID, from, to time.Time, limit int) ([]types.WeatherReading, error) {
	var rows []WeatherRow
	q := s.db.WithContext(ctx).Where("sensor_id = ? AND time >= ? AND time <= ?", string(id), from, to).Order("time asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.KindTransientIO, "weather series query failed", err)
	}

	out := make([]types.WeatherReading, 0, len(rows))
	for _, r := range rows {
		out = append(out, weatherRowToReading(r))
	}
	return out, nil
}

func notFoundOrIOErr(err error, what string) error {
	if err == gorm.ErrRecordNotFound {
		return types.NewError(types.KindNotFound, "no "+what+" reading found", err)
	}
	return types.NewError(types.KindTransientIO, what+" query failed", err)
}

func waterLevelRowToReading(row WaterLevelRow) types.WaterLevelReading {
	r := types.WaterLevelReading{
		Reading: types.Reading{
			Time:     row.Time,
			SensorID: types.SensorID(row.SensorID),
			Quality:  row.Quality,
		},
		LevelCM:      row.LevelCM,
		VoltageV:     row.VoltageV,
		RSSIDBm:      row.RSSIDBm,
		TemperatureC: row.TemperatureC,
	}
	if row.Latitude != nil && row.Longitude != nil {
		r.Location = &types.LatLng{Latitude: *row.Latitude, Longitude: *row.Longitude}
	}
	return r
}

func moistureRowToReading(row MoistureRow) types.MoistureReading {
	r := types.MoistureReading{
		Reading: types.Reading{
			Time:     row.Time,
			SensorID: types.SensorID(row.SensorID),
			Quality:  row.Quality,
		},
		MoistureSurfacePct: row.MoistureSurfacePct,
		MoistureDeepPct:    row.MoistureDeepPct,
		TempSurfaceC:       row.TempSurfaceC,
		TempDeepC:          row.TempDeepC,
		AmbientHumidityPct: row.AmbientHumidityPct,
		AmbientTempC:       row.AmbientTempC,
		Flood:              row.Flood,
		VoltageV:           row.VoltageV,
	}
	if row.Latitude != nil && row.Longitude != nil {
		r.Location = &types.LatLng{Latitude: *row.Latitude, Longitude: *row.Longitude}
	}
	return r
}

func weatherRowToReading(row WeatherRow) types.WeatherReading {
	r := types.WeatherReading{
		Reading: types.Reading{
			Time:     row.Time,
			SensorID: types.SensorID(row.SensorID),
			Quality:  row.Quality,
		},
		RainfallMM:        row.RainfallMM,
		TemperatureC:      row.TemperatureC,
		HumidityPct:       row.HumidityPct,
		WindSpeedMS:       row.WindSpeedMS,
		WindMaxMS:         row.WindMaxMS,
		WindDirDeg:        row.WindDirDeg,
		SolarRadiationWM2: row.SolarRadiationWM2,
		BatteryV:          row.BatteryV,
		PressureHPa:       row.PressureHPa,
	}
	if row.Latitude != nil && row.Longitude != nil {
		r.Location = &types.LatLng{Latitude: *row.Latitude, Longitude: *row.Longitude}
	}
	return r
}
