// Package store implements C2: the time-series store adapter. It is the
// only package that imports GORM; every other package talks to it through
// the Store interface.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/env"
	"github.com/munbon/telemetry-core/pkg/types"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is the interface every ingest, registry and read-API component
// depends on. It is grounded on the teacher's database.Datastore: one
// interface covering every table the service owns, backed by a single
// *gorm.DB.
type Store interface {
	UpsertSensor(ctx context.Context, facts SensorFacts) (types.Sensor, error)
	GetSensor(ctx context.Context, id types.SensorID) (types.Sensor, error)
	ListSensors(ctx context.Context, family types.Family) ([]types.Sensor, error)
	AppendLocationHistory(ctx context.Context, id types.SensorID, loc types.LatLng, at time.Time) error
	LocationHistory(ctx context.Context, id types.SensorID) ([]types.LocationHistoryEntry, error)

	WriteWaterLevel(ctx context.Context, r types.WaterLevelReading) error
	WriteMoisture(ctx context.Context, r types.MoistureReading) error
	WriteWeather(ctx context.Context, r types.WeatherReading) error

	LatestWaterLevel(ctx context.Context, id types.SensorID) (types.WaterLevelReading, error)
	LatestMoisture(ctx context.Context, id types.SensorID) (types.MoistureReading, error)
	LatestWeather(ctx context.Context, id types.SensorID) (types.WeatherReading, error)

	SeriesWaterLevel(ctx context.Context, id types.SensorID, from, to time.Time, limit int) ([]types.WaterLevelReading, error)
	SeriesMoisture(ctx context.Context, id types.SensorID, from, to time.Time, limit int) ([]types.MoistureReading, error)
	SeriesWeather(ctx context.Context, id types.SensorID, from, to time.Time, limit int) ([]types.WeatherReading, error)

	Aggregate(ctx context.Context, family types.Family, id types.SensorID, from, to time.Time, bucket time.Duration, stat string) ([]types.Bucket, error)

	CreateApiKey(ctx context.Context, k types.ApiKey, hash string) error
	GetApiKeyByHash(ctx context.Context, hash string) (types.ApiKey, error)
	TouchApiKey(ctx context.Context, id string, at time.Time) error
}

// SensorFacts is the registry-facing projection of codec.SensorFacts; kept
// distinct from the codec package's type so store does not import codec.
type SensorFacts struct {
	ID           types.SensorID
	Family       types.Family
	Manufacturer string
	Location     *types.LatLng
	Metadata     map[string]string
}

type gormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// ConnectorFunc opens a *gorm.DB, mirroring the teacher's
// database.ConnectorFunc injection shape so main() picks the backend.
type ConnectorFunc func() (*gorm.DB, zerolog.Logger, error)

// NewPostgreSQLConnector opens a connection to the TimescaleDB/Postgres
// backend, retrying every 3 seconds until it succeeds, the way the teacher's
// NewPostgreSQLConnector does.
func NewPostgreSQLConnector(log zerolog.Logger) ConnectorFunc {
	dbHost := os.Getenv("MUNBON_SQLDB_HOST")
	username := os.Getenv("MUNBON_SQLDB_USER")
	dbName := os.Getenv("MUNBON_SQLDB_NAME")
	password := os.Getenv("MUNBON_SQLDB_PASSWORD")
	sslMode := env.GetVariableOrDefault(log, "MUNBON_SQLDB_SSLMODE", "require")

	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", dbHost, username, dbName, sslMode, password)

	return func() (*gorm.DB, zerolog.Logger, error) {
		sublogger := log.With().Str("host", dbHost).Str("database", dbName).Logger()

		for {
			sublogger.Info().Msg("connecting to time-series store")

			db, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{
				Logger: logger.New(
					&sublogger,
					logger.Config{
						SlowThreshold:             time.Second,
						LogLevel:                  logger.Warn,
						IgnoreRecordNotFoundError: true,
						Colorful:                  false,
					},
				),
			})
			if err != nil {
				sublogger.Error().Err(err).Msg("failed to connect, retrying")
				time.Sleep(3 * time.Second)
				continue
			}
			return db, sublogger, nil
		}
	}
}

// NewSQLiteConnector opens an in-memory sqlite database, used by tests and
// by the edge intake's optional local spool.
func NewSQLiteConnector(log zerolog.Logger) ConnectorFunc {
	return func() (*gorm.DB, zerolog.Logger, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
			sqldb, _ := db.DB()
			sqldb.SetMaxOpenConns(1)
		}
		return db, log, err
	}
}

// New connects and migrates the schema, then wires the hypertable
// conversion (no-op on sqlite, see migrate.go).
func New(connect ConnectorFunc) (Store, error) {
	db, log, err := connect()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&SensorRow{}, &LocationHistoryRow{},
		&WaterLevelRow{}, &MoistureRow{}, &WeatherRow{},
		&ApiKeyRow{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate failed: %w", err)
	}

	if err := convertToHypertables(db, log); err != nil {
		return nil, err
	}

	return &gormStore{db: db, logger: log}, nil
}

func (s *gormStore) UpsertSensor(ctx context.Context, facts SensorFacts) (types.Sensor, error) {
	now := time.Now().UTC()

	row := SensorRow{
		ID:           string(facts.ID),
		Family:       string(facts.Family),
		Manufacturer: facts.Manufacturer,
		FirstSeen:    now,
		LastSeen:     now,
	}
	if facts.Location != nil {
		row.Latitude = &facts.Location.Latitude
		row.Longitude = &facts.Location.Longitude
	}
	if len(facts.Metadata) > 0 {
		b, _ := json.Marshal(facts.Metadata)
		row.Metadata = string(b)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sensor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_seen", "latitude", "longitude", "metadata", "manufacturer",
		}),
	}).Create(&row).Error
	if err != nil {
		return types.Sensor{}, types.NewError(types.KindTransientIO, "upsert sensor failed", err)
	}

	return s.GetSensor(ctx, facts.ID)
}

func (s *gormStore) GetSensor(ctx context.Context, id types.SensorID) (types.Sensor, error) {
	var row SensorRow
	err := s.db.WithContext(ctx).First(&row, "sensor_id = ?", string(id)).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.Sensor{}, types.NewError(types.KindNotFound, "sensor not found", err)
		}
		return types.Sensor{}, types.NewError(types.KindTransientIO, "get sensor failed", err)
	}
	return rowToSensor(row), nil
}

func (s *gormStore) ListSensors(ctx context.Context, family types.Family) ([]types.Sensor, error) {
	q := s.db.WithContext(ctx)
	if family != "" {
		q = q.Where("family = ?", string(family))
	}

	var rows []SensorRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.KindTransientIO, "list sensors failed", err)
	}

	out := make([]types.Sensor, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToSensor(r))
	}
	return out, nil
}

func rowToSensor(row SensorRow) types.Sensor {
	s := types.Sensor{
		ID:           types.SensorID(row.ID),
		Family:       types.Family(row.Family),
		Manufacturer: row.Manufacturer,
		FirstSeen:    row.FirstSeen,
		LastSeen:     row.LastSeen,
	}
	if row.Latitude != nil && row.Longitude != nil {
		s.Location = &types.LatLng{Latitude: *row.Latitude, Longitude: *row.Longitude}
	}
	if row.Metadata != "" {
		m := map[string]string{}
		_ = json.Unmarshal([]byte(row.Metadata), &m)
		s.Metadata = m
	}
	return s
}

func (s *gormStore) AppendLocationHistory(ctx context.Context, id types.SensorID, loc types.LatLng, at time.Time) error {
	row := LocationHistoryRow{SensorID: string(id), At: at, Latitude: loc.Latitude, Longitude: loc.Longitude}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.NewError(types.KindTransientIO, "append location history failed", err)
	}
	return nil
}

func (s *gormStore) LocationHistory(ctx context.Context, id types.SensorID) ([]types.LocationHistoryEntry, error) {
	var rows []LocationHistoryRow
	err := s.db.WithContext(ctx).Order("at asc").Find(&rows, "sensor_id = ?", string(id)).Error
	if err != nil {
		return nil, types.NewError(types.KindTransientIO, "location history query failed", err)
	}

	out := make([]types.LocationHistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.LocationHistoryEntry{
			SensorID: id,
			At:       r.At,
			Location: types.LatLng{Latitude: r.Latitude, Longitude: r.Longitude},
		})
	}
	return out, nil
}
