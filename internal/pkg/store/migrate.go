package store

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// convertToHypertables issues the hypertable-style, chunk-interval-7-days
// conversion the read side relies on for compressed retention (spec's
// "hypertable-style, chunk interval 7 days"). TimescaleDB's
// create_hypertable is idempotent when called with if_not_exists, and the
// function simply does not exist on sqlite, so the call is best-effort and
// its absence is not a startup failure — raw SQL is used here alongside
// GORM, as in aggregate.go's queries, mirroring the teacher's db.Exec("PRAGMA
// foreign_keys = ON") pattern in NewSQLiteConnector.
func convertToHypertables(db *gorm.DB, log zerolog.Logger) error {
	if db.Name() != "postgres" {
		return nil
	}

	tables := []string{"water_level_rows", "moisture_rows", "weather_rows"}
	for _, t := range tables {
		stmt := "SELECT create_hypertable('" + t + "', 'time', chunk_time_interval => INTERVAL '7 days', if_not_exists => TRUE)"
		if err := db.Exec(stmt).Error; err != nil {
			log.Warn().Err(err).Str("table", t).Msg("create_hypertable failed, continuing with a plain table")
		}
	}
	return nil
}
