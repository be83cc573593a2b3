package store

import (
	"context"
	"fmt"
	"time"

	"github.com/munbon/telemetry-core/pkg/types"
)

// statColumn maps the aggregate's requested stat field per family to the
// underlying column, keeping the SQL generation centralized instead of
// repeated per family in callers.
var statColumn = map[types.Family]map[string]string{
	types.FamilyWaterLevel: {"level_cm": "level_cm", "voltage_v": "voltage_v"},
	types.FamilyMoisture: {
		"moisture_surface_pct": "moisture_surface_pct",
		"moisture_deep_pct":    "moisture_deep_pct",
		"voltage_v":            "voltage_v",
	},
	types.FamilyWeather: {
		"rainfall_mm":   "rainfall_mm",
		"temperature_c": "temperature_c",
		"humidity_pct":  "humidity_pct",
	},
}

var aggregateTable = map[types.Family]string{
	types.FamilyWaterLevel: "water_level_rows",
	types.FamilyMoisture:   "moisture_rows",
	types.FamilyWeather:    "weather_rows",
}

type bucketRow struct {
	BucketStart time.Time
	Avg         float64
	Min         float64
	Max         float64
	Sum         float64
	Count       int64
}

// Aggregate computes one Bucket per time_bucket(bucket, time) window,
// grounded on spec §4.8's "avg/min/max/count per bucket" read-API
// requirement. Postgres uses TimescaleDB's time_bucket; sqlite (tests)
// falls back to a Go-side bucketing pass since it lacks that function.
func (s *gormStore) Aggregate(ctx context.Context, family types.Family, id types.SensorID, from, to time.Time, bucket time.Duration, stat string) ([]types.Bucket, error) {
	table, ok := aggregateTable[family]
	if !ok {
		return nil, types.NewError(types.KindValidation, "unknown family for aggregation", nil)
	}
	columns, ok := statColumn[family]
	if !ok {
		return nil, types.NewError(types.KindValidation, "no stat columns for family", nil)
	}
	column, ok := columns[stat]
	if !ok {
		return nil, types.NewError(types.KindValidation, fmt.Sprintf("unsupported stat %q for family %s", stat, family), nil)
	}

	if s.db.Name() == "postgres" {
		return s.aggregatePostgres(ctx, table, column, id, from, to, bucket, stat)
	}
	return s.aggregateFallback(ctx, table, column, id, from, to, bucket, stat)
}

func (s *gormStore) aggregatePostgres(ctx context.Context, table, column string, id types.SensorID, from, to time.Time, bucket time.Duration, stat string) ([]types.Bucket, error) {
	query := fmt.Sprintf(`
		SELECT time_bucket(?, time) AS bucket_start,
		       AVG(%[1]s) AS avg, MIN(%[1]s) AS min, MAX(%[1]s) AS max,
		       SUM(%[1]s) AS sum, COUNT(*) AS count
		FROM %[2]s
		WHERE sensor_id = ? AND time >= ? AND time <= ?
		GROUP BY bucket_start
		ORDER BY bucket_start ASC`, column, table)

	var rows []bucketRow
	err := s.db.WithContext(ctx).Raw(query, bucket, string(id), from, to).Scan(&rows).Error
	if err != nil {
		return nil, types.NewError(types.KindTransientIO, "aggregate query failed", err)
	}
	return bucketRowsToBuckets(rows, bucket, stat), nil
}

// aggregateFallback re-buckets in Go for backends without time_bucket
// (sqlite, used by tests). It pulls the raw rows in range and folds them
// into fixed-width windows anchored at `from`.
func (s *gormStore) aggregateFallback(ctx context.Context, table, column string, id types.SensorID, from, to time.Time, bucket time.Duration, stat string) ([]types.Bucket, error) {
	type rawRow struct {
		Time  time.Time
		Value float64
	}

	var raw []rawRow
	query := fmt.Sprintf(`SELECT time, %s AS value FROM %s WHERE sensor_id = ? AND time >= ? AND time <= ? ORDER BY time ASC`, column, table)
	if err := s.db.WithContext(ctx).Raw(query, string(id), from, to).Scan(&raw).Error; err != nil {
		return nil, types.NewError(types.KindTransientIO, "aggregate fallback query failed", err)
	}

	type acc struct {
		sum, min, max float64
		count         int64
	}
	buckets := map[int64]*acc{}
	order := []int64{}

	for _, r := range raw {
		idx := int64(r.Time.Sub(from) / bucket)
		a, ok := buckets[idx]
		if !ok {
			a = &acc{min: r.Value, max: r.Value}
			buckets[idx] = a
			order = append(order, idx)
		}
		a.sum += r.Value
		a.count++
		if r.Value < a.min {
			a.min = r.Value
		}
		if r.Value > a.max {
			a.max = r.Value
		}
	}

	out := make([]types.Bucket, 0, len(order))
	for _, idx := range order {
		a := buckets[idx]
		start := from.Add(time.Duration(idx) * bucket)
		out = append(out, types.Bucket{
			Start: start,
			End:   start.Add(bucket),
			Stats: map[string]float64{
				"avg":   a.sum / float64(a.count),
				"min":   a.min,
				"max":   a.max,
				"sum":   a.sum,
				"count": float64(a.count),
			},
		})
	}
	return out, nil
}

func bucketRowsToBuckets(rows []bucketRow, bucket time.Duration, stat string) []types.Bucket {
	out := make([]types.Bucket, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Bucket{
			Start: r.BucketStart,
			End:   r.BucketStart.Add(bucket),
			Stats: map[string]float64{
				"avg":   r.Avg,
				"min":   r.Min,
				"max":   r.Max,
				"sum":   r.Sum,
				"count": float64(r.Count),
			},
		})
	}
	return out
}
