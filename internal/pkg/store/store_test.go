package store

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/munbon/telemetry-core/pkg/types"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := New(NewSQLiteConnector(zerolog.Nop()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestUpsertSensorThenGet(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	loc := types.LatLng{Latitude: 13.75, Longitude: 100.5}
	_, err := s.UpsertSensor(ctx, SensorFacts{
		ID:       "WL-UPSERT01",
		Family:   types.FamilyWaterLevel,
		Location: &loc,
		Metadata: map[string]string{"deviceID": "abc"},
	})
	is.NoErr(err)

	sensor, err := s.GetSensor(ctx, "WL-UPSERT01")
	is.NoErr(err)
	is.Equal(sensor.Family, types.FamilyWaterLevel)
	is.Equal(sensor.Metadata["deviceID"], "abc")
	is.True(sensor.Location != nil)
}

func TestUpsertSensorRefreshesLastSeen(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSensor(ctx, SensorFacts{ID: "GW-REFRESH01", Family: types.FamilyGateway})
	is.NoErr(err)
	first, _ := s.GetSensor(ctx, "GW-REFRESH01")

	time.Sleep(2 * time.Millisecond)
	_, err = s.UpsertSensor(ctx, SensorFacts{ID: "GW-REFRESH01", Family: types.FamilyGateway})
	is.NoErr(err)
	second, _ := s.GetSensor(ctx, "GW-REFRESH01")

	is.True(second.LastSeen.After(first.LastSeen) || second.LastSeen.Equal(first.LastSeen))
}

func TestWriteWaterLevelThenLatestAndSeries(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 7, 55, 46, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := s.WriteWaterLevel(ctx, types.WaterLevelReading{
			Reading: types.Reading{
				Time:     base.Add(time.Duration(i) * time.Minute),
				SensorID: "WL-SERIES01",
				Quality:  1.0,
			},
			LevelCM:  float64(10 + i),
			VoltageV: 4.2,
		})
		is.NoErr(err)
	}

	latest, err := s.LatestWaterLevel(ctx, "WL-SERIES01")
	is.NoErr(err)
	is.Equal(latest.LevelCM, 12.0)

	series, err := s.SeriesWaterLevel(ctx, "WL-SERIES01", base, base.Add(10*time.Minute), 0)
	is.NoErr(err)
	is.Equal(len(series), 3)
}

func TestWriteWaterLevelDuplicateIsIdempotent(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	r := types.WaterLevelReading{
		Reading: types.Reading{
			Time:     time.Date(2025, 6, 2, 7, 55, 46, 551000000, time.UTC),
			SensorID: "WL-DUP01",
			Quality:  1.0,
		},
		LevelCM:  15,
		VoltageV: 4.2,
	}

	is.NoErr(s.WriteWaterLevel(ctx, r))

	err := s.WriteWaterLevel(ctx, r)
	is.True(err != nil)

	var typedErr *types.Error
	ok := false
	if e, isErr := err.(*types.Error); isErr {
		typedErr = e
		ok = true
	}
	is.True(ok)
	is.Equal(typedErr.Kind, types.KindDuplicate)

	series, _ := s.SeriesWaterLevel(ctx, "WL-DUP01", r.Time.Add(-time.Minute), r.Time.Add(time.Minute), 0)
	is.Equal(len(series), 1)
}

func TestAggregateFallbackBucketsBySqlite(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	levels := []float64{10, 12, 20, 22}
	for i, l := range levels {
		err := s.WriteWaterLevel(ctx, types.WaterLevelReading{
			Reading: types.Reading{
				Time:     base.Add(time.Duration(i) * 30 * time.Minute),
				SensorID: "WL-AGG",
				Quality:  1.0,
			},
			LevelCM: l,
		})
		is.NoErr(err)
	}

	buckets, err := s.Aggregate(ctx, types.FamilyWaterLevel, "WL-AGG", base, base.Add(2*time.Hour), time.Hour, "level_cm")
	is.NoErr(err)
	is.Equal(len(buckets), 2)
	is.Equal(buckets[0].Stats["avg"], 11.0)
	is.Equal(buckets[1].Stats["avg"], 21.0)
}

func TestApiKeyRoundTrip(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	key := types.ApiKey{
		ID:              "key-1",
		Tenant:          "munbon",
		Tier:            types.TierPremium,
		AllowedFamilies: []types.Family{types.FamilyWaterLevel, types.FamilyMoisture},
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	is.NoErr(s.CreateApiKey(ctx, key, "hash-abc"))

	fetched, err := s.GetApiKeyByHash(ctx, "hash-abc")
	is.NoErr(err)
	is.Equal(fetched.Tenant, "munbon")
	is.Equal(len(fetched.AllowedFamilies), 2)

	is.NoErr(s.TouchApiKey(ctx, "key-1", time.Now().UTC()))
	touched, err := s.GetApiKeyByHash(ctx, "hash-abc")
	is.NoErr(err)
	is.Equal(touched.UsageCount, uint64(1))
}

func TestLocationHistory(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now().UTC()
	is.NoErr(s.AppendLocationHistory(ctx, "WL-LOCHIST01", types.LatLng{Latitude: 13.75, Longitude: 100.5}, at))
	is.NoErr(s.AppendLocationHistory(ctx, "WL-LOCHIST01", types.LatLng{Latitude: 13.76, Longitude: 100.51}, at.Add(time.Hour)))

	hist, err := s.LocationHistory(ctx, "WL-LOCHIST01")
	is.NoErr(err)
	is.Equal(len(hist), 2)
}
