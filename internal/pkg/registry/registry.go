// Package registry implements C3: the sensor registry. Every decoded
// reading's SensorFacts passes through Observe, which upserts the sensor
// row, detects location drift, and keeps an LRU view warm for the read API
// and the ingest consumer's per-message lookups.
package registry

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/munbon/telemetry-core/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Capacity is the in-memory LRU size named by spec §4.3.
const Capacity = 50_000

// StaleAfter is how long a cached entry is trusted before Get triggers a
// coalesced refresh from the store.
const StaleAfter = 60 * time.Second

// DriftThresholdMeters is the minimum movement between two observations of
// the same sensor before a LocationHistoryEntry is appended.
const DriftThresholdMeters = 50.0

const shardCount = 16

type cacheEntry struct {
	sensor   types.Sensor
	cachedAt time.Time
}

// Registry wraps the C2 store with an LRU cache, 16 sharded mutexes (hash
// of id mod 16, per spec §5 "Shared resources"), and single-flight
// coalescing of Get's stale-refresh path so a burst of concurrent Get
// calls for one sensor id triggers exactly one store round-trip. Observe
// always goes to the store.
type Registry struct {
	store  store.Store
	cache  *lru.Cache[types.SensorID, cacheEntry]
	shards [shardCount]sync.Mutex
	group  singleflight.Group
}

func New(s store.Store) (*Registry, error) {
	cache, err := lru.New[types.SensorID, cacheEntry](Capacity)
	if err != nil {
		return nil, err
	}
	return &Registry{store: s, cache: cache}, nil
}

func (r *Registry) shardFor(id types.SensorID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.shards[h.Sum32()%shardCount]
}

// Observe upserts the sensor row from freshly decoded facts and appends a
// LocationHistoryEntry if the new location drifts more than
// DriftThresholdMeters from the last known fix (spec §4.3).
func (r *Registry) Observe(ctx context.Context, facts store.SensorFacts, at time.Time) (types.Sensor, error) {
	mu := r.shardFor(facts.ID)
	mu.Lock()
	defer mu.Unlock()

	previous, err := r.store.GetSensor(ctx, facts.ID)
	hadPrevious := err == nil

	sensor, err := r.store.UpsertSensor(ctx, facts)
	if err != nil {
		return types.Sensor{}, err
	}

	if facts.Location != nil && hadPrevious && previous.Location != nil {
		if HaversineMeters(*previous.Location, *facts.Location) > DriftThresholdMeters {
			if err := r.store.AppendLocationHistory(ctx, facts.ID, *facts.Location, at); err != nil {
				return sensor, err
			}
		}
	} else if facts.Location != nil && !hadPrevious {
		if err := r.store.AppendLocationHistory(ctx, facts.ID, *facts.Location, at); err != nil {
			return sensor, err
		}
	}

	r.cache.Add(facts.ID, cacheEntry{sensor: sensor, cachedAt: time.Now()})
	return sensor, nil
}

// Get returns the sensor, refreshing from the store when the cached entry
// is absent or older than StaleAfter. Concurrent Get calls for the same
// stale id share one store round-trip via singleflight.
func (r *Registry) Get(ctx context.Context, id types.SensorID) (types.Sensor, error) {
	if entry, ok := r.cache.Get(id); ok && time.Since(entry.cachedAt) < StaleAfter {
		return entry.sensor, nil
	}

	v, err, _ := r.group.Do(string(id), func() (any, error) {
		sensor, err := r.store.GetSensor(ctx, id)
		if err != nil {
			return types.Sensor{}, err
		}
		r.cache.Add(id, cacheEntry{sensor: sensor, cachedAt: time.Now()})
		return sensor, nil
	})
	if err != nil {
		return types.Sensor{}, err
	}
	return v.(types.Sensor), nil
}

// List delegates to the store; it is not cached since call sites (sensor
// listing endpoints) already paginate and filter server-side.
func (r *Registry) List(ctx context.Context, family types.Family) ([]types.Sensor, error) {
	return r.store.ListSensors(ctx, family)
}

// LocationHistory delegates to the store's append-only log.
func (r *Registry) LocationHistory(ctx context.Context, id types.SensorID) ([]types.LocationHistoryEntry, error) {
	return r.store.LocationHistory(ctx, id)
}
