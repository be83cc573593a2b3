package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/munbon/telemetry-core/pkg/types"
)

func hashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	key      types.ApiKey
	cachedAt time.Time
}

// keyCache mirrors the durable key table in memory for ttl, so a burst of
// requests against the same key costs one store round-trip (spec §4.9's
// "mirrored to memory with 60s TTL").
type keyCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]cacheEntry
}

func newKeyCache(ttl time.Duration) *keyCache {
	return &keyCache{ttl: ttl, m: make(map[string]cacheEntry)}
}

func (c *keyCache) get(hash string) (types.ApiKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.m[hash]
	if !ok || time.Since(entry.cachedAt) >= c.ttl {
		return types.ApiKey{}, false
	}
	return entry.key, true
}

func (c *keyCache) set(hash string, key types.ApiKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[hash] = cacheEntry{key: key, cachedAt: time.Now()}
}
