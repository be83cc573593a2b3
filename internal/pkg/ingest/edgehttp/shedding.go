package edgehttp

import (
	"sync"
	"time"
)

// sourceStat is one row of the per-source-ip shed table exposed by
// GET /api/stats/empty-payloads (spec §4.4).
type sourceStat struct {
	Count    int       `json:"count"`
	LastSeen time.Time `json:"lastSeen"`
}

// sheddingTable is a plain mutex-guarded map, the same guarded-shared-state
// shape as the teacher's watchdogImpl but without the background goroutine
// since there is nothing to poll here — every update happens inline on the
// request path.
type sheddingTable struct {
	mu      sync.Mutex
	sources map[string]*sourceStat
}

func newSheddingTable() *sheddingTable {
	return &sheddingTable{sources: make(map[string]*sourceStat)}
}

func (t *sheddingTable) record(sourceIP string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sources[sourceIP]
	if !ok {
		s = &sourceStat{}
		t.sources[sourceIP] = s
	}
	s.Count++
	s.LastSeen = time.Now().UTC()
}

func (t *sheddingTable) snapshot() map[string]sourceStat {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]sourceStat, len(t.sources))
	for ip, s := range t.sources {
		out[ip] = *s
	}
	return out
}
