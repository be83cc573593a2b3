package edgehttp

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/munbon/telemetry-core/pkg/types"
)

// ringDropped counts envelopes evicted from the spool ring under sustained
// bus outage, surfaced on /metrics for the drop-oldest guarantee spec §4.4
// requires an operator be able to see.
var ringDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "munbon_edge_ring_dropped_total",
	Help: "Envelopes evicted from the edge intake's spool ring by drop-oldest eviction.",
})

// spoolRing is the bounded drop-oldest buffer from spec §4.4: a last-resort
// bridge over a transient bus outage, not a durability guarantee. Guarded
// by one mutex, matching the teacher's watchdogImpl's single point of
// shared-state synchronization rather than a lock-free structure.
type spoolRing struct {
	mu       sync.Mutex
	buf      []types.RawEnvelope
	capacity int
	dropped  uint64
}

func newSpoolRing(capacity int) *spoolRing {
	return &spoolRing{capacity: capacity, buf: make([]types.RawEnvelope, 0, capacity)}
}

// push appends env, dropping the oldest entry if the ring is full. Returns
// true if an entry was dropped.
func (r *spoolRing) push(env types.RawEnvelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := false
	if len(r.buf) >= r.capacity {
		r.buf = r.buf[1:]
		r.dropped++
		ringDropped.Inc()
		dropped = true
	}
	r.buf = append(r.buf, env)
	return dropped
}

// drain removes and returns everything currently spooled, for the
// background retry loop (Handler.RetrySpool) to re-publish once the bus
// recovers.
func (r *spoolRing) drain() []types.RawEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.buf
	r.buf = make([]types.RawEnvelope, 0, r.capacity)
	return out
}

func (r *spoolRing) droppedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
