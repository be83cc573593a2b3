// Package realtime implements C7: a best-effort, non-persistent fan-out of
// freshly-written readings and alerts to WebSocket subscribers and an MQTT
// mirror. Delivery is single-threaded per subscriber; the hub's internal
// fan-out may run concurrently.
package realtime

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// SubscriberBuffer is the bounded per-subscriber queue depth (spec §4.7).
// Past this, the oldest event is dropped and a synthetic slow_consumer
// event is delivered in its place.
const SubscriberBuffer = 1000

// Event is one message delivered to a subscriber: a topic plus its
// payload, matching the WebSocket subprotocol's {topic, payload} shape.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

type subscriber struct {
	id      uint64
	topics  map[string]bool
	out     chan Event
	mu      sync.Mutex
	dropped uint64
}

// Hub fans freshly-decoded readings and alerts out to topic subscribers.
// It implements consumer.Publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	mirrors []Mirror
	log     zerolog.Logger
}

// Mirror receives every published event alongside the hub's own
// subscribers, used by the MQTT bridge to rebroadcast at QoS 0.
type Mirror interface {
	Mirror(topic string, payload any)
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{subs: make(map[uint64]*subscriber), log: log}
}

// AddMirror registers a Mirror that receives every Publish call, in
// addition to the hub's own WebSocket subscribers.
func (h *Hub) AddMirror(m Mirror) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mirrors = append(h.mirrors, m)
}

// Publish implements consumer.Publisher. Every subscriber whose topic set
// matches topic receives the event; a subscriber whose buffer is full has
// its oldest event dropped in favor of a slow_consumer notice.
func (h *Hub) Publish(topic string, payload any) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	mirrors := h.mirrors
	h.mu.RUnlock()

	for _, s := range subs {
		if !s.matches(topic) {
			continue
		}
		s.deliver(Event{Topic: topic, Payload: payload}, h.log)
	}

	for _, m := range mirrors {
		m.Mirror(topic, payload)
	}
}

func (s *subscriber) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topics[topic] {
		return true
	}
	for t := range s.topics {
		if topicMatches(t, topic) {
			return true
		}
	}
	return false
}

// topicMatches supports a single trailing "*" wildcard segment, e.g.
// "sensors/water-level/*" matching "sensors/water-level/WL-ABC/data".
func topicMatches(pattern, topic string) bool {
	if !strings.HasSuffix(pattern, "*") {
		return false
	}
	return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
}

func (s *subscriber) deliver(ev Event, log zerolog.Logger) {
	select {
	case s.out <- ev:
		return
	default:
	}

	// buffer full: drop the oldest queued event to make exactly one slot,
	// then use it for a synthetic slow_consumer notice rather than the
	// triggering event, so the client always learns it fell behind even
	// under sustained overflow.
	select {
	case <-s.out:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		log.Warn().Uint64("subscriber", s.id).Msg("slow consumer, dropped oldest event")
	default:
	}

	select {
	case s.out <- Event{Topic: "slow_consumer", Payload: map[string]string{"reason": "buffer full"}}:
	default:
	}

	select {
	case s.out <- ev:
	default:
	}
}

// subscribe registers a new subscriber and returns its id plus the
// channel it should drain.
func (h *Hub) subscribe(topics []string) (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	s := &subscriber{id: id, topics: make(map[string]bool), out: make(chan Event, SubscriberBuffer)}
	for _, t := range topics {
		s.topics[t] = true
	}
	h.subs[id] = s
	return id, s.out
}

func (h *Hub) addTopics(id uint64, topics []string) {
	h.mu.RLock()
	s, ok := h.subs[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		s.topics[t] = true
	}
}

func (h *Hub) removeTopics(id uint64, topics []string) {
	h.mu.RLock()
	s, ok := h.subs[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		delete(s.topics, t)
	}
}

func (h *Hub) unsubscribeAll(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// SubscriberCount reports how many active WebSocket subscribers the hub is
// currently serving, for the operator stats surface.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
