package bus

import (
	"context"
	"sync"

	"github.com/munbon/telemetry-core/pkg/types"
)

// MemoryBus is an in-process Bus used by C6's tests and by the edge
// intake's own tests, standing in for a running RabbitMQ broker the way
// the teacher's tests use database.NewSQLiteConnector in place of
// postgres.
type MemoryBus struct {
	mu         sync.Mutex
	queue      []*memoryMessage
	maxReceive int
	DeadLetters []types.RawEnvelope
}

type memoryMessage struct {
	env      types.RawEnvelope
	receives int
	acked    bool
}

func NewMemoryBus(maxReceive int) *MemoryBus {
	return &MemoryBus{maxReceive: maxReceive}
}

func (m *MemoryBus) Publish(_ context.Context, env types.RawEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, &memoryMessage{env: env})
	return nil
}

func (m *MemoryBus) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message, 64)
	go func() {
		defer close(out)
		delivered := make(map[*memoryMessage]bool)
		for {
			m.mu.Lock()
			var next *memoryMessage
			for _, msg := range m.queue {
				if !msg.acked && !delivered[msg] {
					next = msg
					break
				}
			}
			m.mu.Unlock()

			if next == nil {
				select {
				case <-ctx.Done():
					return
				default:
					return
				}
			}

			delivered[next] = true
			next.receives++
			select {
			case out <- Message{Envelope: next.env, Receives: next.receives, handle: next}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *MemoryBus) Ack(_ context.Context, msg Message) error {
	h, _ := msg.handle.(*memoryMessage)
	if h != nil {
		h.acked = true
	}
	return nil
}

func (m *MemoryBus) Nack(_ context.Context, msg Message, requeue bool) error {
	h, _ := msg.handle.(*memoryMessage)
	if h == nil {
		return nil
	}
	if !requeue || h.receives >= m.maxReceive {
		return m.deadLetter(h)
	}
	return nil
}

func (m *MemoryBus) DeadLetter(_ context.Context, msg Message, _ string) error {
	h, _ := msg.handle.(*memoryMessage)
	if h == nil {
		return nil
	}
	return m.deadLetter(h)
}

func (m *MemoryBus) deadLetter(h *memoryMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.acked = true
	m.DeadLetters = append(m.DeadLetters, h.env)
	return nil
}

func (m *MemoryBus) Close() error { return nil }
