// Package bus defines the transport-agnostic interface the ingest consumer
// (C6) drains and the edge/cloud intake (C4/C5) publish to. Spec.md's SQS
// vocabulary ("visibility timeout", "dead-letter redirect after N
// receives") is implemented by the concrete RabbitMQ adapter in amqp.go
// using native dead-letter-exchange semantics; this interface stays
// broker-agnostic so tests can swap in an in-memory fake.
package bus

import (
	"context"

	"github.com/munbon/telemetry-core/pkg/types"
)

// Message wraps one RawEnvelope in transit plus the delivery handle needed
// to Ack/Nack it.
type Message struct {
	Envelope types.RawEnvelope
	Receives int // how many times this delivery (or its redeliveries) has been seen
	handle   any
}

// Bus is implemented by the concrete broker adapter. Publish is used by
// C4/C5 to enqueue; Consume, Ack, Nack and DeadLetter are used by C6.
type Bus interface {
	Publish(ctx context.Context, env types.RawEnvelope) error
	Consume(ctx context.Context) (<-chan Message, error)
	Ack(ctx context.Context, msg Message) error
	Nack(ctx context.Context, msg Message, requeue bool) error
	DeadLetter(ctx context.Context, msg Message, reason string) error
	Close() error
}
