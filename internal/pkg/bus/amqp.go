package bus

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/pkg/types"
)

// AMQPConfig names the exchange/queue/dead-letter topology. MaxReceiveCount
// maps the "dead-letter redirect after N receives" requirement onto the
// main queue's x-delivery-count header, which RabbitMQ stamps on every
// redelivery of a quorum queue regardless of whether it was nacked with
// requeue=true or requeue=false. x-death only accumulates once a message
// has actually passed through a dead-letter exchange.
type AMQPConfig struct {
	URL              string
	Exchange         string
	Queue            string
	RoutingKey       string
	DeadLetterQueue  string
	MaxReceiveCount  int
	PrefetchCount    int
}

func DefaultAMQPConfig(url string) AMQPConfig {
	return AMQPConfig{
		URL:             url,
		Exchange:        "telemetry.ingest",
		Queue:           "telemetry.raw",
		RoutingKey:      "raw",
		DeadLetterQueue: "telemetry.raw.dlq",
		MaxReceiveCount: 5,
		PrefetchCount:   32,
	}
}

// AMQPBus is the RabbitMQ-backed Bus, grounded on the teacher's direct
// amqp091-go dependency for device-status topic consumption, generalized
// from a single status topic to a dead-lettered raw-envelope queue.
type AMQPBus struct {
	cfg  AMQPConfig
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

func NewAMQPBus(cfg AMQPConfig, log zerolog.Logger) (*AMQPBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPBus{cfg: cfg, conn: conn, ch: ch, log: log}, nil
}

func declareTopology(ch *amqp.Channel, cfg AMQPConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	dlxName := cfg.Exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlxName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue, cfg.RoutingKey, dlxName, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxName,
		"x-dead-letter-routing-key": cfg.RoutingKey,
		"x-queue-type":              "quorum",
	})
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

func (b *AMQPBus) Publish(ctx context.Context, env types.RawEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return types.NewError(types.KindFatal, "marshal envelope failed", err)
	}

	err = b.ch.PublishWithContext(ctx, b.cfg.Exchange, b.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return types.NewError(types.KindTransientIO, "publish envelope failed", err)
	}
	return nil
}

func (b *AMQPBus) Consume(ctx context.Context) (<-chan Message, error) {
	deliveries, err := b.ch.ConsumeWithContext(ctx, b.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, types.NewError(types.KindTransientIO, "consume failed", err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for d := range deliveries {
			var env types.RawEnvelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				b.log.Error().Err(err).Msg("dropping undecodable envelope from bus")
				_ = d.Nack(false, false)
				continue
			}

			select {
			case out <- Message{Envelope: env, Receives: receiveCount(d) + 1, handle: d}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// receiveCount reports how many times this message has already been
// delivered. The main queue is a quorum queue, so RabbitMQ maintains
// x-delivery-count itself and bumps it on every redelivery, including
// nack with requeue=true, which is what lets a message stuck nacking on a
// transient error still reach MaxReceiveCount. x-death is kept as a
// fallback for messages that arrive via the dead-letter exchange without
// a delivery-count header (e.g. a classic DLQ in front of an external
// consumer).
func receiveCount(d amqp.Delivery) int {
	if count, ok := d.Headers["x-delivery-count"].(int64); ok {
		return int(count)
	}

	deaths, ok := d.Headers["x-death"].([]any)
	if !ok || len(deaths) == 0 {
		return 0
	}
	first, ok := deaths[0].(amqp.Table)
	if !ok {
		return 0
	}
	count, ok := first["count"].(int64)
	if !ok {
		return 0
	}
	return int(count)
}

func (b *AMQPBus) Ack(ctx context.Context, msg Message) error {
	d, ok := msg.handle.(amqp.Delivery)
	if !ok {
		return types.NewError(types.KindFatal, "ack called on a message with no delivery handle", nil)
	}
	if err := d.Ack(false); err != nil {
		return types.NewError(types.KindTransientIO, "ack failed", err)
	}
	return nil
}

func (b *AMQPBus) Nack(ctx context.Context, msg Message, requeue bool) error {
	d, ok := msg.handle.(amqp.Delivery)
	if !ok {
		return types.NewError(types.KindFatal, "nack called on a message with no delivery handle", nil)
	}
	if err := d.Nack(false, requeue); err != nil {
		return types.NewError(types.KindTransientIO, "nack failed", err)
	}
	return nil
}

// DeadLetter rejects without requeue, which RabbitMQ routes to the
// dead-letter exchange declared in declareTopology.
func (b *AMQPBus) DeadLetter(ctx context.Context, msg Message, reason string) error {
	b.log.Warn().Str("reason", reason).Msg("dead-lettering envelope")
	return b.Nack(ctx, msg, false)
}

func (b *AMQPBus) Close() error {
	if err := b.ch.Close(); err != nil {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
