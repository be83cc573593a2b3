// Package consumer implements C6: the ingest consumer. It drains the bus,
// decodes each envelope (C1), upserts the registry (C3), writes the
// reading (C2), derives and publishes alerts, publishes the fresh reading
// to the real-time fan-out (C7), and acknowledges.
package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/bus"
	"github.com/munbon/telemetry-core/internal/pkg/codec"
	"github.com/munbon/telemetry-core/internal/pkg/registry"
	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/munbon/telemetry-core/pkg/types"
)

// Publisher is the narrow surface C7's hub exposes to the consumer, kept
// here so this package does not import internal/pkg/realtime.
type Publisher interface {
	Publish(topic string, payload any)
}

// DefaultWorkers matches spec §4.6's "pool of N worker tasks (configurable,
// default 8)".
const DefaultWorkers = 8

// MaxReceiveCount is the redelivery count past which a message is
// dead-lettered regardless of reason (spec §4.6).
const MaxReceiveCount = 5

// ShutdownGrace is how long in-flight workers get to finish after Run's
// context is cancelled (spec §4.6 "Cancellation and shutdown").
const ShutdownGrace = 30 * time.Second

type Consumer struct {
	bus      bus.Bus
	reg      *registry.Registry
	store    store.Store
	resolver FamilyResolver
	pub      Publisher
	workers  int
	log      zerolog.Logger

	duplicates   uint64
	deadLettered uint64
	mu           sync.Mutex
}

func New(b bus.Bus, reg *registry.Registry, s store.Store, resolver FamilyResolver, pub Publisher, workers int, log zerolog.Logger) *Consumer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Consumer{bus: b, reg: reg, store: s, resolver: resolver, pub: pub, workers: workers, log: log}
}

// Run blocks until ctx is cancelled, then waits up to ShutdownGrace for
// in-flight work to finish before returning. Messages still in flight past
// the grace window are left un-acked and reappear on the bus after the
// broker's visibility timeout, matching spec's at-least-once contract.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.bus.Consume(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range messages {
				c.process(ctx, msg)
			}
		}()
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		c.log.Warn().Msg("shutdown grace period elapsed with workers still in flight")
	}

	return nil
}

func (c *Consumer) process(ctx context.Context, msg bus.Message) {
	family, ok := c.resolver.Resolve(msg.Envelope)
	if !ok {
		c.deadLetter(ctx, msg, "unknown_token")
		return
	}

	decoder, ok := codec.Dispatch(family)
	if !ok {
		c.deadLetter(ctx, msg, "unknown_token")
		return
	}

	result, err := decoder.Decode(msg.Envelope)
	if err != nil {
		c.handleDecodeError(ctx, msg, err)
		return
	}

	now := time.Now().UTC()
	for _, facts := range result.Facts {
		sf := store.SensorFacts{ID: facts.ID, Family: facts.Family, Manufacturer: facts.Manufacturer, Location: facts.Location, Metadata: facts.Metadata}
		if _, err := c.reg.Observe(ctx, sf, now); err != nil {
			c.nackTransient(ctx, msg, err)
			return
		}
	}

	if err := c.storeAndPublish(ctx, result); err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			c.mu.Lock()
			c.duplicates++
			c.mu.Unlock()
		} else {
			c.nackTransient(ctx, msg, err)
			return
		}
	}

	if err := c.bus.Ack(ctx, msg); err != nil {
		c.log.Error().Err(err).Msg("ack failed")
	}
}

func (c *Consumer) storeAndPublish(ctx context.Context, result codec.Result) error {
	for _, r := range result.WaterLevel {
		if err := c.store.WriteWaterLevel(ctx, r); err != nil && !errors.Is(err, types.ErrDuplicate) {
			return err
		} else if err == nil {
			c.pub.Publish(dataTopic(types.FamilyWaterLevel, r.SensorID), r)
			for _, a := range deriveWaterLevelAlerts(r) {
				c.pub.Publish(a.Topic(), a.Reading)
			}
		} else {
			return err
		}
	}

	for _, r := range result.Moisture {
		if err := c.store.WriteMoisture(ctx, r); err != nil && !errors.Is(err, types.ErrDuplicate) {
			return err
		} else if err == nil {
			c.pub.Publish(dataTopic(types.FamilyMoisture, r.SensorID), r)
			for _, a := range deriveMoistureAlerts(r) {
				c.pub.Publish(a.Topic(), a.Reading)
			}
		} else {
			return err
		}
	}

	for _, r := range result.Weather {
		if err := c.store.WriteWeather(ctx, r); err != nil && !errors.Is(err, types.ErrDuplicate) {
			return err
		} else if err == nil {
			c.pub.Publish(dataTopic(types.FamilyWeather, r.SensorID), r)
		} else {
			return err
		}
	}

	return nil
}

func dataTopic(family types.Family, id types.SensorID) string {
	return "sensors/" + string(family) + "/" + string(id) + "/data"
}

// handleDecodeError implements spec §4.6's dead-letter routing: decode
// failures with reasons unknown_token, shape_mismatch or missing_identity
// go straight to the dead-letter stream; empty_payload is acked as a no-op;
// bad_timestamp and any other reason fall through to the shared
// max-receive-count check below since they may be transient vendor clock
// skew rather than a permanently bad payload.
func (c *Consumer) handleDecodeError(ctx context.Context, msg bus.Message, err error) {
	var decErr *types.Error
	if e, ok := err.(*types.Error); ok {
		decErr = e
	}
	if decErr == nil {
		c.deadLetter(ctx, msg, "decode_error")
		return
	}

	switch decErr.Reason {
	case types.ReasonUnknownToken, types.ReasonShapeMismatch, types.ReasonMissingIdentity:
		c.deadLetter(ctx, msg, string(decErr.Reason))
	case types.ReasonEmptyPayload:
		if err := c.bus.Ack(ctx, msg); err != nil {
			c.log.Error().Err(err).Msg("ack of empty-payload envelope failed")
		}
	default:
		if msg.Receives >= MaxReceiveCount {
			c.deadLetter(ctx, msg, string(decErr.Reason))
			return
		}
		if err := c.bus.Nack(ctx, msg, true); err != nil {
			c.log.Error().Err(err).Msg("nack failed")
		}
	}
}

func (c *Consumer) nackTransient(ctx context.Context, msg bus.Message, err error) {
	if msg.Receives >= MaxReceiveCount {
		c.deadLetter(ctx, msg, "max_receive_count_exceeded")
		return
	}
	c.log.Warn().Err(err).Msg("transient failure, message will be redelivered")
	if nackErr := c.bus.Nack(ctx, msg, true); nackErr != nil {
		c.log.Error().Err(nackErr).Msg("nack failed")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg bus.Message, reason string) {
	c.mu.Lock()
	c.deadLettered++
	c.mu.Unlock()
	if err := c.bus.DeadLetter(ctx, msg, reason); err != nil {
		c.log.Error().Err(err).Msg("dead-letter failed")
	}
}

// Stats returns the duplicate/dead-letter counters this consumer has
// observed, for the operator metrics surface (ingest_duplicates_total,
// ingest_dlq_total).
func (c *Consumer) Stats() (duplicates, deadLettered uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duplicates, c.deadLettered
}
