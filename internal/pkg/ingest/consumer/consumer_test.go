package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/bus"
	"github.com/munbon/telemetry-core/internal/pkg/registry"
	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/munbon/telemetry-core/pkg/types"
)

type fakePublisher struct {
	published map[string][]any
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][]any)}
}

func (f *fakePublisher) Publish(topic string, payload any) {
	f.published[topic] = append(f.published[topic], payload)
}

func newTestConsumer(t *testing.T, b bus.Bus, pub Publisher, workers int) (*Consumer, store.Store, *registry.Registry) {
	t.Helper()
	s, err := store.New(store.NewSQLiteConnector(zerolog.Nop()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reg, err := registry.New(s)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	resolver := MultiResolver{types.TransportEdgeHTTP: EdgeFamilyResolver{}}
	return New(b, reg, s, resolver, pub, workers, zerolog.Nop()), s, reg
}

func waterLevelEnvelope(body string) types.RawEnvelope {
	return types.RawEnvelope{
		ReceivedAt:  time.Now().UTC(),
		Transport:   types.TransportEdgeHTTP,
		Token:       "water-level/munbon-ridr-water-level",
		VendorBody:  []byte(body),
		ContentType: "application/json",
	}
}

func TestProcessDecodeFailureGoesToDeadLetter(t *testing.T) {
	is := is.New(t)
	b := bus.NewMemoryBus(5)
	pub := newFakePublisher()
	c, _, _ := newTestConsumer(t, b, pub, 1)

	is.NoErr(b.Publish(context.Background(), waterLevelEnvelope(`{not json`)))

	ch, err := b.Consume(context.Background())
	is.NoErr(err)
	msg := <-ch

	c.process(context.Background(), msg)

	is.Equal(len(b.DeadLetters), 1)
}

func TestProcessMissingIdentityGoesToDeadLetter(t *testing.T) {
	is := is.New(t)
	b := bus.NewMemoryBus(5)
	pub := newFakePublisher()
	c, _, _ := newTestConsumer(t, b, pub, 1)

	body := `{"deviceID":"abc","latitude":13.75,"longitude":100.50,"voltage":420,"level":15,"timestamp":1748841346551}`
	is.NoErr(b.Publish(context.Background(), waterLevelEnvelope(body)))

	ch, err := b.Consume(context.Background())
	is.NoErr(err)
	msg := <-ch

	c.process(context.Background(), msg)

	is.Equal(len(b.DeadLetters), 1)
	_, deadLettered := c.Stats()
	is.Equal(deadLettered, uint64(1))
}

func TestProcessHappyPathStoresAndPublishes(t *testing.T) {
	is := is.New(t)
	b := bus.NewMemoryBus(5)
	pub := newFakePublisher()
	c, s, _ := newTestConsumer(t, b, pub, 1)

	body := `{"deviceID":"abc","macAddress":"1A2B3C4D5E6F","latitude":13.75,"longitude":100.50,"RSSI":-65,"voltage":420,"level":15,"timestamp":1748841346551}`
	is.NoErr(b.Publish(context.Background(), waterLevelEnvelope(body)))

	ch, err := b.Consume(context.Background())
	is.NoErr(err)
	msg := <-ch

	c.process(context.Background(), msg)

	is.Equal(len(b.DeadLetters), 0)

	reading, err := s.LatestWaterLevel(context.Background(), "WL-1A2B3C4D5E6F")
	is.NoErr(err)
	is.Equal(reading.LevelCM, 15.0)

	is.True(len(pub.published["sensors/water_level/WL-1A2B3C4D5E6F/data"]) == 1)
}

func TestProcessWaterHighTriggersAlert(t *testing.T) {
	is := is.New(t)
	b := bus.NewMemoryBus(5)
	pub := newFakePublisher()
	c, _, _ := newTestConsumer(t, b, pub, 1)

	body := `{"deviceID":"abc","macAddress":"2A2B3C4D5E6F","latitude":13.75,"longitude":100.50,"RSSI":-65,"voltage":420,"level":30,"timestamp":1748841346551}`
	is.NoErr(b.Publish(context.Background(), waterLevelEnvelope(body)))

	ch, err := b.Consume(context.Background())
	is.NoErr(err)
	msg := <-ch

	c.process(context.Background(), msg)

	is.True(len(pub.published["alerts/critical/water_high"]) == 1)
}

func TestProcessDuplicateWriteIsAckedNotDeadLettered(t *testing.T) {
	is := is.New(t)
	b := bus.NewMemoryBus(5)
	pub := newFakePublisher()
	c, _, _ := newTestConsumer(t, b, pub, 1)

	body := `{"deviceID":"abc","macAddress":"3A2B3C4D5E6F","latitude":13.75,"longitude":100.50,"RSSI":-65,"voltage":420,"level":15,"timestamp":1748841346551}`

	is.NoErr(b.Publish(context.Background(), waterLevelEnvelope(body)))
	ch, err := b.Consume(context.Background())
	is.NoErr(err)
	first := <-ch
	c.process(context.Background(), first)

	is.NoErr(b.Publish(context.Background(), waterLevelEnvelope(body)))
	ch2, err := b.Consume(context.Background())
	is.NoErr(err)
	second := <-ch2
	c.process(context.Background(), second)

	is.Equal(len(b.DeadLetters), 0)
	duplicates, _ := c.Stats()
	is.Equal(duplicates, uint64(1))
}

func TestProcessExceedingMaxReceiveCountDeadLetters(t *testing.T) {
	is := is.New(t)
	b := bus.NewMemoryBus(MaxReceiveCount + 1)
	pub := newFakePublisher()
	c, _, _ := newTestConsumer(t, b, pub, 1)

	// bad timestamp falls into handleDecodeError's default branch; at or
	// past MaxReceiveCount that branch dead-letters instead of nacking,
	// regardless of the decode reason.
	body := `{"deviceID":"abc","macAddress":"4A2B3C4D5E6F","latitude":13.75,"longitude":100.50,"voltage":420,"level":15,"timestamp":0}`
	msg := bus.Message{Envelope: waterLevelEnvelope(body), Receives: MaxReceiveCount}

	c.process(context.Background(), msg)

	_, deadLettered := c.Stats()
	is.Equal(deadLettered, uint64(1))
}
