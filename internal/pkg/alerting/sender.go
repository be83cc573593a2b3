// Package alerting delivers alert events to registered downstream HTTP
// subscribers as CloudEvents, mirroring the same alerts/* topics the
// real-time hub (C7) already fans out over WebSocket/MQTT.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/rs/zerolog"
)

const alertsTopicPrefix = "alerts/"
const eventType = "munbon.telemetry.alert"
const eventSource = "github.com/munbon/telemetry-core"

// Sender implements realtime.Mirror: it is registered on the hub alongside
// the WebSocket/MQTT mirrors, but only reacts to "alerts/*" topics.
type Sender struct {
	client      cloudevents.Client
	subscribers map[string][]Subscriber
	log         zerolog.Logger
}

// New builds a Sender from the loaded subscriber config. cfg may be nil,
// in which case Mirror is a no-op (no subscribers registered anywhere).
func New(cfg *Config, log zerolog.Logger) (*Sender, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}

	s := &Sender{client: client, subscribers: make(map[string][]Subscriber), log: log}
	if cfg != nil {
		for _, n := range cfg.Notifications {
			s.subscribers[n.Type] = n.Subscribers
		}
	}
	return s, nil
}

// Mirror implements realtime.Mirror. Non-alert topics and alert topics with
// no registered subscriber are ignored without error.
func (s *Sender) Mirror(topic string, payload any) {
	if !strings.HasPrefix(topic, alertsTopicPrefix) {
		return
	}

	severity, kind, ok := splitAlertTopic(topic)
	if !ok {
		return
	}

	subs := s.subscribers[severity+"."+kind]
	if len(subs) == 0 {
		subs = s.subscribers["*"]
	}
	if len(subs) == 0 {
		return
	}

	event := cloudevents.NewEvent()
	event.SetID(fmt.Sprintf("%s:%d", topic, time.Now().UnixNano()))
	event.SetTime(time.Now())
	event.SetSource(eventSource)
	event.SetType(eventType)
	event.SetExtension("severity", severity)
	event.SetExtension("kind", kind)
	if err := event.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("failed to encode alert event")
		return
	}

	for _, sub := range subs {
		ctx := cloudevents.ContextWithTarget(context.Background(), sub.Endpoint)
		result := s.client.Send(ctx, event)
		if cloudevents.IsUndelivered(result) {
			s.log.Error().Err(result).Str("endpoint", sub.Endpoint).Str("topic", topic).
				Msg("failed to deliver alert to subscriber")
		}
	}
}

func splitAlertTopic(topic string) (severity, kind string, ok bool) {
	rest := strings.TrimPrefix(topic, alertsTopicPrefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
