package realtime

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTMirror republishes every hub event to an external MQTT broker at
// QoS 0, mirroring spec §4.7's "MQTT mirror publishes the same topics".
// The core never runs the broker itself, only connects to one as a
// client, matching spec's "does not itself terminate TLS" posture.
type MQTTMirror struct {
	client mqtt.Client
	log    zerolog.Logger
}

func NewMQTTMirror(brokerURL, clientID string, log zerolog.Logger) (*MQTTMirror, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return &MQTTMirror{client: client, log: log}, nil
}

// Mirror implements realtime.Mirror.
func (m *MQTTMirror) Mirror(topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		m.log.Error().Err(err).Str("topic", topic).Msg("failed to marshal mqtt mirror payload")
		return
	}
	token := m.client.Publish(topic, 0, false, body)
	go func() {
		if token.Wait() && token.Error() != nil {
			m.log.Warn().Err(token.Error()).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

func (m *MQTTMirror) Close() {
	m.client.Disconnect(250)
}
