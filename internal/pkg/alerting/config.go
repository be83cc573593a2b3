package alerting

import (
	"io"

	yaml "gopkg.in/yaml.v2"
)

// Subscriber is one downstream HTTP endpoint registered to receive a class
// of alerts as CloudEvents.
type Subscriber struct {
	Endpoint string `yaml:"endpoint"`
}

// Notification groups the subscribers for one alert severity/kind class,
// e.g. "critical.water_high".
type Notification struct {
	Type        string       `yaml:"type"`
	Subscribers []Subscriber `yaml:"subscribers"`
}

// Config is the subscriber registry loaded at startup.
type Config struct {
	Notifications []Notification `yaml:"notifications"`
}

// LoadConfiguration reads the subscriber registry from YAML.
func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
