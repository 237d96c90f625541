package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"home-security/internal/domain"
)

type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Bus       BusConfig       `yaml:"bus"`
	HTTP      HTTPConfig      `yaml:"http"`
	Observers ObserversConfig `yaml:"observers"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Pushover  PushoverConfig  `yaml:"pushover"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Log       LogConfig       `yaml:"log"`
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	QoS            *int   `yaml:"qos"`
	ConnectTimeout string `yaml:"connect_timeout"`
	KeepAlive      string `yaml:"keep_alive"`
}

type BusConfig struct {
	// Transport is "mqtt" or "memory". The memory transport runs the device
	// simulator in-process.
	Transport      string        `yaml:"transport"`
	CommandTopic   string        `yaml:"command_topic"`
	StatusTopic    string        `yaml:"status_topic"`
	QueueSize      int           `yaml:"queue_size"`
	PublishTimeout string        `yaml:"publish_timeout"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Initial     string  `yaml:"initial"`
	Max         string  `yaml:"max"`
	Multiplier  float64 `yaml:"multiplier"`
	MaxAttempts int     `yaml:"max_attempts"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      int      `yaml:"rate_limit"`
	RateWindow     string   `yaml:"rate_window"`
	WriteTimeout   string   `yaml:"write_timeout"`
}

type ObserversConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

type DeviceConfig struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	InitialStatus string   `yaml:"initial_status"`
	Aliases       []string `yaml:"aliases"`
	Intents       []string `yaml:"intents"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type SimulatorConfig struct {
	MotionInterval string  `yaml:"motion_interval"`
	MotionJitter   string  `yaml:"motion_jitter"`
	MotionChance   float64 `yaml:"motion_chance"`
	MotionHold     string  `yaml:"motion_hold"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadEnv loads variables from a .env file. A missing file is not an error.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Catalog returns the configured devices, or the default catalog when none
// are configured.
func (c *Config) Catalog() domain.Catalog {
	if len(c.Devices) == 0 {
		return domain.DefaultCatalog()
	}

	catalog := make(domain.Catalog, 0, len(c.Devices))
	for _, d := range c.Devices {
		intents := make([]domain.Intent, len(d.Intents))
		for i, name := range d.Intents {
			intents[i] = domain.Intent(name)
		}
		catalog = append(catalog, domain.DeviceSpec{
			ID:            domain.DeviceID(d.ID),
			Name:          d.Name,
			InitialStatus: d.InitialStatus,
			Aliases:       d.Aliases,
			Intents:       intents,
		})
	}
	return catalog
}

// DurationOr parses value as a duration. Malformed values are logged under
// key and replaced by fallback.
func DurationOr(value string, fallback time.Duration, key string, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "key", key, "value", value, "default", fallback.String(), "error", err)
		return fallback
	}
	return d
}

func (c *Config) setDefaults() {
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "home-security-controller"
	}
	if c.MQTT.QoS == nil {
		qos := 1
		c.MQTT.QoS = &qos
	}
	if c.MQTT.ConnectTimeout == "" {
		c.MQTT.ConnectTimeout = "10s"
	}
	if c.MQTT.KeepAlive == "" {
		c.MQTT.KeepAlive = "30s"
	}
	if c.Bus.Transport == "" {
		c.Bus.Transport = "mqtt"
	}
	if c.Bus.CommandTopic == "" {
		c.Bus.CommandTopic = "home/security/command"
	}
	if c.Bus.StatusTopic == "" {
		c.Bus.StatusTopic = "home/security/status"
	}
	if c.Bus.QueueSize == 0 {
		c.Bus.QueueSize = 32
	}
	if c.Bus.PublishTimeout == "" {
		c.Bus.PublishTimeout = "2s"
	}
	if c.Bus.Backoff.Initial == "" {
		c.Bus.Backoff.Initial = "500ms"
	}
	if c.Bus.Backoff.Max == "" {
		c.Bus.Backoff.Max = "30s"
	}
	if c.Bus.Backoff.Multiplier == 0 {
		c.Bus.Backoff.Multiplier = 2
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 60
	}
	if c.HTTP.RateWindow == "" {
		c.HTTP.RateWindow = "1m"
	}
	if c.HTTP.WriteTimeout == "" {
		c.HTTP.WriteTimeout = "5s"
	}
	if c.Observers.BufferSize == 0 {
		c.Observers.BufferSize = 64
	}
	if c.Simulator.MotionInterval == "" {
		c.Simulator.MotionInterval = "10s"
	}
	if c.Simulator.MotionJitter == "" {
		c.Simulator.MotionJitter = "15s"
	}
	if c.Simulator.MotionChance == 0 {
		c.Simulator.MotionChance = 0.3
	}
	if c.Simulator.MotionHold == "" {
		c.Simulator.MotionHold = "5s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Bus.Transport {
	case "mqtt", "memory":
	default:
		return fmt.Errorf("bus.transport must be mqtt or memory, got %q", c.Bus.Transport)
	}
	if qos := *c.MQTT.QoS; qos < 0 || qos > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", qos)
	}

	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.ID == "" {
			return errors.New("device without id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate device id %q", d.ID)
		}
		seen[d.ID] = true
		for _, name := range d.Intents {
			intent := domain.Intent(name)
			if !intent.RequiresTarget() {
				return fmt.Errorf("device %q: %q is not a device command", d.ID, name)
			}
		}
	}
	return nil
}
