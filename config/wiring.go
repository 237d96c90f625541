package config

import (
	"log/slog"
	"time"

	"home-security/internal/application"
	"home-security/internal/infra"
	"home-security/internal/infra/bus"
	"home-security/internal/infra/mqtt"
	"home-security/internal/infra/pushover"
	"home-security/internal/infra/web"
	"home-security/internal/simulator"
)

func (c *Config) MQTTConfig(clientID string, logger *slog.Logger) mqtt.Config {
	return mqtt.Config{
		Broker:         c.MQTT.Broker,
		ClientID:       clientID,
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		QoS:            byte(*c.MQTT.QoS),
		ConnectTimeout: DurationOr(c.MQTT.ConnectTimeout, 10*time.Second, "mqtt.connect_timeout", logger),
		KeepAlive:      DurationOr(c.MQTT.KeepAlive, 30*time.Second, "mqtt.keep_alive", logger),
	}
}

func (c *Config) Backoff(logger *slog.Logger) infra.RetryConfig {
	def := infra.DefaultRetryConfig()
	return infra.RetryConfig{
		MaxAttempts:  c.Bus.Backoff.MaxAttempts,
		InitialDelay: DurationOr(c.Bus.Backoff.Initial, def.InitialDelay, "bus.backoff.initial", logger),
		MaxDelay:     DurationOr(c.Bus.Backoff.Max, def.MaxDelay, "bus.backoff.max", logger),
		Multiplier:   c.Bus.Backoff.Multiplier,
	}
}

func (c *Config) BridgeConfig(logger *slog.Logger) bus.Config {
	def := bus.DefaultConfig()
	return bus.Config{
		CommandTopic:   c.Bus.CommandTopic,
		StatusTopic:    c.Bus.StatusTopic,
		QueueSize:      c.Bus.QueueSize,
		PublishTimeout: DurationOr(c.Bus.PublishTimeout, def.PublishTimeout, "bus.publish_timeout", logger),
		Backoff:        c.Backoff(logger),
	}
}

func (c *Config) WebConfig(logger *slog.Logger) web.Config {
	return web.Config{
		Addr:           c.HTTP.Addr,
		AllowedOrigins: c.HTTP.AllowedOrigins,
		RateLimit:      c.HTTP.RateLimit,
		RateWindow:     DurationOr(c.HTTP.RateWindow, time.Minute, "http.rate_window", logger),
		WriteTimeout:   DurationOr(c.HTTP.WriteTimeout, 5*time.Second, "http.write_timeout", logger),
	}
}

func (c *Config) SimulatorConfig(logger *slog.Logger) simulator.Config {
	def := simulator.DefaultConfig()
	return simulator.Config{
		CommandTopic:   c.Bus.CommandTopic,
		StatusTopic:    c.Bus.StatusTopic,
		MotionInterval: DurationOr(c.Simulator.MotionInterval, def.MotionInterval, "simulator.motion_interval", logger),
		MotionJitter:   DurationOr(c.Simulator.MotionJitter, def.MotionJitter, "simulator.motion_jitter", logger),
		MotionChance:   c.Simulator.MotionChance,
		MotionHold:     DurationOr(c.Simulator.MotionHold, def.MotionHold, "simulator.motion_hold", logger),
		Backoff:        c.Backoff(logger),
	}
}

// Notifier returns the Pushover client when it is enabled and both
// credentials are set, and a LogNotifier otherwise.
func (c *Config) Notifier(logger *slog.Logger) application.Notifier {
	if c.Pushover.Enabled {
		client := pushover.NewClient(c.Pushover.Token, c.Pushover.UserKey)
		if client.Enabled() {
			return client
		}
		logger.Warn("pushover enabled without credentials, alerts go to the log")
	}
	return &application.LogNotifier{Logger: logger}
}
