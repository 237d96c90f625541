// Package mqtt implements the bus transport on top of the Eclipse Paho client.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"home-security/internal/infra/bus"
)

var ErrNotConnected = errors.New("mqtt client not connected")

type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// Transport is a single MQTT session. Reconnection is left to the bus bridge,
// so paho's own auto-reconnect stays off.
type Transport struct {
	cfg    Config
	client paho.Client
	lost   chan error
	logger *slog.Logger
}

func NewTransport(cfg Config, logger *slog.Logger) *Transport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}

	t := &Transport{
		cfg:    cfg,
		lost:   make(chan error, 1),
		logger: logger,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectionLostHandler(t.onConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	t.client = paho.NewClient(opts)
	return t
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.logger.Warn("mqtt connection lost", "broker", t.cfg.Broker, "error", err)
	select {
	case t.lost <- err:
	default:
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	if t.client.IsConnected() {
		return nil
	}

	select {
	case <-t.lost:
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	if err := wait(ctx, t.client.Connect()); err != nil {
		return fmt.Errorf("connecting to %s: %w", t.cfg.Broker, err)
	}

	t.logger.Info("mqtt connected", "broker", t.cfg.Broker, "client_id", t.cfg.ClientID)
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string, handler bus.MessageHandler) error {
	if !t.client.IsConnected() {
		return ErrNotConnected
	}

	token := t.client.Subscribe(topic, t.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		handler(msg.Payload())
	})
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, topic string) error {
	if !t.client.IsConnected() {
		return nil
	}
	if err := wait(ctx, t.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if !t.client.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(ctx, t.client.Publish(topic, t.cfg.QoS, false, payload)); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) ConnectionLost() <-chan error {
	return t.lost
}

func (t *Transport) Disconnect() {
	if t.client.IsConnected() {
		t.client.Disconnect(250)
	}
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
