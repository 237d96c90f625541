package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"home-security/internal/domain"
	"home-security/internal/infra"
	"home-security/internal/infra/metrics"
)

const (
	DefaultCommandTopic = "home/security/command"
	DefaultStatusTopic  = "home/security/status"
)

type Config struct {
	CommandTopic   string
	StatusTopic    string
	QueueSize      int
	PublishTimeout time.Duration
	Backoff        infra.RetryConfig
}

func DefaultConfig() Config {
	return Config{
		CommandTopic:   DefaultCommandTopic,
		StatusTopic:    DefaultStatusTopic,
		QueueSize:      32,
		PublishTimeout: 2 * time.Second,
		Backoff:        infra.DefaultRetryConfig(),
	}
}

// StatusApplier is the part of the device state store the bridge writes to.
type StatusApplier interface {
	Apply(update domain.StatusUpdate) (bool, domain.DeviceState, error)
}

type StateFunc func(state ConnState)

type outbound struct {
	ctx     context.Context
	intent  domain.Intent
	payload []byte
	result  chan error
}

// Bridge publishes commands and feeds status messages into the state store.
// All transport calls after startup happen on the goroutine running Run.
type Bridge struct {
	transport Transport
	store     StatusApplier
	catalog   domain.Catalog
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics

	queue     chan *outbound
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	state     ConnState
	listeners []StateFunc
}

func NewBridge(
	transport Transport,
	store StatusApplier,
	catalog domain.Catalog,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	if cfg.CommandTopic == "" {
		cfg.CommandTopic = DefaultCommandTopic
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = DefaultStatusTopic
	}

	return &Bridge{
		transport: transport,
		store:     store,
		catalog:   catalog,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		queue:     make(chan *outbound, cfg.QueueSize),
		done:      make(chan struct{}),
		state:     StateDisconnected,
	}
}

func (b *Bridge) State() ConnState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// OnStateChange registers fn for every connection state transition. fn runs
// on the bridge goroutine and must not block.
func (b *Bridge) OnStateChange(fn StateFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *Bridge) setState(state ConnState) {
	b.mu.Lock()
	if b.state == state || b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	prev := b.state
	b.state = state
	listeners := make([]StateFunc, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	b.metrics.BusConnected(state == StateConnected)
	b.logger.Info("bus state changed", "from", prev.String(), "to", state.String())

	for _, fn := range listeners {
		fn(state)
	}
}

// Publish validates and queues cmd for the command topic. It waits until the
// transport accepted the payload, the publish timeout expired or ctx ended.
// A full queue or a closed bridge fails immediately.
func (b *Bridge) Publish(ctx context.Context, cmd domain.Command) error {
	if err := b.validate(cmd); err != nil {
		b.metrics.CommandPublished(string(cmd.Intent), "rejected")
		return err
	}

	payload, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}

	if b.State() == StateClosed {
		b.metrics.CommandPublished(string(cmd.Intent), "closed")
		return &domain.TransportError{Op: "publish", Err: domain.ErrBridgeClosed}
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()

	item := &outbound{
		ctx:     ctx,
		intent:  cmd.Intent,
		payload: payload,
		result:  make(chan error, 1),
	}

	select {
	case b.queue <- item:
	case <-b.done:
		b.metrics.CommandPublished(string(cmd.Intent), "closed")
		return &domain.TransportError{Op: "publish", Err: domain.ErrBridgeClosed}
	default:
		b.metrics.CommandPublished(string(cmd.Intent), "queue_full")
		return &domain.TransportError{Op: "publish", Err: domain.ErrQueueFull}
	}

	select {
	case err := <-item.result:
		return err
	case <-b.done:
		return &domain.TransportError{Op: "publish", Err: domain.ErrBridgeClosed}
	case <-ctx.Done():
		b.metrics.CommandPublished(string(cmd.Intent), "timeout")
		if b.State() != StateConnected {
			return &domain.TransportError{Op: "publish", Err: domain.ErrNotConnected}
		}
		return &domain.TransportError{Op: "publish", Err: ctx.Err()}
	}
}

func (b *Bridge) validate(cmd domain.Command) error {
	if !cmd.Intent.Valid() || cmd.Intent == domain.IntentUnknown {
		return fmt.Errorf("publishing %q: %w", cmd.RawText, domain.ErrUnknownIntent)
	}
	if !cmd.HasTarget() {
		if cmd.Intent.RequiresTarget() {
			return fmt.Errorf("publishing %s: %w", cmd.Intent, domain.ErrMissingTarget)
		}
		return nil
	}

	device, ok := b.catalog.Find(cmd.Target)
	if !ok {
		return &domain.UnknownDeviceError{DeviceID: cmd.Target}
	}
	if !device.Supports(cmd.Intent) {
		return fmt.Errorf("publishing %s to %s: %w", cmd.Intent, cmd.Target, domain.ErrUnsupportedIntent)
	}
	return nil
}

// HandleStatus decodes one status message and applies it. Bad messages are
// logged and dropped.
func (b *Bridge) HandleStatus(payload []byte) {
	update, err := DecodeStatus(payload)
	if err != nil {
		b.metrics.StatusMessage("malformed")
		b.logger.Warn("dropping malformed status message", "error", err, "bytes", len(payload))
		return
	}

	changed, state, err := b.store.Apply(update)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDevice) {
			b.metrics.StatusMessage("unknown_device")
			b.logger.Warn("dropping status for unknown device", "device_id", update.DeviceID)
			return
		}
		b.metrics.StatusMessage("error")
		b.logger.Error("applying status update", "device_id", update.DeviceID, "error", err)
		return
	}

	if !changed {
		b.metrics.StatusMessage("unchanged")
		b.logger.Debug("status unchanged", "device_id", state.DeviceID, "status", state.Status)
		return
	}

	b.metrics.StatusMessage("applied")
	b.logger.Info("device status changed", "device_id", state.DeviceID, "status", state.Status)
}

// Run drives the connection state machine until ctx is done: connect and
// subscribe, serve publishes until the session is lost, back off, repeat.
// It returns nil on shutdown and an error only when a bounded backoff is
// exhausted.
func (b *Bridge) Run(ctx context.Context) error {
	subscribed := false
	defer func() {
		b.shutdown(subscribed)
	}()

	attempt := 0
	for {
		b.setState(StateConnecting)

		err := b.connect(ctx)
		if err == nil {
			subscribed = true
			attempt = 0
			b.setState(StateConnected)

			err = b.serve(ctx)
			if ctx.Err() != nil {
				return nil
			}
			subscribed = false
			b.logger.Warn("bus connection lost", "error", err)
		} else {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("connecting to bus failed", "attempt", attempt+1, "error", err)
		}

		b.setState(StateDisconnected)

		attempt++
		if b.cfg.Backoff.Exhausted(attempt) {
			return fmt.Errorf("bus unreachable after %d attempts: %w", attempt, err)
		}

		delay := b.cfg.Backoff.Delay(attempt)
		b.logger.Info("reconnecting to bus", "delay", delay.String())
		if err := infra.Sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (b *Bridge) connect(ctx context.Context) error {
	if err := b.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	subscribeRetry := infra.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}
	err := infra.WithRetry(ctx, subscribeRetry, func() error {
		return b.transport.Subscribe(ctx, b.cfg.StatusTopic, b.HandleStatus)
	})
	if err != nil {
		b.transport.Disconnect()
		return fmt.Errorf("subscribing to %s: %w", b.cfg.StatusTopic, err)
	}

	b.logger.Info("subscribed to status topic", "topic", b.cfg.StatusTopic)
	return nil
}

func (b *Bridge) serve(ctx context.Context) error {
	lost := b.transport.ConnectionLost()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-lost:
			if err == nil {
				err = errors.New("connection lost")
			}
			return err
		case item := <-b.queue:
			b.send(item)
		}
	}
}

func (b *Bridge) send(item *outbound) {
	if item.ctx.Err() != nil {
		b.logger.Debug("skipping abandoned publish", "intent", item.intent)
		return
	}

	err := b.transport.Publish(item.ctx, b.cfg.CommandTopic, item.payload)
	if err != nil {
		b.metrics.CommandPublished(string(item.intent), "error")
		b.logger.Error("publishing command", "intent", item.intent, "error", err)
		item.result <- &domain.TransportError{Op: "publish", Err: err}
		return
	}

	b.metrics.CommandPublished(string(item.intent), "ok")
	b.logger.Info("published command", "intent", item.intent, "topic", b.cfg.CommandTopic)
	item.result <- nil
}

func (b *Bridge) shutdown(subscribed bool) {
	b.setState(StateClosed)
	b.closeOnce.Do(func() { close(b.done) })

	if subscribed {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := b.transport.Unsubscribe(ctx, b.cfg.StatusTopic); err != nil {
			b.logger.Warn("unsubscribing from status topic", "error", err)
		}
		cancel()
	}
	b.transport.Disconnect()

	for {
		select {
		case item := <-b.queue:
			item.result <- &domain.TransportError{Op: "publish", Err: domain.ErrBridgeClosed}
		default:
			return
		}
	}
}
