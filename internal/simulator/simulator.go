// Package simulator plays the part of the physical devices: it executes
// commands from the command topic and reports every status change on the
// status topic.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"home-security/internal/domain"
	"home-security/internal/infra"
	"home-security/internal/infra/bus"
)

const commandQueueSize = 64

type Config struct {
	CommandTopic string
	StatusTopic  string

	// Motion is checked every MotionInterval plus up to MotionJitter. While
	// the alarm is armed a check detects motion with MotionChance, and the
	// sensor returns to clear after MotionHold.
	MotionInterval time.Duration
	MotionJitter   time.Duration
	MotionChance   float64
	MotionHold     time.Duration

	Backoff infra.RetryConfig
	Seed    uint64
}

func DefaultConfig() Config {
	return Config{
		CommandTopic:   bus.DefaultCommandTopic,
		StatusTopic:    bus.DefaultStatusTopic,
		MotionInterval: 10 * time.Second,
		MotionJitter:   15 * time.Second,
		MotionChance:   0.3,
		MotionHold:     5 * time.Second,
		Backoff:        infra.DefaultRetryConfig(),
	}
}

type Simulator struct {
	transport bus.Transport
	catalog   domain.Catalog
	cfg       Config
	logger    *slog.Logger
	rng       *rand.Rand
	commands  chan []byte

	mu     sync.Mutex
	status map[domain.DeviceID]string
}

func New(transport bus.Transport, catalog domain.Catalog, cfg Config, logger *slog.Logger) *Simulator {
	if cfg.CommandTopic == "" {
		cfg.CommandTopic = bus.DefaultCommandTopic
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = bus.DefaultStatusTopic
	}
	if cfg.MotionInterval <= 0 {
		cfg.MotionInterval = DefaultConfig().MotionInterval
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	status := make(map[domain.DeviceID]string, len(catalog))
	for _, d := range catalog {
		status[d.ID] = d.InitialStatus
	}

	return &Simulator{
		transport: transport,
		catalog:   catalog,
		cfg:       cfg,
		logger:    logger,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		commands:  make(chan []byte, commandQueueSize),
		status:    status,
	}
}

// Status returns the simulated status of a device.
func (s *Simulator) Status(id domain.DeviceID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

// Run keeps a session with the broker until ctx is done, reconnecting with
// backoff when it drops.
func (s *Simulator) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errSessionLost) {
			attempt = 0
		}
		s.logger.Warn("simulator session ended", "error", err)

		attempt++
		if s.cfg.Backoff.Exhausted(attempt) {
			return fmt.Errorf("simulator gave up after %d attempts: %w", attempt, err)
		}
		if err := infra.Sleep(ctx, s.cfg.Backoff.Delay(attempt)); err != nil {
			return nil
		}
	}
}

var errSessionLost = errors.New("session lost")

func (s *Simulator) session(ctx context.Context) error {
	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer s.transport.Disconnect()

	if err := s.transport.Subscribe(ctx, s.cfg.CommandTopic, s.enqueue); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.cfg.CommandTopic, err)
	}
	s.logger.Info("simulated devices online", "command_topic", s.cfg.CommandTopic)

	s.publishAll(ctx)

	check := time.NewTimer(s.nextCheck())
	defer check.Stop()
	var hold <-chan time.Time

	lost := s.transport.ConnectionLost()
	for {
		select {
		case <-ctx.Done():
			unsubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = s.transport.Unsubscribe(unsubCtx, s.cfg.CommandTopic)
			cancel()
			return ctx.Err()
		case err := <-lost:
			return fmt.Errorf("%w: %v", errSessionLost, err)
		case payload := <-s.commands:
			s.handle(ctx, payload)
		case <-check.C:
			if s.detectMotion() {
				s.set(ctx, domain.DeviceMotionSensor, domain.StatusMotionDetected)
				hold = time.After(s.cfg.MotionHold)
			}
			check.Reset(s.nextCheck())
		case <-hold:
			hold = nil
			s.set(ctx, domain.DeviceMotionSensor, domain.StatusClear)
		}
	}
}

func (s *Simulator) enqueue(payload []byte) {
	select {
	case s.commands <- payload:
	default:
		s.logger.Warn("simulator command queue full, dropping command")
	}
}

func (s *Simulator) handle(ctx context.Context, payload []byte) {
	cmd, err := bus.DecodeCommand(payload)
	if err != nil {
		s.logger.Warn("malformed command", "error", err)
		return
	}

	if cmd.Intent == domain.IntentStatusReport {
		s.publishAll(ctx)
		return
	}

	spec, ok := s.catalog.Find(cmd.Target)
	if !ok {
		s.logger.Warn("command for unknown device", "device_id", cmd.Target)
		return
	}
	status, ok := cmd.Intent.TargetStatus()
	if !ok || !spec.Supports(cmd.Intent) {
		s.logger.Warn("unsupported command", "device_id", cmd.Target, "intent", cmd.Intent)
		return
	}

	s.set(ctx, cmd.Target, status)
}

func (s *Simulator) detectMotion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status[domain.DeviceAlarmSystem] != domain.StatusArmed {
		return false
	}
	if s.status[domain.DeviceMotionSensor] != domain.StatusClear {
		return false
	}
	return s.rng.Float64() < s.cfg.MotionChance
}

func (s *Simulator) nextCheck() time.Duration {
	d := s.cfg.MotionInterval
	if s.cfg.MotionJitter > 0 {
		s.mu.Lock()
		d += time.Duration(s.rng.Int64N(int64(s.cfg.MotionJitter)))
		s.mu.Unlock()
	}
	return d
}

func (s *Simulator) set(ctx context.Context, id domain.DeviceID, status string) {
	s.mu.Lock()
	current, known := s.status[id]
	if known && current != status {
		s.status[id] = status
	}
	s.mu.Unlock()

	if !known {
		return
	}
	if current == status {
		s.logger.Debug("device already in status", "device_id", id, "status", status)
		return
	}

	s.logger.Info("device status changed", "device_id", id, "from", current, "to", status)
	s.publish(ctx, id, status)
}

func (s *Simulator) publishAll(ctx context.Context) {
	for _, d := range s.catalog {
		s.publish(ctx, d.ID, s.Status(d.ID))
	}
}

func (s *Simulator) publish(ctx context.Context, id domain.DeviceID, status string) {
	payload, err := bus.EncodeStatus(domain.StatusUpdate{
		DeviceID:  id,
		Status:    status,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger.Error("encoding status", "device_id", id, "error", err)
		return
	}
	if err := s.transport.Publish(ctx, s.cfg.StatusTopic, payload); err != nil {
		s.logger.Error("publishing status", "device_id", id, "error", err)
	}
}
