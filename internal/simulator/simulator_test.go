package simulator_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-security/internal/domain"
	"home-security/internal/infra"
	"home-security/internal/infra/bus"
	"home-security/internal/simulator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quietConfig() simulator.Config {
	cfg := simulator.DefaultConfig()
	cfg.MotionInterval = time.Hour
	cfg.MotionJitter = 0
	cfg.Backoff = infra.RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2}
	cfg.Seed = 1
	return cfg
}

// statusWatcher collects decoded messages from the status topic.
type statusWatcher struct {
	updates chan domain.StatusUpdate
	client  *bus.MemoryTransport
}

func watchStatus(t *testing.T, broker *bus.MemoryBroker) *statusWatcher {
	t.Helper()

	w := &statusWatcher{updates: make(chan domain.StatusUpdate, 64), client: broker.Client()}
	require.NoError(t, w.client.Connect(context.Background()))
	t.Cleanup(w.client.Disconnect)
	require.NoError(t, w.client.Subscribe(context.Background(), bus.DefaultStatusTopic, func(payload []byte) {
		update, err := bus.DecodeStatus(payload)
		if err == nil {
			w.updates <- update
		}
	}))
	return w
}

func (w *statusWatcher) next(t *testing.T) domain.StatusUpdate {
	t.Helper()
	select {
	case u := <-w.updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status")
		return domain.StatusUpdate{}
	}
}

func (w *statusWatcher) waitFor(t *testing.T, id domain.DeviceID, status string) domain.StatusUpdate {
	t.Helper()
	for {
		u := w.next(t)
		if u.DeviceID == id && u.Status == status {
			return u
		}
	}
}

func (w *statusWatcher) command(t *testing.T, cmd domain.Command) {
	t.Helper()
	payload, err := bus.EncodeCommand(cmd)
	require.NoError(t, err)
	require.NoError(t, w.client.Publish(context.Background(), bus.DefaultCommandTopic, payload))
}

func start(t *testing.T, broker *bus.MemoryBroker, cfg simulator.Config) *simulator.Simulator {
	t.Helper()

	sim := simulator.New(broker.Client(), domain.DefaultCatalog(), cfg, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("simulator did not stop")
		}
	})
	return sim
}

func TestSimulator_PublishesInitialStatus(t *testing.T) {
	broker := bus.NewMemoryBroker()
	w := watchStatus(t, broker)
	start(t, broker, quietConfig())

	seen := map[domain.DeviceID]string{}
	for len(seen) < 3 {
		u := w.next(t)
		seen[u.DeviceID] = u.Status
		assert.False(t, u.Timestamp.IsZero())
	}
	assert.Equal(t, map[domain.DeviceID]string{
		domain.DeviceFrontDoorLock: domain.StatusLocked,
		domain.DeviceAlarmSystem:   domain.StatusDisarmed,
		domain.DeviceMotionSensor:  domain.StatusClear,
	}, seen)
}

func TestSimulator_ExecutesCommands(t *testing.T) {
	broker := bus.NewMemoryBroker()
	w := watchStatus(t, broker)
	sim := start(t, broker, quietConfig())
	w.waitFor(t, domain.DeviceMotionSensor, domain.StatusClear)

	w.command(t, domain.Command{Intent: domain.IntentUnlock, Target: domain.DeviceFrontDoorLock})
	w.waitFor(t, domain.DeviceFrontDoorLock, domain.StatusUnlocked)

	w.command(t, domain.Command{Intent: domain.IntentArm, Target: domain.DeviceAlarmSystem})
	w.waitFor(t, domain.DeviceAlarmSystem, domain.StatusArmed)

	assert.Equal(t, domain.StatusUnlocked, sim.Status(domain.DeviceFrontDoorLock))
	assert.Equal(t, domain.StatusArmed, sim.Status(domain.DeviceAlarmSystem))
}

func TestSimulator_IgnoresInvalidCommands(t *testing.T) {
	broker := bus.NewMemoryBroker()
	w := watchStatus(t, broker)
	sim := start(t, broker, quietConfig())
	w.waitFor(t, domain.DeviceMotionSensor, domain.StatusClear)

	require.NoError(t, w.client.Publish(context.Background(), bus.DefaultCommandTopic, []byte(`{garbage`)))
	w.command(t, domain.Command{Intent: domain.IntentLock, Target: domain.DeviceAlarmSystem})
	w.command(t, domain.Command{Intent: domain.IntentLock, Target: "garage"})
	// Already locked: no status message.
	w.command(t, domain.Command{Intent: domain.IntentLock, Target: domain.DeviceFrontDoorLock})
	w.command(t, domain.Command{Intent: domain.IntentDisarm, Target: domain.DeviceAlarmSystem})

	select {
	case u := <-w.updates:
		t.Fatalf("unexpected status %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, domain.StatusDisarmed, sim.Status(domain.DeviceAlarmSystem))
}

func TestSimulator_StatusReportRepublishes(t *testing.T) {
	broker := bus.NewMemoryBroker()
	w := watchStatus(t, broker)
	start(t, broker, quietConfig())
	w.waitFor(t, domain.DeviceMotionSensor, domain.StatusClear)

	w.command(t, domain.Command{Intent: domain.IntentStatusReport})
	w.waitFor(t, domain.DeviceFrontDoorLock, domain.StatusLocked)
	w.waitFor(t, domain.DeviceAlarmSystem, domain.StatusDisarmed)
}

func TestSimulator_MotionWhileArmed(t *testing.T) {
	cfg := quietConfig()
	cfg.MotionInterval = 10 * time.Millisecond
	cfg.MotionChance = 1
	cfg.MotionHold = 20 * time.Millisecond

	broker := bus.NewMemoryBroker()
	w := watchStatus(t, broker)
	start(t, broker, cfg)
	w.waitFor(t, domain.DeviceMotionSensor, domain.StatusClear)

	select {
	case u := <-w.updates:
		t.Fatalf("motion reported while disarmed: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}

	w.command(t, domain.Command{Intent: domain.IntentArm, Target: domain.DeviceAlarmSystem})
	w.waitFor(t, domain.DeviceMotionSensor, domain.StatusMotionDetected)
	w.waitFor(t, domain.DeviceMotionSensor, domain.StatusClear)
}

func TestSimulator_ReconnectsAfterOutage(t *testing.T) {
	broker := bus.NewMemoryBroker()
	start(t, broker, quietConfig())

	time.Sleep(20 * time.Millisecond)
	broker.SetAvailable(false)
	time.Sleep(30 * time.Millisecond)
	broker.SetAvailable(true)

	w := watchStatus(t, broker)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w.command(t, domain.Command{Intent: domain.IntentStatusReport})
		select {
		case u := <-w.updates:
			assert.NotEmpty(t, u.Status)
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("simulator did not come back after the outage")
}
