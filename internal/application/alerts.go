package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"home-security/internal/domain"
)

const alertQueueSize = 16

// alertRule fires when a device enters status while the alarm is armed.
type alertRule struct {
	device domain.DeviceID
	status string
	format string
}

var alertRules = []alertRule{
	{device: domain.DeviceMotionSensor, status: domain.StatusMotionDetected, format: "Motion detected by %s while the alarm is armed"},
	{device: domain.DeviceFrontDoorLock, status: domain.StatusUnlocked, format: "%s was unlocked while the alarm is armed"},
}

// Alerter watches state changes and pushes a notification for suspicious
// ones. StateChanged only records and enqueues; Run does the sending.
type Alerter struct {
	notifier Notifier
	logger   *slog.Logger
	queue    chan string

	mu     sync.Mutex
	status map[domain.DeviceID]string
}

func NewAlerter(initial map[domain.DeviceID]domain.DeviceState, notifier Notifier, logger *slog.Logger) *Alerter {
	status := make(map[domain.DeviceID]string, len(initial))
	for id, state := range initial {
		status[id] = state.Status
	}
	return &Alerter{
		notifier: notifier,
		logger:   logger,
		queue:    make(chan string, alertQueueSize),
		status:   status,
	}
}

// StateChanged is registered as a store change listener.
func (a *Alerter) StateChanged(state domain.DeviceState) {
	a.mu.Lock()
	a.status[state.DeviceID] = state.Status
	armed := a.status[domain.DeviceAlarmSystem] == domain.StatusArmed
	a.mu.Unlock()

	if !armed {
		return
	}

	for _, rule := range alertRules {
		if rule.device != state.DeviceID || rule.status != state.Status {
			continue
		}
		message := fmt.Sprintf(rule.format, state.Name)
		select {
		case a.queue <- message:
		default:
			a.logger.Warn("alert queue full, dropping alert", "device_id", state.DeviceID, "status", state.Status)
		}
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case message := <-a.queue:
			a.logger.Info("sending alert", "message", message)
			if err := a.notifier.Notify(ctx, message); err != nil {
				a.logger.Error("sending alert", "error", err)
			}
		}
	}
}
