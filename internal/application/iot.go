package application

import (
	"context"

	"home-security/internal/domain"
)

// CommandPublisher sends a validated command towards the devices.
type CommandPublisher interface {
	Publish(ctx context.Context, cmd domain.Command) error
}

// DeviceStates is the read side of the device state store.
type DeviceStates interface {
	Snapshot() map[domain.DeviceID]domain.DeviceState
	Observe(fn func(snapshot map[domain.DeviceID]domain.DeviceState))
}
