package application

import (
	"home-security/internal/domain"
)

type EventType string

const (
	EventSnapshot         EventType = "snapshot"
	EventStateChanged     EventType = "state_changed"
	EventCommandError     EventType = "command_error"
	EventCommandAccepted  EventType = "command_accepted"
	EventConnectionStatus EventType = "connection_status"
	EventStatusReport     EventType = "status_report"
)

const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
)

// DeviceView is a device state as observers see it.
type DeviceView struct {
	DeviceID    domain.DeviceID `json:"device_id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	LastUpdated float64         `json:"last_updated"`
}

// Event is one outbound observer frame. Type decides which of the other
// fields are set.
type Event struct {
	Type EventType `json:"type"`

	Devices map[domain.DeviceID]DeviceView `json:"devices,omitempty"`

	DeviceID  domain.DeviceID `json:"device_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Timestamp float64         `json:"timestamp,omitempty"`

	Reason string `json:"reason,omitempty"`
	State  string `json:"state,omitempty"`

	Intent domain.Intent   `json:"intent,omitempty"`
	Target domain.DeviceID `json:"target,omitempty"`

	Text string `json:"text,omitempty"`
}

// InboundType is the discriminator of frames sent by observers.
type InboundType string

const InboundUtterance InboundType = "utterance"

type Inbound struct {
	Type InboundType `json:"type"`
	Text string      `json:"text"`
}

func viewOf(state domain.DeviceState) DeviceView {
	return DeviceView{
		DeviceID:    state.DeviceID,
		Name:        state.Name,
		Status:      state.Status,
		LastUpdated: domain.UnixSeconds(state.LastUpdated),
	}
}

// DeviceViews converts a store snapshot into its observer representation.
func DeviceViews(snapshot map[domain.DeviceID]domain.DeviceState) map[domain.DeviceID]DeviceView {
	devices := make(map[domain.DeviceID]DeviceView, len(snapshot))
	for id, state := range snapshot {
		devices[id] = viewOf(state)
	}
	return devices
}

func snapshotEvent(snapshot map[domain.DeviceID]domain.DeviceState) Event {
	return Event{Type: EventSnapshot, Devices: DeviceViews(snapshot)}
}

func stateChangedEvent(state domain.DeviceState) Event {
	return Event{
		Type:      EventStateChanged,
		DeviceID:  state.DeviceID,
		Status:    state.Status,
		Timestamp: domain.UnixSeconds(state.LastUpdated),
	}
}

func commandErrorEvent(reason string) Event {
	return Event{Type: EventCommandError, Reason: reason}
}

func connectionEvent(connected bool) Event {
	state := ConnectionDisconnected
	if connected {
		state = ConnectionConnected
	}
	return Event{Type: EventConnectionStatus, State: state}
}
