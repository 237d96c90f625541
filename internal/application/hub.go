package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"home-security/internal/domain"
)

const minObserverBuffer = 2

type HubMetrics interface {
	Broadcast()
	ObserverDropped()
	ObserverCount(n int)
}

type noopMetrics struct{}

func (noopMetrics) Broadcast()        {}
func (noopMetrics) ObserverDropped()  {}
func (noopMetrics) ObserverCount(int) {}

// Observer is one live viewer. Events is closed when the observer is
// disconnected or dropped for falling behind.
type Observer struct {
	id     string
	events chan Event
}

func (o *Observer) ID() string {
	return o.id
}

func (o *Observer) Events() <-chan Event {
	return o.events
}

// Hub fans device and connection events out to observers and turns their
// utterances into bus commands.
//
// When both locks are needed the store lock is taken first; the hub never
// calls into the store while holding mu.
type Hub struct {
	states    DeviceStates
	extractor IntentExtractor
	publisher CommandPublisher
	catalog   domain.Catalog
	buffer    int
	logger    *slog.Logger
	metrics   HubMetrics

	mu        sync.Mutex
	observers map[string]*Observer
	connected bool
}

func NewHub(
	states DeviceStates,
	extractor IntentExtractor,
	publisher CommandPublisher,
	catalog domain.Catalog,
	buffer int,
	logger *slog.Logger,
	metrics HubMetrics,
) *Hub {
	if buffer < minObserverBuffer {
		buffer = minObserverBuffer
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Hub{
		states:    states,
		extractor: extractor,
		publisher: publisher,
		catalog:   catalog,
		buffer:    buffer,
		logger:    logger,
		metrics:   metrics,
		observers: make(map[string]*Observer),
	}
}

// Connect registers an observer. Its first event is the current snapshot,
// followed by the bus connection status. An existing observer with the same
// id is replaced.
func (h *Hub) Connect(id string) *Observer {
	obs := &Observer{id: id, events: make(chan Event, h.buffer)}

	h.states.Observe(func(snapshot map[domain.DeviceID]domain.DeviceState) {
		h.mu.Lock()
		defer h.mu.Unlock()

		if old, ok := h.observers[id]; ok {
			close(old.events)
		}
		obs.events <- snapshotEvent(snapshot)
		obs.events <- connectionEvent(h.connected)
		h.observers[id] = obs
		h.metrics.ObserverCount(len(h.observers))
	})

	h.logger.Info("observer connected", "observer_id", id)
	return obs
}

// Disconnect removes obs. Calling it again, or after obs was replaced by a
// newer observer with the same id, does nothing.
func (h *Hub) Disconnect(obs *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.observers[obs.id] != obs {
		return
	}
	h.remove(obs)
	h.logger.Info("observer disconnected", "observer_id", obs.id)
}

func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// StateChanged is registered as a store change listener.
func (h *Hub) StateChanged(state domain.DeviceState) {
	h.broadcast(stateChangedEvent(state))
}

// ConnectionChanged reports bus connectivity to every observer. Repeated
// values are not rebroadcast.
func (h *Hub) ConnectionChanged(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connected == connected {
		return
	}
	h.connected = connected
	h.broadcastLocked(connectionEvent(connected))
}

// HandleUtterance processes one command text sent by observer id. Feedback
// goes to that observer only; resulting device changes reach everyone
// through StateChanged.
func (h *Hub) HandleUtterance(ctx context.Context, id, text string) {
	cmd := h.extractor.Extract(text)

	h.logger.Info("utterance received",
		"observer_id", id,
		"text", text,
		"intent", cmd.Intent,
		"target", cmd.Target,
	)

	if cmd.Intent == domain.IntentStatusReport {
		h.states.Observe(func(snapshot map[domain.DeviceID]domain.DeviceState) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sendLocked(id, snapshotEvent(snapshot))
			h.sendLocked(id, Event{Type: EventStatusReport, Text: h.statusReport(snapshot)})
		})
		return
	}

	if reason := h.rejectReason(cmd); reason != "" {
		h.logger.Warn("command rejected", "observer_id", id, "text", text, "reason", reason)
		h.send(id, commandErrorEvent(reason))
		return
	}

	if err := h.publisher.Publish(ctx, cmd); err != nil {
		h.logger.Error("publishing command", "observer_id", id, "intent", cmd.Intent, "error", err)
		h.send(id, commandErrorEvent(fmt.Sprintf("could not send command: %v", err)))
		return
	}

	h.send(id, Event{Type: EventCommandAccepted, Intent: cmd.Intent, Target: cmd.Target})
}

// Reject sends a command_error to one observer, for input that never made it
// to extraction.
func (h *Hub) Reject(id, reason string) {
	h.send(id, commandErrorEvent(reason))
}

func (h *Hub) rejectReason(cmd domain.Command) string {
	if !cmd.Intent.Valid() || cmd.Intent == domain.IntentUnknown {
		return fmt.Sprintf("could not understand command: %q", cmd.RawText)
	}
	if cmd.Intent.RequiresTarget() && !cmd.HasTarget() {
		return fmt.Sprintf("which device should I %s?", cmd.Intent)
	}
	if !cmd.HasTarget() {
		return ""
	}

	spec, ok := h.catalog.Find(cmd.Target)
	if !ok {
		return fmt.Sprintf("unknown device %q", cmd.Target)
	}
	if !spec.Supports(cmd.Intent) {
		return fmt.Sprintf("%s cannot %s", spec.Name, cmd.Intent)
	}
	return ""
}

// statusReport renders states in catalog order, e.g.
// "Front Door Lock is locked; Alarm System is disarmed."
func (h *Hub) statusReport(snapshot map[domain.DeviceID]domain.DeviceState) string {
	parts := make([]string, 0, len(snapshot))
	for _, spec := range h.catalog {
		state, ok := snapshot[spec.ID]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", state.Name, state.Status))
	}
	return "Current status: " + strings.Join(parts, "; ") + "."
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(ev)
}

func (h *Hub) broadcastLocked(ev Event) {
	h.metrics.Broadcast()
	for _, obs := range h.observers {
		h.deliver(obs, ev)
	}
}

func (h *Hub) send(id string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(id, ev)
}

func (h *Hub) sendLocked(id string, ev Event) {
	obs, ok := h.observers[id]
	if !ok {
		return
	}
	h.deliver(obs, ev)
}

// deliver never blocks. An observer whose buffer is full is dropped.
func (h *Hub) deliver(obs *Observer, ev Event) {
	select {
	case obs.events <- ev:
	default:
		h.logger.Warn("observer too slow, dropping", "observer_id", obs.id, "event", ev.Type)
		h.metrics.ObserverDropped()
		h.remove(obs)
	}
}

func (h *Hub) remove(obs *Observer) {
	if h.observers[obs.id] != obs {
		return
	}
	delete(h.observers, obs.id)
	close(obs.events)
	h.metrics.ObserverCount(len(h.observers))
}
