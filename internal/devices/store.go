// Package devices holds the authoritative in-memory state of every modeled
// device.
package devices

import (
	"fmt"
	"sync"
	"time"

	"home-security/internal/domain"
)

// ChangeFunc is called for every Apply that changes a device status. It runs
// while the store is locked, so it must not call back into the store and
// must not block.
type ChangeFunc func(state domain.DeviceState)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	mu        sync.RWMutex
	states    map[domain.DeviceID]domain.DeviceState
	listeners []ChangeFunc
	now       func() time.Time
}

// NewStore initializes one state per catalog entry with its initial status.
func NewStore(catalog domain.Catalog, opts ...Option) *Store {
	s := &Store{
		states: make(map[domain.DeviceID]domain.DeviceState, len(catalog)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	started := s.now()
	for _, d := range catalog {
		s.states[d.ID] = domain.DeviceState{
			DeviceID:    d.ID,
			Name:        d.Name,
			Status:      d.InitialStatus,
			LastUpdated: started,
		}
	}
	return s
}

func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Apply overwrites the device status in arrival order. LastUpdated moves to
// the arrival time but never backwards. Listeners fire before Apply returns
// and only when the status value differs from the stored one.
func (s *Store) Apply(update domain.StatusUpdate) (bool, domain.DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[update.DeviceID]
	if !ok {
		return false, domain.DeviceState{}, &domain.UnknownDeviceError{DeviceID: update.DeviceID}
	}

	changed := current.Status != update.Status

	arrived := s.now()
	if arrived.After(current.LastUpdated) {
		current.LastUpdated = arrived
	}
	current.Status = update.Status
	s.states[update.DeviceID] = current

	if changed {
		for _, fn := range s.listeners {
			fn(current)
		}
	}

	return changed, current, nil
}

func (s *Store) Get(id domain.DeviceID) (domain.DeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[id]
	if !ok {
		return domain.DeviceState{}, fmt.Errorf("getting state: %w", &domain.UnknownDeviceError{DeviceID: id})
	}
	return state, nil
}

func (s *Store) Snapshot() map[domain.DeviceID]domain.DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyStates()
}

// Observe runs fn with a snapshot while holding off every Apply, so no
// change can land between the snapshot and whatever fn registers.
func (s *Store) Observe(fn func(snapshot map[domain.DeviceID]domain.DeviceState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.copyStates())
}

func (s *Store) copyStates() map[domain.DeviceID]domain.DeviceState {
	result := make(map[domain.DeviceID]domain.DeviceState, len(s.states))
	for id, state := range s.states {
		result[id] = state
	}
	return result
}
