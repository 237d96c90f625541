package devices_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-security/internal/devices"
	"home-security/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestStore_InitialSnapshot(t *testing.T) {
	catalog := domain.DefaultCatalog()
	store := devices.NewStore(catalog)

	snap := store.Snapshot()
	require.Len(t, snap, len(catalog))
	for _, d := range catalog {
		state, ok := snap[d.ID]
		require.True(t, ok, "missing %s", d.ID)
		assert.Equal(t, d.InitialStatus, state.Status)
		assert.Equal(t, d.Name, state.Name)
	}
}

func TestStore_ApplyChanged(t *testing.T) {
	clock := newClock()
	store := devices.NewStore(domain.DefaultCatalog(), devices.WithClock(clock.Now))

	var notified []domain.DeviceState
	store.OnChange(func(state domain.DeviceState) {
		notified = append(notified, state)
	})

	clock.Set(clock.Now().Add(time.Second))
	changed, state, err := store.Apply(domain.StatusUpdate{DeviceID: domain.DeviceFrontDoorLock, Status: domain.StatusUnlocked})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusUnlocked, state.Status)
	assert.Equal(t, clock.Now(), state.LastUpdated)

	require.Len(t, notified, 1, "notification must have fired before Apply returned")
	assert.Equal(t, state, notified[0])

	got, err := store.Get(domain.DeviceFrontDoorLock)
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestStore_ApplySameStatusDoesNotNotify(t *testing.T) {
	clock := newClock()
	store := devices.NewStore(domain.DefaultCatalog(), devices.WithClock(clock.Now))

	count := 0
	store.OnChange(func(domain.DeviceState) { count++ })

	update := domain.StatusUpdate{DeviceID: domain.DeviceAlarmSystem, Status: domain.StatusArmed}

	changed, _, err := store.Apply(update)
	require.NoError(t, err)
	assert.True(t, changed)

	clock.Set(clock.Now().Add(time.Minute))
	changed, state, err := store.Apply(update)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, clock.Now(), state.LastUpdated, "reapply still refreshes last_updated")

	assert.Equal(t, 1, count)
}

func TestStore_LastUpdatedNeverRegresses(t *testing.T) {
	clock := newClock()
	store := devices.NewStore(domain.DefaultCatalog(), devices.WithClock(clock.Now))

	clock.Set(clock.Now().Add(time.Hour))
	_, first, err := store.Apply(domain.StatusUpdate{DeviceID: domain.DeviceMotionSensor, Status: domain.StatusMotionDetected})
	require.NoError(t, err)

	clock.Set(clock.Now().Add(-30 * time.Minute))
	changed, second, err := store.Apply(domain.StatusUpdate{
		DeviceID:  domain.DeviceMotionSensor,
		Status:    domain.StatusClear,
		Timestamp: first.LastUpdated.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusClear, second.Status, "last writer wins by arrival order")
	assert.Equal(t, first.LastUpdated, second.LastUpdated)
}

func TestStore_UnknownDevice(t *testing.T) {
	store := devices.NewStore(domain.DefaultCatalog())
	before := store.Snapshot()

	count := 0
	store.OnChange(func(domain.DeviceState) { count++ })

	changed, _, err := store.Apply(domain.StatusUpdate{DeviceID: "garage", Status: "open"})
	assert.False(t, changed)
	assert.ErrorIs(t, err, domain.ErrUnknownDevice)

	var unknown *domain.UnknownDeviceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, domain.DeviceID("garage"), unknown.DeviceID)

	_, err = store.Get("garage")
	assert.ErrorIs(t, err, domain.ErrUnknownDevice)

	assert.Equal(t, before, store.Snapshot())
	assert.Zero(t, count)
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	store := devices.NewStore(domain.DefaultCatalog())

	snap := store.Snapshot()
	snap[domain.DeviceFrontDoorLock] = domain.DeviceState{Status: "tampered"}
	delete(snap, domain.DeviceAlarmSystem)

	state, err := store.Get(domain.DeviceFrontDoorLock)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, state.Status)
	assert.Len(t, store.Snapshot(), 3)
}

func TestStore_SequenceEndsWithLastApplied(t *testing.T) {
	store := devices.NewStore(domain.DefaultCatalog())

	sequence := []domain.StatusUpdate{
		{DeviceID: domain.DeviceFrontDoorLock, Status: domain.StatusUnlocked},
		{DeviceID: domain.DeviceAlarmSystem, Status: domain.StatusArmed},
		{DeviceID: "ghost", Status: "boo"},
		{DeviceID: domain.DeviceFrontDoorLock, Status: domain.StatusLocked},
		{DeviceID: domain.DeviceMotionSensor, Status: domain.StatusMotionDetected},
		{DeviceID: domain.DeviceFrontDoorLock, Status: domain.StatusUnlocked},
		{DeviceID: domain.DeviceMotionSensor, Status: domain.StatusClear},
	}

	want := map[domain.DeviceID]string{}
	for _, u := range sequence {
		if _, _, err := store.Apply(u); err == nil {
			want[u.DeviceID] = u.Status
		}
	}

	snap := store.Snapshot()
	assert.Len(t, snap, 3)
	assert.NotContains(t, snap, domain.DeviceID("ghost"))
	for id, status := range want {
		assert.Equal(t, status, snap[id].Status, string(id))
	}
}

func TestStore_ConcurrentApplyKeepsPerDeviceOrder(t *testing.T) {
	store := devices.NewStore(domain.DefaultCatalog())

	var mu sync.Mutex
	seen := map[domain.DeviceID][]string{}
	store.OnChange(func(state domain.DeviceState) {
		mu.Lock()
		seen[state.DeviceID] = append(seen[state.DeviceID], state.Status)
		mu.Unlock()
	})

	const n = 200
	var wg sync.WaitGroup
	for _, id := range domain.DefaultCatalog().IDs() {
		wg.Add(1)
		go func(id domain.DeviceID) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				_, _, err := store.Apply(domain.StatusUpdate{DeviceID: id, Status: fmt.Sprintf("s%d", i)})
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range domain.DefaultCatalog().IDs() {
		statuses := seen[id]
		require.Len(t, statuses, n)
		for i, s := range statuses {
			assert.Equal(t, fmt.Sprintf("s%d", i), s)
		}
	}
}

func TestStore_ObserveBlocksApply(t *testing.T) {
	store := devices.NewStore(domain.DefaultCatalog())

	applied := make(chan struct{})
	store.Observe(func(snapshot map[domain.DeviceID]domain.DeviceState) {
		go func() {
			_, _, _ = store.Apply(domain.StatusUpdate{DeviceID: domain.DeviceFrontDoorLock, Status: domain.StatusUnlocked})
			close(applied)
		}()

		select {
		case <-applied:
			t.Error("apply completed while observing")
		case <-time.After(50 * time.Millisecond):
		}
		assert.Equal(t, domain.StatusLocked, snapshot[domain.DeviceFrontDoorLock].Status)
	})

	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("apply never completed after observe returned")
	}
}
