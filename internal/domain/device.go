package domain

import (
	"math"
	"time"
)

type DeviceID string

const (
	DeviceFrontDoorLock DeviceID = "front_door_lock"
	DeviceAlarmSystem   DeviceID = "alarm_system"
	DeviceMotionSensor  DeviceID = "motion_sensor"
)

// Device statuses reported by the default catalog.
const (
	StatusLocked         = "locked"
	StatusUnlocked       = "unlocked"
	StatusArmed          = "armed"
	StatusDisarmed       = "disarmed"
	StatusClear          = "clear"
	StatusMotionDetected = "motion_detected"
)

// DeviceSpec describes one modeled device. Intents lists the command intents
// the device accepts; a sensor accepts none.
type DeviceSpec struct {
	ID            DeviceID
	Name          string
	InitialStatus string
	Aliases       []string
	Intents       []Intent
}

func (d DeviceSpec) Supports(intent Intent) bool {
	for _, i := range d.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// Catalog is the closed set of devices known at startup.
type Catalog []DeviceSpec

func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:            DeviceFrontDoorLock,
			Name:          "Front Door Lock",
			InitialStatus: StatusLocked,
			Aliases:       []string{"front door lock", "front door", "door lock", "door"},
			Intents:       []Intent{IntentLock, IntentUnlock},
		},
		{
			ID:            DeviceAlarmSystem,
			Name:          "Alarm System",
			InitialStatus: StatusDisarmed,
			Aliases:       []string{"alarm system", "alarm"},
			Intents:       []Intent{IntentArm, IntentDisarm},
		},
		{
			ID:            DeviceMotionSensor,
			Name:          "Living Room Sensor",
			InitialStatus: StatusClear,
			Aliases:       []string{"motion sensor", "living room", "motion", "sensor"},
		},
	}
}

func (c Catalog) Find(id DeviceID) (DeviceSpec, bool) {
	for _, d := range c {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceSpec{}, false
}

func (c Catalog) IDs() []DeviceID {
	ids := make([]DeviceID, len(c))
	for i, d := range c {
		ids[i] = d.ID
	}
	return ids
}

type DeviceState struct {
	DeviceID    DeviceID
	Name        string
	Status      string
	LastUpdated time.Time
}

// StatusUpdate is a decoded message from the status topic. Timestamp is the
// time the device reported, zero when the device did not send one.
type StatusUpdate struct {
	DeviceID  DeviceID
	Status    string
	Timestamp time.Time
}

// StatusPayload is the JSON devices publish on the status topic. State is the
// key older simulators used for Status.
type StatusPayload struct {
	DeviceID  string   `json:"device_id"`
	Status    string   `json:"status,omitempty"`
	State     string   `json:"state,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// UnixSeconds converts t to fractional seconds since the epoch, the unit used
// for every timestamp on the wire.
func UnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func FromUnixSeconds(s float64) time.Time {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
