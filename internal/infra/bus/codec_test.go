package bus_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-security/internal/domain"
	"home-security/internal/infra/bus"
)

func TestEncodeCommand(t *testing.T) {
	data, err := bus.EncodeCommand(domain.Command{
		Intent:  domain.IntentLock,
		Target:  domain.DeviceFrontDoorLock,
		RawText: "lock the front door",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"lock","target":"front_door_lock","raw_text":"lock the front door"}`, string(data))

	data, err = bus.EncodeCommand(domain.Command{Intent: domain.IntentStatusReport, RawText: "status"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"status_report","target":null,"raw_text":"status"}`, string(data))
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := bus.DecodeCommand([]byte(`{"intent":"arm","target":"alarm_system","raw_text":"arm it"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.Command{Intent: domain.IntentArm, Target: domain.DeviceAlarmSystem, RawText: "arm it"}, cmd)

	_, err = bus.DecodeCommand([]byte(`{"target":"alarm_system"}`))
	var decodeErr *domain.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.StatusUpdate
		wantErr string
	}{
		{
			name:    "full payload",
			payload: `{"device_id":"front_door_lock","status":"locked","timestamp":1767268800.5}`,
			want: domain.StatusUpdate{
				DeviceID:  domain.DeviceFrontDoorLock,
				Status:    domain.StatusLocked,
				Timestamp: time.Unix(1767268800, int64(500*time.Millisecond)),
			},
		},
		{
			name:    "no timestamp",
			payload: `{"device_id":"alarm_system","status":"armed"}`,
			want:    domain.StatusUpdate{DeviceID: domain.DeviceAlarmSystem, Status: domain.StatusArmed},
		},
		{
			name:    "legacy state key",
			payload: `{"device_id":"alarm_system","state":"disarmed"}`,
			want:    domain.StatusUpdate{DeviceID: domain.DeviceAlarmSystem, Status: domain.StatusDisarmed},
		},
		{name: "not json", payload: `{device_id`, wantErr: "invalid status json"},
		{name: "wrong types", payload: `{"device_id":"a","status":"b","timestamp":"noon"}`, wantErr: "invalid status json"},
		{name: "array", payload: `[1,2,3]`, wantErr: "invalid status json"},
		{name: "missing device", payload: `{"status":"locked"}`, wantErr: "missing device_id"},
		{name: "missing status", payload: `{"device_id":"front_door_lock"}`, wantErr: "missing status"},
		{name: "null", payload: `null`, wantErr: "missing device_id"},
		{name: "too large", payload: `{"device_id":"x","status":"` + strings.Repeat("a", 40*1024) + `"}`, wantErr: "payload too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bus.DecodeStatus([]byte(tt.payload))
			if tt.wantErr != "" {
				var decodeErr *domain.DecodeError
				require.ErrorAs(t, err, &decodeErr)
				assert.Equal(t, tt.wantErr, decodeErr.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.DeviceID, got.DeviceID)
			assert.Equal(t, tt.want.Status, got.Status)
			assert.True(t, tt.want.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", tt.want.Timestamp, got.Timestamp)
		})
	}
}

func TestEncodeStatus_RoundTrip(t *testing.T) {
	update := domain.StatusUpdate{
		DeviceID:  domain.DeviceMotionSensor,
		Status:    domain.StatusMotionDetected,
		Timestamp: time.Unix(1767268800, 0),
	}

	data, err := bus.EncodeStatus(update)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "motion_sensor", raw["device_id"])
	assert.Equal(t, "motion_detected", raw["status"])
	assert.InDelta(t, 1767268800.0, raw["timestamp"], 0.001)

	got, err := bus.DecodeStatus(data)
	require.NoError(t, err)
	assert.True(t, update.Timestamp.Equal(got.Timestamp))
}
