package bus

import (
	"encoding/json"
	"fmt"

	"home-security/internal/domain"
)

const maxPayloadSize = 32 * 1024

func EncodeCommand(cmd domain.Command) ([]byte, error) {
	data, err := json.Marshal(cmd.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshaling command: %w", err)
	}
	return data, nil
}

func DecodeCommand(payload []byte) (domain.Command, error) {
	if len(payload) > maxPayloadSize {
		return domain.Command{}, &domain.DecodeError{Reason: "payload too large"}
	}

	var p domain.CommandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Command{}, &domain.DecodeError{Reason: "invalid command json", Err: err}
	}
	if p.Intent == "" {
		return domain.Command{}, &domain.DecodeError{Reason: "missing intent"}
	}
	return p.Command(), nil
}

func EncodeStatus(update domain.StatusUpdate) ([]byte, error) {
	p := domain.StatusPayload{
		DeviceID: string(update.DeviceID),
		Status:   update.Status,
	}
	if !update.Timestamp.IsZero() {
		ts := domain.UnixSeconds(update.Timestamp)
		p.Timestamp = &ts
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}
	return data, nil
}

// DecodeStatus validates a status topic payload. The device id is not checked
// against the catalog here; the state store rejects unknown ids.
func DecodeStatus(payload []byte) (domain.StatusUpdate, error) {
	if len(payload) > maxPayloadSize {
		return domain.StatusUpdate{}, &domain.DecodeError{Reason: "payload too large"}
	}

	var p domain.StatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.StatusUpdate{}, &domain.DecodeError{Reason: "invalid status json", Err: err}
	}

	if p.DeviceID == "" {
		return domain.StatusUpdate{}, &domain.DecodeError{Reason: "missing device_id"}
	}

	status := p.Status
	if status == "" {
		status = p.State
	}
	if status == "" {
		return domain.StatusUpdate{}, &domain.DecodeError{Reason: "missing status"}
	}

	update := domain.StatusUpdate{
		DeviceID: domain.DeviceID(p.DeviceID),
		Status:   status,
	}
	if p.Timestamp != nil {
		update.Timestamp = domain.FromUnixSeconds(*p.Timestamp)
	}
	return update, nil
}
