package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDevice     = errors.New("unknown device")
	ErrUnknownIntent     = errors.New("unknown intent")
	ErrMissingTarget     = errors.New("command has no target device")
	ErrUnsupportedIntent = errors.New("device does not support intent")
	ErrNotConnected      = errors.New("bus not connected")
	ErrQueueFull         = errors.New("outbound queue full")
	ErrBridgeClosed      = errors.New("bus bridge closed")
)

// UnknownDeviceError is returned when a status update or command references a
// device outside the catalog.
type UnknownDeviceError struct {
	DeviceID DeviceID
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device %q", e.DeviceID)
}

func (e *UnknownDeviceError) Is(target error) bool {
	return target == ErrUnknownDevice
}

// DecodeError marks a malformed wire payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding payload: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TransportError means a command could not be handed to the message bus.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
