// Package bus bridges the controller and an external publish/subscribe
// transport.
package bus

import "context"

type MessageHandler func(payload []byte)

// Transport is one session with a topic-based broker. Connect may be called
// again after the session was lost. ConnectionLost yields one value per
// session that ended without Disconnect being called.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	ConnectionLost() <-chan error
	Disconnect()
}

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
