package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrBrokerUnavailable = errors.New("memory broker unavailable")
	ErrSessionLost       = errors.New("memory broker session lost")
)

const memoryInboxSize = 1024

// MemoryBroker is an in-process topic broker. Every client gets its own
// delivery goroutine, so messages reach a subscriber in publish order and
// handlers never run on the publisher's goroutine.
type MemoryBroker struct {
	logger *slog.Logger

	mu          sync.RWMutex
	unavailable bool
	clients     map[*MemoryTransport]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		clients: make(map[*MemoryTransport]struct{}),
	}
}

// WithLogger sets where dropped deliveries are reported. Call it before
// handing out clients.
func (b *MemoryBroker) WithLogger(logger *slog.Logger) *MemoryBroker {
	b.logger = logger
	return b
}

func (b *MemoryBroker) Client() *MemoryTransport {
	return &MemoryTransport{
		broker: b,
		subs:   make(map[string]MessageHandler),
		lost:   make(chan error, 1),
	}
}

// SetAvailable simulates a broker outage. Going unavailable ends every
// session and makes Connect fail until the broker is available again.
func (b *MemoryBroker) SetAvailable(available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.unavailable = !available
	if available {
		return
	}
	for c := range b.clients {
		c.drop(ErrSessionLost)
		delete(b.clients, c)
	}
}

func (b *MemoryBroker) deliver(topic string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.clients {
		c.enqueue(topic, payload)
	}
}

type delivery struct {
	handler MessageHandler
	payload []byte
}

type memorySession struct {
	inbox chan delivery
	stop  chan struct{}
}

func (s *memorySession) run() {
	for {
		select {
		case <-s.stop:
			return
		case d := <-s.inbox:
			d.handler(d.payload)
		}
	}
}

type MemoryTransport struct {
	broker  *MemoryBroker
	lost    chan error
	dropped atomic.Int64

	mu      sync.Mutex
	session *memorySession
	subs    map[string]MessageHandler
}

func (t *MemoryTransport) Connect(_ context.Context) error {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()

	if t.broker.unavailable {
		return ErrBrokerUnavailable
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return nil
	}

	select {
	case <-t.lost:
	default:
	}

	t.session = &memorySession{
		inbox: make(chan delivery, memoryInboxSize),
		stop:  make(chan struct{}),
	}
	go t.session.run()
	t.broker.clients[t] = struct{}{}
	return nil
}

func (t *MemoryTransport) Subscribe(_ context.Context, topic string, handler MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return ErrSessionLost
	}
	t.subs[topic] = handler
	return nil
}

func (t *MemoryTransport) Unsubscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.subs, topic)
	return nil
}

func (t *MemoryTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	connected := t.session != nil
	t.mu.Unlock()

	if !connected {
		return ErrSessionLost
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	t.broker.deliver(topic, data)
	return nil
}

// Dropped counts deliveries discarded because the inbox was full.
func (t *MemoryTransport) Dropped() int64 {
	return t.dropped.Load()
}

func (t *MemoryTransport) ConnectionLost() <-chan error {
	return t.lost
}

func (t *MemoryTransport) Disconnect() {
	t.broker.mu.Lock()
	defer t.broker.mu.Unlock()

	delete(t.broker.clients, t)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.endSession()
}

// drop ends the session as if the network failed. Caller holds broker.mu.
func (t *MemoryTransport) drop(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return
	}
	t.endSession()

	select {
	case t.lost <- err:
	default:
	}
}

func (t *MemoryTransport) endSession() {
	if t.session == nil {
		return
	}
	close(t.session.stop)
	t.session = nil
	t.subs = make(map[string]MessageHandler)
}

func (t *MemoryTransport) enqueue(topic string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return
	}
	handler, ok := t.subs[topic]
	if !ok {
		return
	}

	select {
	case t.session.inbox <- delivery{handler: handler, payload: payload}:
	default:
		n := t.dropped.Add(1)
		t.broker.logger.Warn("memory broker inbox full, dropping delivery", "topic", topic, "dropped", n)
	}
}
