package channels

import (
	"context"
	"sync"
	"testing"
	"time"
)

// MockTransport implements the Transport interface for testing
type MockTransport struct {
	mu            sync.RWMutex
	published     map[string][][]byte
	connected     bool
	closed        bool
	startErr      error
	subscribed    map[string]bool
	subCalls      map[string]int
	subAttempts   map[string]int
	unsubCalls    map[string]int
	failSubscribe map[string]error
	onMessage     func(channel string, payload []byte)
	onState       func(state ConnectionState)
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		published:     make(map[string][][]byte),
		connected:     true,
		subscribed:    make(map[string]bool),
		subCalls:      make(map[string]int),
		subAttempts:   make(map[string]int),
		unsubCalls:    make(map[string]int),
		failSubscribe: make(map[string]error),
	}
}

func (m *MockTransport) Start(ctx context.Context) error {
	m.mu.RLock()
	err, connected := m.startErr, m.connected
	m.mu.RUnlock()

	if err != nil {
		return err
	}
	if connected {
		m.emit(Connected)
	}
	return nil
}

// Publish records the payload and loops it back when the channel is subscribed
func (m *MockTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return ErrTransportNotConnected
	}
	data := append([]byte(nil), payload...)
	m.published[channel] = append(m.published[channel], data)
	deliver := m.subscribed[channel]
	fn := m.onMessage
	m.mu.Unlock()

	if deliver && fn != nil {
		fn(channel, data)
	}
	return nil
}

func (m *MockTransport) Subscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subAttempts[channel]++
	if !m.connected {
		return ErrTransportNotConnected
	}
	if err := m.failSubscribe[channel]; err != nil {
		return err
	}
	m.subCalls[channel]++
	m.subscribed[channel] = true
	return nil
}

func (m *MockTransport) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrTransportNotConnected
	}
	m.unsubCalls[channel]++
	delete(m.subscribed, channel)
	return nil
}

func (m *MockTransport) OnMessage(fn func(channel string, payload []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

func (m *MockTransport) OnConnectionStateChange(fn func(state ConnectionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = fn
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.closed = true
	m.subscribed = make(map[string]bool)
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MockTransport) emit(state ConnectionState) {
	m.mu.RLock()
	fn := m.onState
	m.mu.RUnlock()
	if fn != nil {
		fn(state)
	}
}

// Disconnect simulates a dropped connection: the server forgets every subscription
func (m *MockTransport) Disconnect() {
	m.mu.Lock()
	m.connected = false
	m.subscribed = make(map[string]bool)
	m.mu.Unlock()
	m.emit(Disconnected)
}

// Reconnect simulates the client re-establishing the connection
func (m *MockTransport) Reconnect() {
	m.emit(Reconnecting)
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	m.emit(Connected)
}

// Inject delivers a raw payload as if the server had pushed it
func (m *MockTransport) Inject(channel string, payload []byte) {
	m.mu.RLock()
	fn := m.onMessage
	m.mu.RUnlock()
	if fn != nil {
		fn(channel, payload)
	}
}

func (m *MockTransport) FailSubscribe(channel string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failSubscribe, channel)
		return
	}
	m.failSubscribe[channel] = err
}

func (m *MockTransport) SubscribeCalls(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subCalls[channel]
}

func (m *MockTransport) SubscribeAttempts(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subAttempts[channel]
}

func (m *MockTransport) UnsubscribeCalls(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unsubCalls[channel]
}

func (m *MockTransport) Published(channel string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([][]byte, len(m.published[channel]))
	copy(result, m.published[channel])
	return result
}

func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// recorder collects the messages a listener receives
type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) listen(ctx context.Context, msg T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg)
	return nil
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.got))
	copy(out, r.got)
	return out
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// startBus starts a bus over a fresh mock transport and waits until it is connected
func startBus(t *testing.T, opts ...Option) (*Bus, *MockTransport) {
	t.Helper()
	transport := NewMockTransport()
	bus := New(transport, opts...)
	if err := bus.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start bus: %v", err)
	}
	t.Cleanup(func() { bus.Shutdown() })
	waitFor(t, "connected state", func() bool { return bus.State() == Connected })
	return bus, transport
}
