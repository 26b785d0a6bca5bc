package channels

import (
	"context"
	"sync"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

// Bus owns a transport together with the channel registry, dispatcher and
// reconnection coordinator built on top of it.
type Bus struct {
	registry    *Registry
	transport   Transport
	dispatcher  *Dispatcher
	coordinator *Coordinator
	logger      *zap.Logger
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// OpenChannel is Open on the bus's registry. The bus must be running.
func OpenChannel[T any](b *Bus, name string, codec Codec[T]) (*Channel[T], error) {
	b.mu.RLock()
	started, stopped := b.started, b.stopped
	b.mu.RUnlock()

	if stopped {
		return nil, ErrRegistryClosed
	}
	if !started {
		return nil, ErrBusNotStarted
	}
	return Open(b.registry, name, codec)
}

// Registry returns the bus's channel registry.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// State returns the current connection state of the transport.
func (b *Bus) State() ConnectionState {
	return b.coordinator.State()
}

// Start wires the transport's callbacks and starts connecting
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrBusAlreadyStarted
	}
	if b.stopped {
		return ErrRegistryClosed
	}

	b.transport.OnMessage(b.dispatcher.Ingest)
	b.transport.OnConnectionStateChange(b.coordinator.Notify)
	b.dispatcher.Start()
	b.coordinator.Start()

	// a bus whose transport failed to start is torn down and cannot be restarted
	if err := b.transport.Start(ctx); err != nil {
		b.coordinator.Stop()
		b.dispatcher.Stop()
		b.registry.Close()
		b.stopped = true
		return err
	}

	b.started = true
	b.logger.Info("bus started")
	return nil
}

// IsRunning returns true if the bus is currently running
func (b *Bus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

// Shutdown closes the transport, stops delivery and tears down the registry.
func (b *Bus) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}

	err := b.transport.Close()

	b.coordinator.Stop()
	b.dispatcher.Stop()
	b.registry.Close()

	b.started = false
	b.stopped = true
	b.logger.Info("bus stopped")
	return err
}

// New creates a bus with the provided transport
func New(transport Transport, opts ...Option) *Bus {
	options := buildOptions(opts)
	registry := NewRegistry(transport, opts...)
	return &Bus{
		registry:    registry,
		transport:   transport,
		dispatcher:  NewDispatcher(registry, opts...),
		coordinator: NewCoordinator(registry, opts...),
		logger:      options.Logger.Named("bus"),
	}
}

// NewWithValkey creates a bus with a Valkey transport
func NewWithValkey(client valkey.Client, opts ...Option) *Bus {
	return New(NewValkeyTransport(client, opts...), opts...)
}

// NewWithValkeyAddress creates a bus with a Valkey transport using an address
func NewWithValkeyAddress(address string, clientOption valkey.ClientOption, opts ...Option) (*Bus, error) {
	client, err := NewValkeyClient(address, clientOption)
	if err != nil {
		return nil, err
	}
	return NewWithValkey(client, opts...), nil
}
