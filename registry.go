package channels

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// channelEntry is the type-erased view of a Channel[T] used by the
// dispatcher and the reconnection coordinator.
type channelEntry interface {
	Name() string
	ContentType() string
	Listeners() int
	messageType() string
	deliver(ctx context.Context, payload []byte)
	resubscribe(ctx context.Context) (bool, error)
	close()
}

// Registry maps channel names to channels. A name maps to at most one
// channel for the lifetime of the registry.
type Registry struct {
	channels  map[string]channelEntry
	mu        sync.RWMutex
	closed    bool
	transport Transport
	onError   ErrorHandler
	logger    *zap.Logger
}

// NewRegistry creates a registry whose channels publish and subscribe through transport.
func NewRegistry(transport Transport, opts ...Option) *Registry {
	options := buildOptions(opts)
	return &Registry{
		channels:  make(map[string]channelEntry),
		transport: transport,
		onError:   options.OnError,
		logger:    options.Logger.Named("registry"),
	}
}

// Open returns the channel registered under name, creating it on first use.
// Asking for an existing name with a different message type or content type
// fails with ErrChannelTypeConflict.
func Open[T any](r *Registry, name string, codec Codec[T]) (*Channel[T], error) {
	if name == "" {
		return nil, ErrInvalidChannelName
	}
	if codec == nil {
		return nil, ErrInvalidCodec
	}

	r.mu.RLock()
	existing, ok := r.channels[name]
	closed := r.closed
	r.mu.RUnlock()
	if ok {
		return asChannel(existing, name, codec)
	}
	if closed {
		return nil, ErrRegistryClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	// another caller may have created it between the two locks
	if existing, ok := r.channels[name]; ok {
		return asChannel(existing, name, codec)
	}

	ch := newChannel(r, name, codec)
	r.channels[name] = ch
	r.logger.Debug("channel created",
		zap.String("channel", name),
		zap.String("content_type", codec.ContentType()),
	)
	return ch, nil
}

func asChannel[T any](entry channelEntry, name string, codec Codec[T]) (*Channel[T], error) {
	ch, ok := entry.(*Channel[T])
	if !ok || ch.ContentType() != codec.ContentType() {
		return nil, fmt.Errorf("%w: %q is %s (%s), requested %s (%s)",
			ErrChannelTypeConflict, name,
			entry.messageType(), entry.ContentType(),
			reflect.TypeOf((*T)(nil)).Elem().String(), codec.ContentType(),
		)
	}
	return ch, nil
}

func (r *Registry) lookup(name string) (channelEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// snapshot returns the channels registered at the time of the call.
func (r *Registry) snapshot() []channelEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]channelEntry, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// Names returns the registered channel names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// report forwards an asynchronous failure to the logger and the error hook.
func (r *Registry) report(ctx context.Context, channel string, err error) {
	r.logger.Warn("channel error", zap.String("channel", channel), zap.Error(err))
	r.onError(ctx, channel, err)
}

// Close detaches every channel. Channels obtained earlier fail with
// ErrRegistryClosed afterwards and their listeners are never invoked again.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for name, ch := range r.channels {
		ch.close()
		delete(r.channels, name)
	}
}
