package channels

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Listener receives the decoded messages of one channel. A returned error or
// a panic is reported through the error hook and does not affect other listeners.
type Listener[T any] func(ctx context.Context, msg T) error

type listener[T any] struct {
	id      uuid.UUID
	fn      Listener[T]
	removed atomic.Bool
}

// Channel is a named, typed publish/subscribe unit. The transport is
// subscribed while the channel has at least one listener.
type Channel[T any] struct {
	name     string
	codec    Codec[T]
	registry *Registry
	logger   *zap.Logger

	// mu serializes listener changes with the transport calls they trigger
	mu         sync.Mutex
	listeners  atomic.Pointer[[]*listener[T]]
	subscribed bool
	closed     atomic.Bool
}

func newChannel[T any](r *Registry, name string, codec Codec[T]) *Channel[T] {
	c := &Channel[T]{
		name:     name,
		codec:    codec,
		registry: r,
		logger:   r.logger.With(zap.String("channel", name)),
	}
	c.listeners.Store(&[]*listener[T]{})
	return c
}

// Name returns the channel name the transport subscribes to.
func (c *Channel[T]) Name() string { return c.name }

// ContentType returns the content type of the channel's codec.
func (c *Channel[T]) ContentType() string { return c.codec.ContentType() }

func (c *Channel[T]) messageType() string { return reflect.TypeOf((*T)(nil)).Elem().String() }

// Listeners returns the number of registered listeners.
func (c *Channel[T]) Listeners() int { return len(*c.listeners.Load()) }

// Subscribed reports whether the transport is expected to be subscribed to the channel.
func (c *Channel[T]) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// Publish encodes msg and hands it to the transport. Nothing is buffered or
// retried: failures are returned as ErrEncode or ErrTransport.
func (c *Channel[T]) Publish(ctx context.Context, msg T) error {
	if c.closed.Load() {
		return ErrRegistryClosed
	}

	data, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: channel %q: %w", ErrEncode, c.name, err)
	}

	if err := c.registry.transport.Publish(ctx, c.name, data); err != nil {
		return transportError("publish", c.name, err)
	}
	return nil
}

// Subscribe registers fn. The first listener of the channel subscribes the
// transport; if that fails the listener is not registered.
func (c *Channel[T]) Subscribe(ctx context.Context, fn Listener[T]) (*Subscription, error) {
	if fn == nil {
		return nil, ErrInvalidListener
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrRegistryClosed
	}

	if !c.subscribed {
		if err := c.registry.transport.Subscribe(ctx, c.name); err != nil {
			return nil, transportError("subscribe", c.name, err)
		}
		c.subscribed = true
		c.logger.Debug("channel subscribed")
	}

	l := &listener[T]{id: uuid.New(), fn: fn}
	current := *c.listeners.Load()
	next := make([]*listener[T], len(current), len(current)+1)
	copy(next, current)
	next = append(next, l)
	c.listeners.Store(&next)

	c.logger.Debug("listener added",
		zap.Stringer("subscription", l.id),
		zap.Int("listeners", len(next)),
	)

	return &Subscription{
		id:      l.id,
		channel: c.name,
		remove:  func(ctx context.Context) error { return c.remove(ctx, l) },
	}, nil
}

func (c *Channel[T]) remove(ctx context.Context, l *listener[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !l.removed.CompareAndSwap(false, true) {
		return nil
	}

	current := *c.listeners.Load()
	next := make([]*listener[T], 0, len(current))
	for _, other := range current {
		if other != l {
			next = append(next, other)
		}
	}
	c.listeners.Store(&next)

	c.logger.Debug("listener removed",
		zap.Stringer("subscription", l.id),
		zap.Int("listeners", len(next)),
	)

	if len(next) > 0 || !c.subscribed {
		return nil
	}

	c.subscribed = false
	if c.closed.Load() {
		return nil
	}
	if err := c.registry.transport.Unsubscribe(ctx, c.name); err != nil {
		return transportError("unsubscribe", c.name, err)
	}
	c.logger.Debug("channel unsubscribed")
	return nil
}

// deliver decodes payload and invokes every listener in registration order.
func (c *Channel[T]) deliver(ctx context.Context, payload []byte) {
	msg, err := c.codec.Decode(payload)
	if err != nil {
		c.registry.report(ctx, c.name, fmt.Errorf("%w: channel %q: %w", ErrDecode, c.name, err))
		return
	}

	for _, l := range *c.listeners.Load() {
		if l.removed.Load() {
			continue
		}
		if err := invoke(ctx, l, msg); err != nil {
			c.registry.report(ctx, c.name, fmt.Errorf("%w: subscription %s: %w", ErrListener, l.id, err))
		}
	}
}

func invoke[T any](ctx context.Context, l *listener[T], msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.fn(ctx, msg)
}

// resubscribe re-issues the transport subscribe if the channel has listeners.
// It reports whether a subscribe was attempted.
func (c *Channel[T]) resubscribe(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() || len(*c.listeners.Load()) == 0 {
		return false, nil
	}
	if err := c.registry.transport.Subscribe(ctx, c.name); err != nil {
		return true, transportError("resubscribe", c.name, err)
	}
	c.subscribed = true
	return true, nil
}

func (c *Channel[T]) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed.Store(true)
	for _, l := range *c.listeners.Load() {
		l.removed.Store(true)
	}
	c.listeners.Store(&[]*listener[T]{})
	c.subscribed = false
}

func transportError(op, channel string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrTransport, op, channel, err)
}

// Subscription is the handle returned by Channel.Subscribe.
type Subscription struct {
	id      uuid.UUID
	channel string
	remove  func(ctx context.Context) error
}

// ID identifies the listener in logs.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Channel returns the name of the channel the listener is registered on.
func (s *Subscription) Channel() string { return s.channel }

// Unsubscribe removes the listener. Once it returns the listener is not
// invoked for further messages. Calling it again is a no-op.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.remove(ctx)
}
