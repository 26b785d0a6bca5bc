package channels

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Coordinator tracks the transport's connection state and resubscribes every
// channel that has listeners whenever the transport becomes connected.
// A channel whose resubscribe fails is retried on the next connect.
type Coordinator struct {
	registry *Registry
	events   chan ConnectionState
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once

	mu    sync.RWMutex
	state ConnectionState
}

func NewCoordinator(registry *Registry, opts ...Option) *Coordinator {
	options := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		registry: registry,
		events:   make(chan ConnectionState, 16),
		logger:   options.Logger.Named("coordinator"),
		ctx:      ctx,
		cancel:   cancel,
		state:    Disconnected,
	}
}

// Start launches the goroutine consuming state events. It is safe to call more than once.
func (c *Coordinator) Start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run()
		}()
	})
}

// Notify queues a state event. It is registered as the transport's
// connection state callback; events are applied in the order received.
func (c *Coordinator) Notify(state ConnectionState) {
	select {
	case c.events <- state:
	case <-c.ctx.Done():
	}
}

// State returns the last connection state applied.
func (c *Coordinator) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) run() {
	for {
		select {
		case state := <-c.events:
			c.apply(state)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) apply(state ConnectionState) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()

	if prev == state {
		return
	}
	c.logger.Info("connection state changed",
		zap.Stringer("from", prev),
		zap.Stringer("to", state),
	)

	if state == Connected {
		c.resubscribeAll()
	}
}

// resubscribeAll walks a snapshot of the registry. Channels created during
// the walk either appear in it or subscribed themselves on the live connection.
func (c *Coordinator) resubscribeAll() {
	var attempted, failed int
	for _, ch := range c.registry.snapshot() {
		if c.ctx.Err() != nil {
			return
		}
		ok, err := ch.resubscribe(c.ctx)
		if !ok {
			continue
		}
		attempted++
		if err != nil {
			failed++
			c.registry.report(c.ctx, ch.Name(), fmt.Errorf("%w: %w", ErrResubscribe, err))
		}
	}
	if attempted > 0 {
		c.logger.Info("channels resubscribed",
			zap.Int("attempted", attempted),
			zap.Int("failed", failed),
		)
	}
}

// Stop terminates the event loop and waits for an in-progress resubscribe to return.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}
