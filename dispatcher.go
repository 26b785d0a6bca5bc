package channels

import (
	"context"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
)

type inbound struct {
	channel string
	payload []byte
}

// shard is the pending queue of one worker. It grows without bound so that
// Ingest never blocks the transport's read loop: a listener may be waiting
// on a subscribe or unsubscribe reply that the same read loop has to deliver.
type shard struct {
	mu      sync.Mutex
	pending []inbound
	notify  chan struct{}
}

// Dispatcher moves incoming transport messages off the transport's read
// loop and onto a fixed set of workers. A channel is always handled by the
// same worker, which keeps per-channel order while different channels run in parallel.
type Dispatcher struct {
	registry *Registry
	shards   []*shard
	capacity int
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	options := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	shards := make([]*shard, options.Workers)
	for i := range shards {
		shards[i] = &shard{
			pending: make([]inbound, 0, options.MsgBufferSize),
			notify:  make(chan struct{}, 1),
		}
	}

	return &Dispatcher{
		registry: registry,
		shards:   shards,
		capacity: options.MsgBufferSize,
		logger:   options.Logger.Named("dispatcher"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		for i, s := range d.shards {
			d.wg.Add(1)
			go func(id int, s *shard) {
				defer d.wg.Done()
				d.worker(id, s)
			}(i, s)
		}
	})
}

// Ingest queues one message and returns without waiting for the worker.
// It is registered as the transport's message callback.
func (d *Dispatcher) Ingest(channel string, payload []byte) {
	if d.ctx.Err() != nil {
		return
	}

	s := d.shards[d.shard(channel)]
	s.mu.Lock()
	s.pending = append(s.pending, inbound{channel: channel, payload: payload})
	backlog := len(s.pending)
	s.mu.Unlock()

	if backlog == d.capacity+1 {
		d.logger.Warn("dispatch backlog above buffer size",
			zap.String("channel", channel),
			zap.Int("buffer_size", d.capacity),
		)
	}

	select {
	case s.notify <- struct{}{}:
	default:
		// worker already signalled
	}
}

func (d *Dispatcher) shard(channel string) int {
	if len(d.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(channel))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) worker(id int, s *shard) {
	var batch []inbound
	for {
		select {
		case <-s.notify:
		case <-d.ctx.Done():
			d.logger.Debug("worker stopped", zap.Int("worker", id))
			return
		}

		s.mu.Lock()
		batch, s.pending = s.pending, batch[:0]
		s.mu.Unlock()

		for i, msg := range batch {
			if d.ctx.Err() != nil {
				return
			}
			d.dispatch(msg)
			batch[i] = inbound{}
		}
	}
}

func (d *Dispatcher) dispatch(msg inbound) {
	ch, ok := d.registry.lookup(msg.channel)
	if !ok {
		d.logger.Warn("message for unknown channel dropped", zap.String("channel", msg.channel))
		return
	}
	ch.deliver(d.ctx, msg.payload)
}

// Stop terminates the workers and waits for in-flight deliveries to return.
// Queued messages that were not yet delivered are discarded.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}
