package channels

import (
	"context"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

var _ Transport = (*ValkeyTransport)(nil)

// ValkeyTransport multiplexes every channel over one dedicated pub/sub
// connection and publishes through the shared client. The connection is
// re-established with exponential backoff when it breaks.
type ValkeyTransport struct {
	client     valkey.Client
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	conn       valkey.DedicatedClient
	started    bool
	onMessage  func(channel string, payload []byte)
	onState    func(state ConnectionState)
	closedChan chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
	options    Options
	logger     *zap.Logger
}

// Start launches the connection loop. State changes are reported through
// the OnConnectionStateChange callback, starting with Connected once the
// first connection is up.
func (v *ValkeyTransport) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.shouldStop() {
		return ErrTransportNotConnected
	}
	if v.started {
		return nil
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		v.connectionLoop()
	}()

	v.started = true
	return nil
}

// Publish publishes payload to the valkey channel
func (v *ValkeyTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if !v.IsConnected() {
		return ErrTransportNotConnected
	}

	cmd := v.client.B().Publish().Channel(channel).Message(valkey.BinaryString(payload)).Build()
	return v.client.Do(ctx, cmd).Error()
}

// Subscribe adds channel to the dedicated pub/sub connection
func (v *ValkeyTransport) Subscribe(ctx context.Context, channel string) error {
	conn := v.current()
	if conn == nil {
		return ErrTransportNotConnected
	}
	return conn.Do(ctx, conn.B().Subscribe().Channel(channel).Build()).Error()
}

// Unsubscribe removes channel from the dedicated pub/sub connection
func (v *ValkeyTransport) Unsubscribe(ctx context.Context, channel string) error {
	conn := v.current()
	if conn == nil {
		return ErrTransportNotConnected
	}
	return conn.Do(ctx, conn.B().Unsubscribe().Channel(channel).Build()).Error()
}

// OnMessage sets the receiver for messages of every subscribed channel
func (v *ValkeyTransport) OnMessage(fn func(channel string, payload []byte)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onMessage = fn
}

// OnConnectionStateChange sets the receiver for connection state changes
func (v *ValkeyTransport) OnConnectionStateChange(fn func(state ConnectionState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onState = fn
}

func (v *ValkeyTransport) current() valkey.DedicatedClient {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.conn
}

func (v *ValkeyTransport) setConn(conn valkey.DedicatedClient) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conn = conn
}

// connectionLoop keeps a dedicated pub/sub connection open until Close.
func (v *ValkeyTransport) connectionLoop() {
	retryDelay := v.options.ReconnectMinDelay

	for {
		if v.shouldStop() {
			return
		}

		established, err := v.session()
		if v.shouldStop() {
			return
		}

		if established {
			// Reset retry delay after a connection that was actually up
			retryDelay = v.options.ReconnectMinDelay
		}
		v.logger.Warn("pubsub connection unavailable",
			zap.Error(err),
			zap.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-v.closedChan:
			return
		case <-v.ctx.Done():
			return
		}

		retryDelay *= 2
		if retryDelay > v.options.ReconnectMaxDelay {
			retryDelay = v.options.ReconnectMaxDelay
		}
		v.emit(Reconnecting)
	}
}

// session runs one dedicated connection until it breaks. It reports whether
// the connection was established at all.
func (v *ValkeyTransport) session() (bool, error) {
	conn, release := v.client.Dedicate()
	defer release()

	wait := conn.SetPubSubHooks(valkey.PubSubHooks{
		OnMessage:      v.handleMessage,
		OnSubscription: v.handleSubscription,
	})

	// Dedicate does not dial eagerly; the ping proves the connection is usable.
	if err := conn.Do(v.ctx, conn.B().Ping().Build()).Error(); err != nil {
		return false, err
	}

	v.setConn(conn)
	v.emit(Connected)
	defer func() {
		v.setConn(nil)
		v.emit(Disconnected)
	}()

	select {
	case err := <-wait:
		return true, err
	case <-v.ctx.Done():
		return true, v.ctx.Err()
	}
}

// handleMessage forwards messages from the subscription to the registered receiver
func (v *ValkeyTransport) handleMessage(msg valkey.PubSubMessage) {
	v.mu.RLock()
	fn := v.onMessage
	v.mu.RUnlock()

	if fn == nil {
		return
	}
	fn(msg.Channel, []byte(msg.Message))
}

func (v *ValkeyTransport) handleSubscription(s valkey.PubSubSubscription) {
	v.logger.Debug("subscription changed",
		zap.String("kind", s.Kind),
		zap.String("channel", s.Channel),
		zap.Int64("count", s.Count),
	)
}

func (v *ValkeyTransport) emit(state ConnectionState) {
	v.mu.RLock()
	fn := v.onState
	v.mu.RUnlock()

	v.logger.Debug("connection state", zap.Stringer("state", state))
	if fn != nil {
		fn(state)
	}
}

// Close shuts down the valkey transport and cleans up resources
func (v *ValkeyTransport) Close() error {
	// Use sync.Once to ensure cleanup happens only once
	v.once.Do(func() {
		// Signal close to all goroutines
		close(v.closedChan)
		v.cancel()

		// Wait for the connection loop to release its dedicated connection
		v.wg.Wait()

		v.client.Close()
	})

	return nil
}

// IsConnected returns true if the dedicated pub/sub connection is up
func (v *ValkeyTransport) IsConnected() bool {
	return v.current() != nil
}

func (v *ValkeyTransport) shouldStop() bool {
	select {
	case <-v.closedChan:
		return true
	case <-v.ctx.Done():
		return true
	default:
		return false
	}
}

// NewValkeyClient creates a new valkey client. address is used when
// option carries no InitAddress.
func NewValkeyClient(address string, option valkey.ClientOption) (valkey.Client, error) {
	if len(option.InitAddress) == 0 {
		option.InitAddress = []string{address}
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, err
	}

	return client, nil
}

// NewValkeyTransport creates a new valkey transport instance
func NewValkeyTransport(client valkey.Client, opts ...Option) *ValkeyTransport {
	ctx, cancel := context.WithCancel(context.Background())
	options := buildOptions(opts)

	return &ValkeyTransport{
		client:     client,
		ctx:        ctx,
		cancel:     cancel,
		closedChan: make(chan struct{}),
		options:    options,
		logger:     options.Logger.Named("valkey"),
	}
}
