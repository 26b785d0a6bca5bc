package channels

import "context"

// ConnectionState is the connection state reported by a Transport.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Reconnecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Transport defines the raw publish/subscribe primitives of the key/value store.
// A single Transport connection is shared by every channel of a Bus.
type Transport interface {
	// Start begins connecting. Connection state changes are reported to the
	// callback registered with OnConnectionStateChange.
	Start(ctx context.Context) error

	// Publish sends payload to every subscriber of channel
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe starts receiving messages for channel on the shared connection
	Subscribe(ctx context.Context, channel string) error

	// Unsubscribe stops receiving messages for channel
	Unsubscribe(ctx context.Context, channel string) error

	// OnMessage registers the sole receiver of incoming messages.
	// Messages must be delivered in the order the server emitted them.
	OnMessage(fn func(channel string, payload []byte))

	// OnConnectionStateChange registers the sole receiver of state changes
	OnConnectionStateChange(fn func(state ConnectionState))

	// Close shuts down the transport and releases resources
	Close() error

	// IsConnected returns true if the transport is connected and ready
	IsConnected() bool
}
