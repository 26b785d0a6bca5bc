package channels

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ErrorHandler is a user-provided callback for failures that cannot be
// returned to a caller: decode errors, listener errors and resubscribe errors.
// Use errors.Is against ErrDecode, ErrListener or ErrResubscribe to tell them apart.
type ErrorHandler func(ctx context.Context, channel string, err error)
type Option func(*Options)

type Options struct {
	MsgBufferSize int
	Workers       int
	OnError       ErrorHandler
	Logger        *zap.Logger

	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
}

func defaultOptions() Options {
	return Options{
		MsgBufferSize: 100,
		Workers:       4,
		OnError: func(ctx context.Context, channel string, err error) {
			// Default: no-op
		},
		Logger:            zap.NewNop(),
		ReconnectMinDelay: 100 * time.Millisecond,
		ReconnectMaxDelay: 30 * time.Second,
	}
}

func buildOptions(opts []Option) Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithMsgBufferSize sets the initial per-worker queue capacity of the
// dispatcher. A backlog beyond it is logged, not dropped.
func WithMsgBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MsgBufferSize = size
		}
	}
}

// WithWorkers sets how many goroutines invoke listeners. Messages of one
// channel are always handled by the same worker.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithOnError sets the hook for decode, listener and resubscribe failures.
func WithOnError(handler ErrorHandler) Option {
	return func(o *Options) {
		if handler != nil {
			o.OnError = handler
		}
	}
}

// WithLogger sets the logger every component derives its named logger from.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithReconnectBackoff bounds the delay between reconnect attempts of the
// Valkey transport. The delay starts at min and doubles up to max.
func WithReconnectBackoff(min, max time.Duration) Option {
	return func(o *Options) {
		if min > 0 {
			o.ReconnectMinDelay = min
		}
		if max >= o.ReconnectMinDelay {
			o.ReconnectMaxDelay = max
		}
	}
}
