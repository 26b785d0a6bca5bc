package channels

import "errors"

var (
	ErrEncode                = errors.New("failed to encode message")
	ErrDecode                = errors.New("failed to decode message")
	ErrTransport             = errors.New("transport error")
	ErrTransportNotConnected = errors.New("transport not connected")
	ErrChannelTypeConflict   = errors.New("channel already registered with a different codec")
	ErrInvalidChannelName    = errors.New("invalid channel name")
	ErrInvalidCodec          = errors.New("invalid codec")
	ErrInvalidListener       = errors.New("invalid listener")
	ErrListener              = errors.New("listener failed")
	ErrResubscribe           = errors.New("failed to resubscribe channel")
	ErrRegistryClosed        = errors.New("registry closed")
	ErrBusNotStarted         = errors.New("bus not started")
	ErrBusAlreadyStarted     = errors.New("bus already started")
)
