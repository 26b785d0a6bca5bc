package channels

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

type protoCodec[T proto.Message] struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec with deterministic marshaling.
// T must be a generated message pointer type such as *pb.Event.
func Proto[T proto.Message]() Codec[T] {
	return protoCodec[T]{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{},
	}
}

func (p protoCodec[T]) Encode(msg T) ([]byte, error) {
	if any(msg) == nil || !msg.ProtoReflect().IsValid() {
		return nil, errors.New("protobuf: nil message")
	}
	return p.mo.Marshal(msg)
}

func (p protoCodec[T]) Decode(data []byte) (T, error) {
	var zero T
	// Generated messages return a usable reflection handle on a nil receiver.
	msg := zero.ProtoReflect().New().Interface().(T)
	if err := p.uo.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg, nil
}

func (p protoCodec[T]) ContentType() string { return "application/x-protobuf" }
