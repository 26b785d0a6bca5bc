package channels

import (
	"encoding/json"
	"strconv"
)

// Codec converts channel messages to and from their wire payload.
// Implementations must be stateless and safe for concurrent use.
type Codec[T any] interface {
	Encode(msg T) ([]byte, error)
	Decode(data []byte) (T, error)

	// ContentType identifies the wire format. Two codecs for the same message
	// type are compatible when their content types are equal.
	ContentType() string
}

type stringCodec struct{}

// String returns a codec that sends strings as raw UTF-8 bytes.
func String() Codec[string] { return stringCodec{} }

func (stringCodec) Encode(msg string) ([]byte, error) { return []byte(msg), nil }
func (stringCodec) Decode(data []byte) (string, error) { return string(data), nil }
func (stringCodec) ContentType() string { return "text/plain" }

type bytesCodec struct{}

// Bytes returns a pass-through codec. Decoded slices are copies, so
// listeners may keep them.
func Bytes() Codec[[]byte] { return bytesCodec{} }

func (bytesCodec) Encode(msg []byte) ([]byte, error) { return msg, nil }
func (bytesCodec) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
func (bytesCodec) ContentType() string { return "application/octet-stream" }

type intCodec struct{}

// Int returns a codec that writes integers as base-10 text, the same
// representation redis-cli and other clients use.
func Int() Codec[int64] { return intCodec{} }

func (intCodec) Encode(msg int64) ([]byte, error) {
	return strconv.AppendInt(nil, msg, 10), nil
}

func (intCodec) Decode(data []byte) (int64, error) {
	return strconv.ParseInt(string(data), 10, 64)
}

func (intCodec) ContentType() string { return "text/plain; type=int64" }

type jsonCodec[T any] struct{}

// JSON returns an encoding/json codec for T.
func JSON[T any]() Codec[T] { return jsonCodec[T]{} }

func (jsonCodec[T]) Encode(msg T) ([]byte, error) { return json.Marshal(msg) }

func (jsonCodec[T]) Decode(data []byte) (T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return msg, err
}

func (jsonCodec[T]) ContentType() string { return "application/json" }
