package channels

import (
	cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec[T any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec (RFC 8949 core deterministic encoding).
func CBOR[T any]() (Codec[T], error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec[T]{enc: em, dec: dm}, nil
}

func (c cborCodec[T]) Encode(msg T) ([]byte, error) { return c.enc.Marshal(msg) }

func (c cborCodec[T]) Decode(data []byte) (T, error) {
	var msg T
	err := c.dec.Unmarshal(data, &msg)
	return msg, err
}

func (c cborCodec[T]) ContentType() string { return "application/cbor" }
