// Package codec defines the pure, injectable encode/decode boundary
// between a session payload and the opaque bytes the backend stores.
// The spec treats the wire format as out of scope; this package ships
// the default the teacher repo already uses everywhere it persists a
// session (encoding/json.Marshal/Unmarshal in
// workspace/repository.ValkeySessionStore.Save/Get) without hardcoding
// it into the Compartment Engine.
package codec

import "encoding/json"

// Codec encodes a typed payload to bytes and decodes it back. Both
// directions are pure: no I/O, no side effects, deterministic on input.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// JSON is the default Codec, backed by encoding/json.
type JSON[T any] struct{}

// NewJSON returns a JSON codec for T.
func NewJSON[T any]() JSON[T] {
	return JSON[T]{}
}

func (JSON[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[T]) Decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
