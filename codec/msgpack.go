package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack stores values as MessagePack. The zero value reads `msgpack` struct
// tags; set JSONTags to reuse the `json` tags of types already cached with JSON.
type Msgpack[V any] struct {
	JSONTags bool
}

var _ Named = Msgpack[struct{}]{}

func (Msgpack[V]) Name() string { return "msgpack" }

func (c Msgpack[V]) Encode(v V) ([]byte, error) {
	if !c.JSONTags {
		return msgpack.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	if c.JSONTags {
		dec.SetCustomStructTag("json")
	}
	err := dec.Decode(&v)
	return v, err
}
