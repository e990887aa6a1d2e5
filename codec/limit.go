package codec

import "fmt"

// LimitCodec wraps another codec and refuses to decode payloads larger than
// MaxDecode bytes. Encode is forwarded to Inner unchanged.
// If MaxDecode <= 0, size limiting is disabled.
//
// Useful when the bucket is shared with writers you do not control.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

// Name reports the inner codec's name; the limit does not change the format.
func (c LimitCodec[V]) Name() string {
	if n, ok := c.Inner.(Named); ok {
		return n.Name()
	}
	return ""
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
