package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOROptions tunes the CBOR codec.
type CBOROptions struct {
	// Deterministic selects RFC 8949 core deterministic encoding, so equal
	// values always produce equal payloads.
	Deterministic bool
	// MaxNestedLevels bounds decode depth of payloads read back from the
	// bucket; 0 keeps the library default (32).
	MaxNestedLevels int
}

// CBOR stores values as CBOR. Times are written as RFC 3339 strings so other
// readers of the bucket see the same instant. Build it with NewCBOR or MustCBOR;
// the zero value has no modes and panics on use.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var (
	_ Codec[struct{}] = CBOR[struct{}]{}
	_ Named           = CBOR[struct{}]{}
)

func NewCBOR[V any](o CBOROptions) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if o.Deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}

	do := cbor.DecOptions{MaxNestedLevels: o.MaxNestedLevels}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics if o is invalid. Meant for package-level vars.
func MustCBOR[V any](o CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](o)
	if err != nil {
		panic(err)
	}
	return c
}

func (CBOR[V]) Name() string { return "cbor" }

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if err := c.dec.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
