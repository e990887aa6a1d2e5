// Package codec turns cached values into the opaque payload stored in the
// bucket, and back.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Named is implemented by codecs that can label their output. The label is
// stored next to the payload in the entry's "serialization" metadata so
// other readers of the bucket can tell how to decode it.
type Named interface {
	Name() string
}
