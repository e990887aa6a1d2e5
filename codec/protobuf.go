package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores proto messages in wire format. Construct it with
// NewProtobuf; Decode allocates each message through the given constructor.
type Protobuf[T proto.Message] struct {
	alloc func() T
}

var _ Named = Protobuf[proto.Message]{}

func NewProtobuf[T proto.Message](alloc func() T) Protobuf[T] {
	return Protobuf[T]{alloc: alloc}
}

func (Protobuf[T]) Name() string { return "protobuf" }

func (Protobuf[T]) Encode(m T) ([]byte, error) { return proto.Marshal(m) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.alloc()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
