package codec

var (
	_ Codec[[]byte] = Bytes{}
	_ Codec[string] = String{}
)

// Bytes stores []byte payloads as they are. The slice is not copied.
type Bytes struct{}

func (Bytes) Name() string                    { return "raw" }
func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String stores text as its bytes; no encoding is checked.
type String struct{}

func (String) Name() string                    { return "string" }
func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
