package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("riakcache: corrupt entry")
	ErrTooLong = errors.New("riakcache: entry field too long")
	magic4     = [...]byte{'R', 'K', 'C', 'E'}
)

// Entry is a stored object together with the metadata a bare byte store
// cannot carry on its own.
type Entry struct {
	ContentType  string
	Meta         map[string]string
	LastModified time.Time
	Payload      []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Layout:
//
//	magic(4) | ver(1) | modified(i64 be, unix nanos) | ctLen(u16 be) | ct(ctLen)
//	nMeta(u16 be) | [kLen(u16 be) | k | vLen(u16 be) | v] * nMeta
//	plen(u32 be) | payload(plen)
//
// Meta pairs are written in key order so equal entries encode identically.
func Encode(e Entry) ([]byte, error) {
	if len(e.ContentType) > 0xFFFF || len(e.Meta) > 0xFFFF || uint64(len(e.Payload)) > 0xFFFFFFFF {
		return nil, ErrTooLong
	}
	total := 4 + 1 + 8 + 2 + len(e.ContentType) + 2 + 4 + len(e.Payload)
	mk := make([]string, 0, len(e.Meta))
	for k, v := range e.Meta {
		if len(k) == 0 || len(k) > 0xFFFF || len(v) > 0xFFFF {
			return nil, ErrTooLong
		}
		mk = append(mk, k)
		total += 2 + len(k) + 2 + len(v)
	}
	sort.Strings(mk)

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	var mod int64
	if !e.LastModified.IsZero() {
		mod = e.LastModified.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(mod))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.ContentType)))
	buf.Write(u2[:])
	buf.WriteString(e.ContentType)

	binary.BigEndian.PutUint16(u2[:], uint16(len(mk)))
	buf.Write(u2[:])
	for _, k := range mk {
		v := e.Meta[k]
		binary.BigEndian.PutUint16(u2[:], uint16(len(k)))
		buf.Write(u2[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint16(u2[:], uint16(len(v)))
		buf.Write(u2[:])
		buf.WriteString(v)
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// Decode parses b. The returned Payload aliases b.
func Decode(b []byte) (Entry, error) {
	var e Entry
	const hdr = 4 + 1 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return e, ErrCorrupt
	}
	off := 5

	if mod := int64(binary.BigEndian.Uint64(b[off : off+8])); mod != 0 {
		e.LastModified = time.Unix(0, mod)
	}
	off += 8

	s, off, ok := readString16(b, off)
	if !ok {
		return Entry{}, ErrCorrupt
	}
	e.ContentType = s

	if off+2 > len(b) {
		return Entry{}, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if n > 0 {
		e.Meta = make(map[string]string, n)
	}
	for i := 0; i < n; i++ {
		var k, v string
		if k, off, ok = readString16(b, off); !ok || k == "" {
			return Entry{}, ErrCorrupt
		}
		if v, off, ok = readString16(b, off); !ok {
			return Entry{}, ErrCorrupt
		}
		e.Meta[k] = v
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off { // strict framing; no trailing bytes
		return Entry{}, ErrCorrupt
	}
	e.Payload = b[off : off+plen]
	return e, nil
}

func readString16(b []byte, off int) (string, int, bool) {
	if off+2 > len(b) {
		return "", off, false
	}
	l := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if l > len(b)-off {
		return "", off, false
	}
	return string(b[off : off+l]), off + l, true
}
