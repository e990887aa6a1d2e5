// Package keys converts logical cache keys into flat store keys and back.
package keys

import "strings"

const upperhex = "0123456789ABCDEF"

// safe reports whether b survives the first escaping pass unchanged:
// RFC 2396 unreserved and reserved characters.
func safe(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'();/?:@&=+$,[]", b) >= 0
}

// Escape percent-encodes every unsafe byte (including '%'), then encodes the
// path separator so the result is a single flat key segment.
func Escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !safe(s[i]) || s[i] == '/' {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		b := s[i]
		if safe(b) && b != '/' {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[b>>4])
		sb.WriteByte(upperhex[b&0x0F])
	}
	return sb.String()
}

// Unescape decodes every well-formed %XX sequence. Malformed sequences are
// kept verbatim, so foreign keys in a shared bucket never fail to decode.
func Unescape(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				buf = append(buf, hi<<4|lo)
				i += 2
				continue
			}
		}
		buf = append(buf, s[i])
	}
	return string(buf)
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
