package riakcache

import "time"

const (
	defaultQuorum uint32 = 1

	contentType = "application/octet-stream"

	metaExpiresAt     = "expires-at"
	metaSerialization = "serialization"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func orNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
