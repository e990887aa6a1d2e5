package riakcache

import (
	"net/http"
	"time"

	pr "github.com/unkn0wn-root/riakcache/provider"
)

// formatExpiry renders t as an HTTP date. HTTP dates have second
// granularity, so t is rounded up: an entry may outlive its TTL by under a
// second but never expires early.
func formatExpiry(t time.Time) string {
	if r := t.Truncate(time.Second); !r.Equal(t) {
		t = r.Add(time.Second)
	}
	return t.UTC().Format(http.TimeFormat)
}

// deadline is when obj stops being served: an absolute expires-at wins;
// without one, a positive ttl is measured from the store's last-modified
// time. Zero means never. Clocks of writers and readers are assumed to be
// reasonably in sync.
func deadline(obj *pr.Object, ttl time.Duration) time.Time {
	if s := obj.Meta[metaExpiresAt]; s != "" {
		if at, err := http.ParseTime(s); err == nil {
			return at
		}
	}
	if ttl > 0 && !obj.LastModified.IsZero() {
		return obj.LastModified.Add(ttl)
	}
	return time.Time{}
}

func expired(at, now time.Time) bool {
	return !at.IsZero() && at.Before(now)
}
