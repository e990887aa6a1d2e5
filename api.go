package riakcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/riakcache/codec"
	pr "github.com/unkn0wn-root/riakcache/provider"
)

// Store is the generic cache contract backed by a provider bucket.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
//
// Read, Write, Delete, DeleteMatched and Exist are fail-soft: store failures
// are logged and surface as miss/false/0.
type Store[V any] interface {
	Read(ctx context.Context, key string, opts ...Option) (V, bool)
	Write(ctx context.Context, key string, value V, opts ...Option) bool
	Delete(ctx context.Context, key string, opts ...Option) bool
	DeleteMatched(ctx context.Context, m Matcher, opts ...Option) int
	Exist(ctx context.Context, key string, opts ...Option) bool

	// Explicit forms: same behavior, but store failures are visible.
	Fetch(ctx context.Context, key string, opts ...Option) Result[V]
	Put(ctx context.Context, key string, value V, opts ...Option) error
	Remove(ctx context.Context, key string, opts ...Option) error
	Probe(ctx context.Context, key string, opts ...Option) Status

	Close(ctx context.Context) error
}

// Status is the outcome of a lookup.
type Status uint8

const (
	StatusMiss        Status = iota // absent or expired
	StatusHit                       // present
	StatusUnavailable               // the store could not answer
)

func (s Status) String() string {
	switch s {
	case StatusMiss:
		return "miss"
	case StatusHit:
		return "hit"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is returned by Fetch.
// Err is set when Status is StatusUnavailable, and on a miss caused by a
// payload the codec could not decode.
type Result[V any] struct {
	Value  V
	Status Status
	Err    error
	// ExpiresAt is when a hit stops being served; zero if it never expires.
	ExpiresAt time.Time
}

func (r Result[V]) Hit() bool { return r.Status == StatusHit }

// Options tune the store. Only Provider and Codec are required.
type Options[V any] struct {
	// Required
	Provider pr.Provider
	Codec    c.Codec[V]

	Logger      Logger           // if nil, NopLogger is used
	Hooks       Hooks            // if nil, NopHooks is used
	DefaultTTL  time.Duration    // 0 => entries never expire unless ExpiresIn is passed
	ReadQuorum  uint32           // 0 => 1
	WriteQuorum uint32           // 0 => 1
	Now         func() time.Time // if nil, time.Now

	// SkipDivergenceCheck leaves bucket properties alone. Only for tooling
	// that must not reconfigure a bucket it does not own.
	SkipDivergenceCheck bool
}

// New validates opts and ensures the bucket does not allow siblings.
// Failures to read or update bucket properties are returned as
// *ConfigurationError.
func New[V any](ctx context.Context, opts Options[V]) (Store[V], error) {
	return newStore[V](ctx, opts)
}

// Option adjusts a single call.
type Option func(*callOptions)

type callOptions struct {
	expiresIn time.Duration
}

// ExpiresIn overrides Options.DefaultTTL for one call. On Write it sets the
// absolute expiry; on Read it is the TTL applied to last-modified when the
// entry carries no absolute expiry. A negative value disables expiry.
func ExpiresIn(d time.Duration) Option {
	return func(o *callOptions) { o.expiresIn = d }
}

// TTL resolves the effective TTL of opts against def.
// Exported for wrappers such as localcache.
func TTL(def time.Duration, opts ...Option) time.Duration {
	co := callOptions{}
	for _, o := range opts {
		o(&co)
	}
	ttl := coalesce(co.expiresIn, def)
	if ttl < 0 {
		return 0
	}
	return ttl
}
