// Package localcache puts an in-process front in front of a riakcache.Store.
//
// Hits are served from the front without a store round trip; misses fall
// through to the inner store and successful reads are copied into the
// front. Writes go to the inner store first and reach the front only if
// the store accepted them. Deletes drop the front entry before touching
// the store, and DeleteMatched clears the whole front.
//
// Front entries live at most Options.TTL, which bounds how stale a value
// can be when another process changes the key. Keep it short. An entry is
// never kept in the front past its own expiry.
package localcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/riakcache"
	c "github.com/unkn0wn-root/riakcache/codec"
)

// Front is a byte cache with per-entry TTL. It must be safe for concurrent use.
type Front interface {
	Get(key string) ([]byte, bool)
	// Set returns false when the front declined the entry.
	Set(key string, value []byte, ttl time.Duration) bool
	Del(key string)
	Clear()
	Close() error
}

type Options struct {
	TTL        time.Duration // 0 => 30s
	DefaultTTL time.Duration // the inner store's DefaultTTL, used to cap write TTLs
	Now        func() time.Time // nil => time.Now; should match the inner store's clock
}

const defaultTTL = 30 * time.Second

type store[V any] struct {
	inner riakcache.Store[V]
	front Front
	codec c.Codec[V]
	ttl   time.Duration
	def   time.Duration
	now   func() time.Time
}

var _ riakcache.Store[struct{}] = (*store[struct{}])(nil)

// Wrap returns a Store serving from front before inner. Closing the result
// closes both.
func Wrap[V any](inner riakcache.Store[V], front Front, codec c.Codec[V], opts Options) riakcache.Store[V] {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &store[V]{inner: inner, front: front, codec: codec, ttl: ttl, def: opts.DefaultTTL, now: now}
}

func (s *store[V]) Read(ctx context.Context, key string, opts ...riakcache.Option) (V, bool) {
	r := s.Fetch(ctx, key, opts...)
	return r.Value, r.Hit()
}

func (s *store[V]) Fetch(ctx context.Context, key string, opts ...riakcache.Option) riakcache.Result[V] {
	if b, ok := s.front.Get(key); ok {
		if v, err := s.codec.Decode(b); err == nil {
			return riakcache.Result[V]{Value: v, Status: riakcache.StatusHit}
		}
		s.front.Del(key)
	}
	r := s.inner.Fetch(ctx, key, opts...)
	if !r.Hit() {
		return r
	}
	ttl := s.ttl
	if !r.ExpiresAt.IsZero() {
		ttl = min(ttl, r.ExpiresAt.Sub(s.now()))
	}
	if ttl > 0 {
		s.remember(key, r.Value, ttl)
	}
	return r
}

func (s *store[V]) Write(ctx context.Context, key string, value V, opts ...riakcache.Option) bool {
	return s.Put(ctx, key, value, opts...) == nil
}

func (s *store[V]) Put(ctx context.Context, key string, value V, opts ...riakcache.Option) error {
	if err := s.inner.Put(ctx, key, value, opts...); err != nil {
		// the store may or may not hold the new value; don't serve the old one
		s.front.Del(key)
		return err
	}
	ttl := s.ttl
	if d := riakcache.TTL(s.def, opts...); d > 0 && d < ttl {
		ttl = d
	}
	s.remember(key, value, ttl)
	return nil
}

func (s *store[V]) Delete(ctx context.Context, key string, opts ...riakcache.Option) bool {
	return s.Remove(ctx, key, opts...) == nil
}

func (s *store[V]) Remove(ctx context.Context, key string, opts ...riakcache.Option) error {
	s.front.Del(key)
	return s.inner.Remove(ctx, key, opts...)
}

func (s *store[V]) DeleteMatched(ctx context.Context, m riakcache.Matcher, opts ...riakcache.Option) int {
	s.front.Clear()
	return s.inner.DeleteMatched(ctx, m, opts...)
}

func (s *store[V]) Exist(ctx context.Context, key string, opts ...riakcache.Option) bool {
	return s.Probe(ctx, key, opts...) == riakcache.StatusHit
}

func (s *store[V]) Probe(ctx context.Context, key string, opts ...riakcache.Option) riakcache.Status {
	if _, ok := s.front.Get(key); ok {
		return riakcache.StatusHit
	}
	return s.inner.Probe(ctx, key, opts...)
}

func (s *store[V]) Close(ctx context.Context) error {
	ferr := s.front.Close()
	if err := s.inner.Close(ctx); err != nil {
		return err
	}
	return ferr
}

func (s *store[V]) remember(key string, v V, ttl time.Duration) {
	b, err := s.codec.Encode(v)
	if err != nil {
		return
	}
	s.front.Set(key, b, ttl)
}
