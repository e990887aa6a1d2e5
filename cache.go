package riakcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	c "github.com/unkn0wn-root/riakcache/codec"
	"github.com/unkn0wn-root/riakcache/internal/keys"
	pr "github.com/unkn0wn-root/riakcache/provider"
)

type store[V any] struct {
	provider pr.Provider
	codec    c.Codec[V]
	log      Logger
	hooks    Hooks
	bucket   string

	defaultTTL time.Duration
	r, w       uint32
	now        func() time.Time

	// lazy deletes of expired entries still in flight
	pending   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newStore[V any](ctx context.Context, opts Options[V]) (*store[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("riakcache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("riakcache: codec is required")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("riakcache: negative default TTL %v", opts.DefaultTTL)
	}

	s := &store[V]{
		provider:   opts.Provider,
		codec:      opts.Codec,
		bucket:     opts.Provider.Bucket(),
		defaultTTL: opts.DefaultTTL,
	}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.r = coalesce(opts.ReadQuorum, defaultQuorum)
	s.w = coalesce(opts.WriteQuorum, defaultQuorum)
	s.now = orNow(opts.Now)

	if !opts.SkipDivergenceCheck {
		if err := s.ensureNoDivergence(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ensureNoDivergence switches allow_mult off. A cache assumes one value per
// key; siblings would surface as stale or duplicate reads.
func (s *store[V]) ensureNoDivergence(ctx context.Context) error {
	props, err := s.provider.Props(ctx)
	if err != nil {
		return &ConfigurationError{Bucket: s.bucket, FetchErr: err}
	}
	if !props.AllowMult {
		return nil
	}
	props.AllowMult = false
	if err := s.provider.SetProps(ctx, props); err != nil {
		return &ConfigurationError{Bucket: s.bucket, StoreErr: err}
	}
	s.log.Warn("bucket allowed siblings; allow_mult disabled", Fields{"bucket": s.bucket})
	s.hooks.DivergenceDisabled(s.bucket)
	return nil
}

func (s *store[V]) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.pending.Wait()
		s.closeErr = s.provider.Close(ctx)
	})
	return s.closeErr
}

func (s *store[V]) Read(ctx context.Context, key string, opts ...Option) (V, bool) {
	r := s.Fetch(ctx, key, opts...)
	return r.Value, r.Hit()
}

func (s *store[V]) Fetch(ctx context.Context, key string, opts ...Option) Result[V] {
	if key == "" {
		return Result[V]{Status: StatusMiss, Err: s.badKey("read")}
	}
	k := keys.Escape(key)
	obj, err := s.provider.Fetch(ctx, k, pr.FetchOptions{R: s.r})
	if errors.Is(err, pr.ErrNotFound) {
		return Result[V]{Status: StatusMiss}
	}
	if err != nil {
		return Result[V]{Status: StatusUnavailable, Err: s.storeErr("read", key, k, err)}
	}
	at := deadline(obj, TTL(s.defaultTTL, opts...))
	if expired(at, s.now()) {
		s.expire(ctx, key, k)
		return Result[V]{Status: StatusMiss}
	}
	v, err := s.codec.Decode(obj.Value)
	if err != nil {
		// left in place: another writer may use a different codec
		s.log.Warn("value decode failed", Fields{"key": key, "bucket": s.bucket, "err": err})
		return Result[V]{Status: StatusMiss, Err: fmt.Errorf("riakcache: decode %q: %w", key, err)}
	}
	return Result[V]{Value: v, Status: StatusHit, ExpiresAt: at}
}

// expire deletes an expired entry in the background. The delete outlives
// the caller's context cancellation; Close waits for it.
func (s *store[V]) expire(ctx context.Context, key, storageKey string) {
	s.hooks.ExpiredOnRead(storageKey)
	s.log.Debug("expired entry; deleting", Fields{"key": key, "bucket": s.bucket})

	bg := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.provider.Delete(bg, storageKey); err != nil {
			_ = s.storeErr("delete", key, storageKey, err)
		}
	}()
}

func (s *store[V]) Write(ctx context.Context, key string, value V, opts ...Option) bool {
	return s.Put(ctx, key, value, opts...) == nil
}

func (s *store[V]) Put(ctx context.Context, key string, value V, opts ...Option) error {
	if key == "" {
		return s.badKey("write")
	}
	payload, err := s.codec.Encode(value)
	if err != nil {
		s.log.Error("value encode failed", Fields{"key": key, "bucket": s.bucket, "err": err})
		return fmt.Errorf("riakcache: encode %q: %w", key, err)
	}

	k := keys.Escape(key)
	obj := &pr.Object{
		Key:         k,
		Value:       payload,
		ContentType: contentType,
		Meta:        make(map[string]string, 2),
	}
	if n, ok := s.codec.(c.Named); ok && n.Name() != "" {
		obj.Meta[metaSerialization] = n.Name()
	}
	if ttl := TTL(s.defaultTTL, opts...); ttl > 0 {
		obj.Meta[metaExpiresAt] = formatExpiry(s.now().Add(ttl))
	}

	if err := s.provider.Store(ctx, obj, pr.StoreOptions{W: s.w, R: s.r}); err != nil {
		return s.storeErr("write", key, k, err)
	}
	return nil
}

func (s *store[V]) Delete(ctx context.Context, key string, opts ...Option) bool {
	return s.Remove(ctx, key, opts...) == nil
}

func (s *store[V]) Remove(ctx context.Context, key string, _ ...Option) error {
	if key == "" {
		return s.badKey("delete")
	}
	k := keys.Escape(key)
	if err := s.provider.Delete(ctx, k); err != nil {
		return s.storeErr("delete", key, k, err)
	}
	return nil
}

func (s *store[V]) Exist(ctx context.Context, key string, opts ...Option) bool {
	return s.Probe(ctx, key, opts...) == StatusHit
}

// Probe does not consult the expiry policy: an expired entry that has not
// been read yet still exists.
func (s *store[V]) Probe(ctx context.Context, key string, _ ...Option) Status {
	if key == "" {
		_ = s.badKey("exist")
		return StatusMiss
	}
	k := keys.Escape(key)
	_, err := s.provider.Fetch(ctx, k, pr.FetchOptions{R: s.r})
	switch {
	case err == nil:
		return StatusHit
	case errors.Is(err, pr.ErrNotFound):
		return StatusMiss
	default:
		_ = s.storeErr("exist", key, k, err)
		return StatusUnavailable
	}
}

// DeleteMatched scans every key in the bucket, so it costs O(entries) and is
// not atomic: keys written during the scan may or may not be seen.
// Matching keys are collected first and deleted one by one afterwards.
func (s *store[V]) DeleteMatched(ctx context.Context, m Matcher, _ ...Option) int {
	if isNil(m) {
		s.log.Warn("nil matcher; nothing deleted", Fields{"bucket": s.bucket})
		return 0
	}

	var matched []string
	scanned := 0
	err := s.provider.Keys(ctx, func(batch []string) error {
		for _, k := range batch {
			scanned++
			if m.MatchString(keys.Unescape(k)) {
				matched = append(matched, k)
			}
		}
		return nil
	})
	if err != nil {
		// keep going with what was gathered
		_ = s.storeErr("delete_matched", "", "", err)
	}

	deleted := 0
	for _, k := range matched {
		if ctx.Err() != nil {
			_ = s.storeErr("delete_matched", "", "", ctx.Err())
			break
		}
		if err := s.provider.Delete(ctx, k); err != nil {
			_ = s.storeErr("delete_matched", keys.Unescape(k), k, err)
			continue
		}
		deleted++
	}

	s.log.Debug("delete matched finished", Fields{
		"bucket": s.bucket, "scanned": scanned, "matched": len(matched), "deleted": deleted,
	})
	s.hooks.MatchedDeleted(s.bucket, scanned, deleted)
	return deleted
}

// storeErr logs and reports a contained store failure.
func (s *store[V]) storeErr(op, key, storageKey string, err error) *StoreError {
	s.log.Error("store request failed", Fields{"op": op, "key": key, "bucket": s.bucket, "err": err})
	s.hooks.StoreError(op, storageKey, err)
	return &StoreError{Op: op, Key: key, Err: err}
}

// badKey logs a rejected request. It never reached the store, so hooks are
// not told.
func (s *store[V]) badKey(op string) *StoreError {
	s.log.Warn("empty key rejected", Fields{"op": op, "bucket": s.bucket})
	return &StoreError{Op: op, Err: ErrEmptyKey}
}
