// Package redis stores a riakcache bucket in Redis.
//
// Redis has no per-object metadata, so each value is framed with
// internal/wire (content type, metadata, last-modified). Keys live under
// "<bucket>:" and bucket properties in the hash "_props:<bucket>". Redis never
// creates siblings; allow_mult is kept only so the bucket check behaves the
// same across providers.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/riakcache/internal/wire"
	pr "github.com/unkn0wn-root/riakcache/provider"
)

var (
	ErrNilClient = errors.New("redis provider: nil client")
	ErrNoBucket  = errors.New("redis provider: bucket is required")
)

const (
	fieldAllowMult     = "allow_mult"
	fieldLastWriteWins = "last_write_wins"
)

type Redis struct {
	rdb         goredis.UniversalClient
	bucket      string
	prefix      string
	scanCount   int64
	now         func() time.Time
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Bucket      string
	CloseClient bool  // set true only if this provider exclusively owns the client
	ScanCount   int64 // SCAN COUNT hint; 0 => 500
	Now         func() time.Time
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	p := &Redis{
		rdb:         cfg.Client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Bucket + ":",
		scanCount:   cfg.ScanCount,
		now:         cfg.Now,
		closeClient: cfg.CloseClient,
	}
	if p.scanCount <= 0 {
		p.scanCount = 500
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

func (p *Redis) Bucket() string { return p.bucket }

func (p *Redis) propsKey() string { return "_props:" + p.bucket }

func (p *Redis) Props(ctx context.Context) (pr.Props, error) {
	vals, err := p.rdb.HMGet(ctx, p.propsKey(), fieldAllowMult, fieldLastWriteWins).Result()
	if err != nil {
		return pr.Props{}, err
	}
	return pr.Props{AllowMult: truthy(vals[0]), LastWriteWins: truthy(vals[1])}, nil
}

func (p *Redis) SetProps(ctx context.Context, props pr.Props) error {
	return p.rdb.HSet(ctx, p.propsKey(),
		fieldAllowMult, flag(props.AllowMult),
		fieldLastWriteWins, flag(props.LastWriteWins),
	).Err()
}

func (p *Redis) Fetch(ctx context.Context, key string, _ pr.FetchOptions) (*pr.Object, error) {
	b, err := p.rdb.Get(ctx, p.prefix+key).Bytes()
	if err == goredis.Nil {
		return nil, pr.ErrNotFound // miss
	}
	if err != nil {
		return nil, err // transport/server error
	}
	e, err := wire.Decode(b)
	if err != nil {
		return nil, err
	}
	return &pr.Object{
		Key:          key,
		Value:        e.Payload,
		ContentType:  e.ContentType,
		Meta:         e.Meta,
		LastModified: e.LastModified,
	}, nil
}

// Store writes without a Redis TTL: expiry is decided by the cache on read,
// and an expired entry must still exist until then.
func (p *Redis) Store(ctx context.Context, obj *pr.Object, _ pr.StoreOptions) error {
	b, err := wire.Encode(wire.Entry{
		ContentType:  obj.ContentType,
		Meta:         obj.Meta,
		LastModified: p.now(),
		Payload:      obj.Value,
	})
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.prefix+obj.Key, b, 0).Err()
}

func (p *Redis) Delete(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.prefix+key).Err()
}

// Keys walks the bucket with SCAN. Keys created or removed during the walk
// may or may not be reported; a key present throughout is reported at least
// once (SCAN may repeat keys, so batches are de-duplicated per walk).
func (p *Redis) Keys(ctx context.Context, fn pr.KeysFunc) error {
	seen := make(map[string]struct{})
	match := globEscape(p.prefix) + "*"
	var cursor uint64
	for {
		ks, next, err := p.rdb.Scan(ctx, cursor, match, p.scanCount).Result()
		if err != nil {
			return err
		}
		batch := make([]string, 0, len(ks))
		for _, k := range ks {
			k = strings.TrimPrefix(k, p.prefix)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			batch = append(batch, k)
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// globEscape quotes Redis MATCH metacharacters.
func globEscape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func truthy(v any) bool {
	s, ok := v.(string)
	return ok && (s == "1" || s == "true")
}
