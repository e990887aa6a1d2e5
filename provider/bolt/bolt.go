// Package bolt keeps a riakcache bucket in an embedded bbolt file.
//
// Each riakcache bucket is a bolt bucket of the same name; values are framed
// with internal/wire. Bucket properties live in the "_props" bolt bucket.
package bolt

import (
	"context"
	"errors"
	"time"

	"go.etcd.io/bbolt"

	"github.com/unkn0wn-root/riakcache/internal/wire"
	pr "github.com/unkn0wn-root/riakcache/provider"
)

var (
	ErrNoPath   = errors.New("bolt provider: path is required")
	ErrNoBucket = errors.New("bolt provider: bucket is required")
)

var propsBucket = []byte("_props")

const (
	fieldAllowMult     = "allow_mult"
	fieldLastWriteWins = "last_write_wins"
)

type Config struct {
	Path    string
	Bucket  string
	Timeout time.Duration // file lock wait; 0 => 1s

	// DB reuses an already open database; Path and Timeout are then ignored.
	DB        *bbolt.DB
	CloseDB   bool // set true only if this provider exclusively owns DB
	BatchSize int  // keys per Keys callback; 0 => 1000
	Now       func() time.Time
}

type Bolt struct {
	db        *bbolt.DB
	bucket    []byte
	batchSize int
	now       func() time.Time
	closeDB   bool
}

var _ pr.Provider = (*Bolt)(nil)

// Open opens (or creates) the database and the bucket.
func Open(cfg Config) (*Bolt, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if string(propsBucket) == cfg.Bucket {
		return nil, errors.New("bolt provider: bucket name is reserved")
	}
	p := &Bolt{
		db:        cfg.DB,
		bucket:    []byte(cfg.Bucket),
		batchSize: cfg.BatchSize,
		now:       cfg.Now,
		closeDB:   cfg.CloseDB,
	}
	if p.batchSize <= 0 {
		p.batchSize = 1000
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.db == nil {
		if cfg.Path == "" {
			return nil, ErrNoPath
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = time.Second
		}
		db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: timeout})
		if err != nil {
			return nil, err
		}
		p.db = db
		p.closeDB = true
	}
	if err := p.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(p.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(propsBucket)
		return err
	}); err != nil {
		if p.closeDB {
			_ = p.db.Close()
		}
		return nil, err
	}
	return p, nil
}

func (p *Bolt) Bucket() string { return string(p.bucket) }

func (p *Bolt) propKey(field string) []byte {
	return []byte(string(p.bucket) + "/" + field)
}

func (p *Bolt) Props(ctx context.Context) (pr.Props, error) {
	if err := ctx.Err(); err != nil {
		return pr.Props{}, err
	}
	var props pr.Props
	err := p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(propsBucket)
		props.AllowMult = string(b.Get(p.propKey(fieldAllowMult))) == "1"
		props.LastWriteWins = string(b.Get(p.propKey(fieldLastWriteWins))) == "1"
		return nil
	})
	return props, err
}

func (p *Bolt) SetProps(ctx context.Context, props pr.Props) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(propsBucket)
		if err := b.Put(p.propKey(fieldAllowMult), flag(props.AllowMult)); err != nil {
			return err
		}
		return b.Put(p.propKey(fieldLastWriteWins), flag(props.LastWriteWins))
	})
}

func (p *Bolt) Fetch(ctx context.Context, key string, _ pr.FetchOptions) (*pr.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	if err := p.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(p.bucket).Get([]byte(key)); v != nil {
			// v is only valid inside the transaction
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, pr.ErrNotFound
	}
	e, err := wire.Decode(raw)
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

func (p *Bolt) Store(ctx context.Context, obj *pr.Object, _ pr.StoreOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := wire.Encode(wire.Entry{
		ContentType:  obj.ContentType,
		Meta:         obj.Meta,
		LastModified: p.now(),
		Payload:      obj.Value,
	})
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(p.bucket).Put([]byte(obj.Key), buf)
	})
}

func (p *Bolt) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(p.bucket).Delete([]byte(key))
	})
}

// Keys snapshots the key set in a read transaction and reports it in batches
// afterwards, so fn may write to the same bucket.
func (p *Bolt) Keys(ctx context.Context, fn pr.KeysFunc) error {
	var keys []string
	if err := p.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(p.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	}); err != nil {
		return err
	}
	for i := 0; i < len(keys); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(keys[i:min(i+p.batchSize, len(keys))]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database when this provider opened or owns it.
func (p *Bolt) Close(context.Context) error {
	if !p.closeDB {
		return nil
	}
	return p.db.Close()
}

func flag(b bool) []byte {
	if b {
		return []byte("1")
	}
	return []byte("0")
}
