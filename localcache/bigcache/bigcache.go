// Package bigcache is a localcache.Front backed by allegro/bigcache.
//
// BigCache only has a global life window, so each value is prefixed with
// its own deadline (unix nanos, big endian) and checked on Get.
package bigcache

import (
	"encoding/binary"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/riakcache/localcache"
)

type Front struct {
	c   *bc.BigCache
	now func() time.Time
}

var _ localcache.Front = (*Front)(nil)

type Config struct {
	LifeWindow         time.Duration // upper bound for any entry; 0 => 10m
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
	Now                func() time.Time
}

func New(cfg Config) (*Front, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 10 * time.Minute
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Front{c: c, now: now}, nil
}

func (f *Front) Get(key string) ([]byte, bool) {
	b, err := f.c.Get(key)
	if err != nil || len(b) < 8 {
		return nil, false
	}
	deadline := int64(binary.BigEndian.Uint64(b[:8]))
	if deadline != 0 && f.now().UnixNano() >= deadline {
		_ = f.c.Delete(key)
		return nil, false
	}
	return b[8:], true
}

func (f *Front) Set(key string, value []byte, ttl time.Duration) bool {
	buf := make([]byte, 8+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf[:8], uint64(f.now().Add(ttl).UnixNano()))
	}
	copy(buf[8:], value)
	return f.c.Set(key, buf) == nil
}

func (f *Front) Del(key string) { _ = f.c.Delete(key) } // missing keys are fine

func (f *Front) Clear() { _ = f.c.Reset() }

func (f *Front) Close() error { return f.c.Close() }
