// Package ristretto is a localcache.Front backed by dgraph-io/ristretto.
package ristretto

import (
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/riakcache/localcache"
)

type Front struct {
	c *rc.Cache
}

var _ localcache.Front = (*Front)(nil)

type Config struct {
	NumCounters int64 // ~10x the expected number of entries
	MaxCost     int64 // total bytes held; each entry costs len(value)
	BufferItems int64 // 0 => 64
	Metrics     bool
}

func New(cfg Config) (*Front, error) {
	if cfg.BufferItems == 0 {
		cfg.BufferItems = 64
	}
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems < 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Front{c: c}, nil
}

func (f *Front) Get(key string) ([]byte, bool) {
	v, ok := f.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		// drop unexpected entry shape
		f.c.Del(key)
		return nil, false
	}
	return b, true
}

// Set is asynchronous in ristretto: a value may not be readable until the
// set buffers drain. Wait forces that.
func (f *Front) Set(key string, value []byte, ttl time.Duration) bool {
	return f.c.SetWithTTL(key, value, int64(len(value))+1, ttl)
}

func (f *Front) Del(key string) { f.c.Del(key) }
func (f *Front) Clear()         { f.c.Clear() }
func (f *Front) Wait()          { f.c.Wait() }

func (f *Front) Close() error {
	f.c.Wait()
	f.c.Close()
	return nil
}

// Metrics exposes ristretto's counters; nil unless Config.Metrics is set.
func (f *Front) Metrics() *rc.Metrics { return f.c.Metrics }
