// Package memory is an in-process provider.Provider. It keeps objects in a
// map, maintains LastModified from an injectable clock, and has no siblings,
// so it is mostly useful for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/riakcache/provider"
)

type Config struct {
	Bucket string
	Props  pr.Props         // initial bucket properties
	Now    func() time.Time // nil => time.Now
	// BatchSize bounds how many keys one Keys callback receives; 0 => 1000.
	BatchSize int
}

type Memory struct {
	bucket string
	now    func() time.Time
	batch  int

	mu    sync.RWMutex
	objs  map[string]*pr.Object
	props pr.Props
}

var _ pr.Provider = (*Memory)(nil)

func New(cfg Config) *Memory {
	m := &Memory{
		bucket: cfg.Bucket,
		now:    cfg.Now,
		batch:  cfg.BatchSize,
		objs:   make(map[string]*pr.Object),
		props:  cfg.Props,
	}
	if m.bucket == "" {
		m.bucket = "_cache"
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.batch <= 0 {
		m.batch = 1000
	}
	return m
}

func (m *Memory) Bucket() string { return m.bucket }

func (m *Memory) Props(_ context.Context) (pr.Props, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.props, nil
}

func (m *Memory) SetProps(_ context.Context, p pr.Props) error {
	m.mu.Lock()
	m.props = p
	m.mu.Unlock()
	return nil
}

func (m *Memory) Fetch(_ context.Context, key string, _ pr.FetchOptions) (*pr.Object, error) {
	m.mu.RLock()
	o, ok := m.objs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, pr.ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) Store(_ context.Context, obj *pr.Object, _ pr.StoreOptions) error {
	cp := obj.Clone()
	cp.LastModified = m.now()
	m.mu.Lock()
	m.objs[cp.Key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objs, key)
	m.mu.Unlock()
	return nil
}

// Keys snapshots the key set, then streams it in sorted batches outside the
// lock so fn may call back into the provider.
func (m *Memory) Keys(ctx context.Context, fn pr.KeysFunc) error {
	m.mu.RLock()
	all := make([]string, 0, len(m.objs))
	for k := range m.objs {
		all = append(all, k)
	}
	m.mu.RUnlock()
	sort.Strings(all)

	for len(all) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(m.batch, len(all))
		if err := fn(all[:n]); err != nil {
			return err
		}
		all = all[n:]
	}
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objs)
}

func (m *Memory) Close(_ context.Context) error { return nil }
