package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/riakcache"
	"github.com/unkn0wn-root/riakcache/codec"
	asynchook "github.com/unkn0wn-root/riakcache/hooks/async"
	"github.com/unkn0wn-root/riakcache/internal/config"
	"github.com/unkn0wn-root/riakcache/localcache"
	bcfront "github.com/unkn0wn-root/riakcache/localcache/bigcache"
	rfront "github.com/unkn0wn-root/riakcache/localcache/ristretto"
	zaplog "github.com/unkn0wn-root/riakcache/log/zap"
	pr "github.com/unkn0wn-root/riakcache/provider"
	"github.com/unkn0wn-root/riakcache/provider/bolt"
	"github.com/unkn0wn-root/riakcache/provider/memory"
	"github.com/unkn0wn-root/riakcache/provider/redis"
	"github.com/unkn0wn-root/riakcache/provider/riak"
	"github.com/unkn0wn-root/riakcache/sloghooks"
)

// session bundles a configured store with the resources it drags along.
type session struct {
	store riakcache.Store[string]
	hooks *asynchook.Hooks
	log   *zap.Logger
}

func (s *session) Close(ctx context.Context) error {
	err := s.store.Close(ctx)
	s.hooks.Close()
	_ = s.log.Sync()
	return err
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		lvl,
	)
	return zap.New(core), nil
}

func open(ctx context.Context, cfg config.Config, stderr io.Writer) (*session, error) {
	zl, err := newLogger(cfg.Log.Level, stderr)
	if err != nil {
		return nil, err
	}
	p, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	// hook events go to stderr as slog text; only sampled expiries
	hooks := asynchook.New(sloghooks.New(
		slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		sloghooks.Options{ExpiredEvery: 10, StoreErrorEvery: 1},
	), 1, 256)

	st, err := riakcache.New[string](ctx, riakcache.Options[string]{
		Provider:    p,
		Codec:       codec.String{},
		Logger:      zaplog.New(zl),
		Hooks:       hooks,
		DefaultTTL:  cfg.DefaultTTL,
		ReadQuorum:  cfg.ReadQuorum,
		WriteQuorum: cfg.WriteQuorum,
	})
	if err != nil {
		hooks.Close()
		_ = p.Close(ctx)
		return nil, err
	}

	if cfg.Local.Enabled {
		front, err := newFront(cfg.Local)
		if err != nil {
			_ = st.Close(ctx)
			hooks.Close()
			return nil, err
		}
		st = localcache.Wrap(st, front, codec.String{}, localcache.Options{
			TTL:        cfg.Local.TTL,
			DefaultTTL: cfg.DefaultTTL,
		})
	}
	return &session{store: st, hooks: hooks, log: zl}, nil
}

func newProvider(cfg config.Config) (pr.Provider, error) {
	switch cfg.Backend {
	case config.BackendRiak:
		rc := riak.Config{
			Addresses:  cfg.Riak.Addresses,
			Port:       cfg.Riak.Port,
			User:       cfg.Riak.User,
			Password:   cfg.Riak.Password,
			BucketType: cfg.Riak.BucketType,
			Bucket:     cfg.Bucket,
			Timeout:    cfg.Riak.Timeout,
		}
		if cfg.Riak.TLS {
			rc.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		return riak.New(rc)
	case config.BackendRedis:
		return redis.New(redis.Config{
			Client: goredis.NewClient(&goredis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}),
			Bucket:      cfg.Bucket,
			CloseClient: true,
		})
	case config.BackendBolt:
		return bolt.Open(bolt.Config{Path: cfg.Bolt.Path, Bucket: cfg.Bucket})
	case config.BackendMemory:
		return memory.New(memory.Config{Bucket: cfg.Bucket}), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newFront(l config.Local) (localcache.Front, error) {
	switch l.Kind {
	case config.LocalBigcache:
		return bcfront.New(bcfront.Config{
			LifeWindow:         l.TTL,
			HardMaxCacheSizeMB: int(l.MaxCost >> 20),
		})
	case config.LocalRistretto:
		return rfront.New(rfront.Config{
			NumCounters: max(l.MaxCost/1024*10, 1000),
			MaxCost:     l.MaxCost,
		})
	}
	return nil, fmt.Errorf("unknown local cache %q", l.Kind)
}
