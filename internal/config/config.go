// Package config loads the riakcache CLI configuration from YAML with
// RIAKCACHE_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendRiak   = "riak"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
	BackendMemory = "memory"

	LocalRistretto = "ristretto"
	LocalBigcache  = "bigcache"
)

const envPrefix = "RIAKCACHE_"

type Config struct {
	Backend     string        `yaml:"backend"`
	Bucket      string        `yaml:"bucket"`
	DefaultTTL  time.Duration `yaml:"default_ttl"`
	ReadQuorum  uint32        `yaml:"read_quorum"`
	WriteQuorum uint32        `yaml:"write_quorum"`

	Riak  Riak  `yaml:"riak"`
	Redis Redis `yaml:"redis"`
	Bolt  Bolt  `yaml:"bolt"`
	Local Local `yaml:"local"`
	Log   Log   `yaml:"log"`
}

type Riak struct {
	Addresses  []string      `yaml:"addresses"`
	Port       uint16        `yaml:"port"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	TLS        bool          `yaml:"tls"`
	BucketType string        `yaml:"bucket_type"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Bolt struct {
	Path string `yaml:"path"`
}

// Local configures the optional in-process front.
type Local struct {
	Enabled bool          `yaml:"enabled"`
	Kind    string        `yaml:"kind"`
	TTL     time.Duration `yaml:"ttl"`
	MaxCost int64         `yaml:"max_cost"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend: BackendRiak,
		Bucket:  "_cache",
		Riak: Riak{
			Addresses:  []string{"127.0.0.1"},
			Port:       8087,
			BucketType: "default",
		},
		Redis: Redis{Addr: "127.0.0.1:6379"},
		Bolt:  Bolt{Path: "riakcache.db"},
		Local: Local{Kind: LocalRistretto, TTL: 30 * time.Second, MaxCost: 64 << 20},
		Log:   Log{Level: "info"},
	}
}

// Load reads path over Default, applies the environment and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := Decode(bytes.NewReader(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges a YAML document into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from RIAKCACHE_* variables, e.g.
// RIAKCACHE_BACKEND, RIAKCACHE_RIAK_ADDRESSES (comma separated),
// RIAKCACHE_DEFAULT_TTL (Go duration).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}
	uint32v := func(name string, dst *uint32) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = uint32(n)
		return nil
	}

	str("BACKEND", &c.Backend)
	str("BUCKET", &c.Bucket)
	str("RIAK_USER", &c.Riak.User)
	str("RIAK_PASSWORD", &c.Riak.Password)
	str("RIAK_BUCKET_TYPE", &c.Riak.BucketType)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("BOLT_PATH", &c.Bolt.Path)
	str("LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup(envPrefix + "RIAK_ADDRESSES"); ok {
		c.Riak.Addresses = splitList(v)
	}
	if v, ok := lookup(envPrefix + "RIAK_PORT"); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("%sRIAK_PORT: %w", envPrefix, err)
		}
		c.Riak.Port = uint16(n)
	}
	if v, ok := lookup(envPrefix + "REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", envPrefix, err)
		}
		c.Redis.DB = n
	}
	if v, ok := lookup(envPrefix + "LOCAL_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOCAL_ENABLED: %w", envPrefix, err)
		}
		c.Local.Enabled = b
	}
	return errors.Join(
		dur("DEFAULT_TTL", &c.DefaultTTL),
		dur("RIAK_TIMEOUT", &c.Riak.Timeout),
		dur("LOCAL_TTL", &c.Local.TTL),
		uint32v("READ_QUORUM", &c.ReadQuorum),
		uint32v("WRITE_QUORUM", &c.WriteQuorum),
	)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendRiak:
		if len(c.Riak.Addresses) == 0 {
			errs = append(errs, errors.New("riak.addresses is required"))
		}
		if c.Riak.User != "" && !c.Riak.TLS {
			errs = append(errs, errors.New("riak.user requires riak.tls"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required"))
		}
	case BackendBolt:
		if c.Bolt.Path == "" {
			errs = append(errs, errors.New("bolt.path is required"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.DefaultTTL < 0 {
		errs = append(errs, errors.New("default_ttl must not be negative"))
	}
	if c.Local.Enabled {
		switch c.Local.Kind {
		case LocalRistretto, LocalBigcache:
		default:
			errs = append(errs, fmt.Errorf("unknown local.kind %q", c.Local.Kind))
		}
		if c.Local.TTL <= 0 {
			errs = append(errs, errors.New("local.ttl must be positive"))
		}
		if c.Local.MaxCost <= 0 {
			errs = append(errs, errors.New("local.max_cost must be positive"))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
