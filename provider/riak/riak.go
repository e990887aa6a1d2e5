// Package riak binds a riakcache bucket to Riak KV through the official
// protocol-buffers client.
package riak

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	rk "github.com/basho/riak-go-client"

	pr "github.com/unkn0wn-root/riakcache/provider"
)

var (
	ErrNoAddresses = errors.New("riak provider: no remote addresses")
	ErrNoBucket    = errors.New("riak provider: bucket is required")
	// ErrNoKey guards against Riak inventing a key for a keyless store.
	ErrNoKey = errors.New("riak provider: key is required")
)

type Config struct {
	// Addresses are "host" or "host:port". Port applies to entries without one.
	Addresses []string
	Port      uint16

	// Credentials; Riak security requires TLS whenever a user is set.
	User     string
	Password string
	TLS      *tls.Config

	BucketType string // "" => "default"
	Bucket     string

	// Timeout is a per-request server-side timeout; 0 => client default.
	Timeout time.Duration

	// Client reuses an existing client instead of dialing Addresses.
	Client      *rk.Client
	CloseClient bool // set true only if this provider exclusively owns Client
}

type Riak struct {
	c           *rk.Client
	bucketType  string
	bucket      string
	timeout     time.Duration
	closeClient bool
}

var _ pr.Provider = (*Riak)(nil)

// New connects to the cluster (or adopts cfg.Client).
func New(cfg Config) (*Riak, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	p := &Riak{
		c:           cfg.Client,
		bucketType:  cfg.BucketType,
		bucket:      cfg.Bucket,
		timeout:     cfg.Timeout,
		closeClient: cfg.CloseClient,
	}
	if p.bucketType == "" {
		p.bucketType = "default"
	}
	if p.c != nil {
		return p, nil
	}

	c, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	p.c = c
	p.closeClient = true
	return p, nil
}

func dial(cfg Config) (*rk.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, ErrNoAddresses
	}
	if cfg.User == "" {
		return rk.NewClient(&rk.NewClientOptions{
			RemoteAddresses: cfg.Addresses,
			Port:            cfg.Port,
		})
	}

	nodes := make([]*rk.Node, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		if cfg.Port != 0 && !hasPort(addr) {
			addr = fmt.Sprintf("%s:%d", addr, cfg.Port)
		}
		n, err := rk.NewNode(&rk.NodeOptions{
			RemoteAddress: addr,
			AuthOptions: &rk.AuthOptions{
				User:      cfg.User,
				Password:  cfg.Password,
				TlsConfig: cfg.TLS,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("riak provider: node %s: %w", addr, err)
		}
		nodes = append(nodes, n)
	}
	cluster, err := rk.NewCluster(&rk.ClusterOptions{Nodes: nodes})
	if err != nil {
		return nil, err
	}
	return rk.NewClient(&rk.NewClientOptions{Cluster: cluster})
}

func hasPort(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		switch addr[i] {
		case ':':
			return true
		case ']':
			return false
		}
	}
	return false
}

func (p *Riak) Bucket() string { return p.bucket }

func (p *Riak) Props(ctx context.Context) (pr.Props, error) {
	cmd, err := rk.NewFetchBucketPropsCommandBuilder().
		WithBucketType(p.bucketType).
		WithBucket(p.bucket).
		Build()
	if err != nil {
		return pr.Props{}, err
	}
	if err := p.execute(ctx, cmd); err != nil {
		return pr.Props{}, err
	}
	resp := cmd.(*rk.FetchBucketPropsCommand).Response
	if resp == nil {
		return pr.Props{}, errors.New("riak provider: empty bucket props response")
	}
	return pr.Props{AllowMult: resp.AllowMult, LastWriteWins: resp.LastWriteWins}, nil
}

// SetProps writes allow_mult, and last_write_wins only when it is being
// turned on; other bucket properties are left untouched.
func (p *Riak) SetProps(ctx context.Context, props pr.Props) error {
	b := rk.NewStoreBucketPropsCommandBuilder().
		WithBucketType(p.bucketType).
		WithBucket(p.bucket).
		WithAllowMult(props.AllowMult)
	if props.LastWriteWins {
		b = b.WithLastWriteWins(true)
	}
	cmd, err := b.Build()
	if err != nil {
		return err
	}
	return p.execute(ctx, cmd)
}

func (p *Riak) Fetch(ctx context.Context, key string, o pr.FetchOptions) (*pr.Object, error) {
	b := rk.NewFetchValueCommandBuilder().
		WithBucketType(p.bucketType).
		WithBucket(p.bucket).
		WithKey(key)
	if o.R > 0 {
		b = b.WithR(o.R)
	}
	if p.timeout > 0 {
		b = b.WithTimeout(p.timeout)
	}
	cmd, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := p.execute(ctx, cmd); err != nil {
		return nil, err
	}

	resp := cmd.(*rk.FetchValueCommand).Response
	if resp == nil || resp.IsNotFound {
		return nil, pr.ErrNotFound
	}
	ro := newest(resp.Values)
	if ro == nil {
		return nil, pr.ErrNotFound
	}
	return fromRiak(key, ro), nil
}

// newest picks the live value with the latest modification time. With
// allow_mult off there is at most one; siblings from before the bucket was
// fixed resolve to the last write.
func newest(vs []*rk.Object) *rk.Object {
	var best *rk.Object
	for _, v := range vs {
		if v == nil || v.IsTombstone {
			continue
		}
		if best == nil || v.LastModified.After(best.LastModified) {
			best = v
		}
	}
	return best
}

func (p *Riak) Store(ctx context.Context, obj *pr.Object, o pr.StoreOptions) error {
	if obj == nil || obj.Key == "" {
		return ErrNoKey
	}
	// StoreValue has no read quorum; o.R only applies to stores that read first.
	b := rk.NewStoreValueCommandBuilder().
		WithBucketType(p.bucketType).
		WithBucket(p.bucket).
		WithKey(obj.Key).
		WithContent(toRiak(p.bucketType, p.bucket, obj)).
		WithReturnBody(o.ReturnBody)
	if o.W > 0 {
		b = b.WithW(o.W)
	}
	if p.timeout > 0 {
		b = b.WithTimeout(p.timeout)
	}
	cmd, err := b.Build()
	if err != nil {
		return err
	}
	return p.execute(ctx, cmd)
}

func (p *Riak) Delete(ctx context.Context, key string) error {
	b := rk.NewDeleteValueCommandBuilder().
		WithBucketType(p.bucketType).
		WithBucket(p.bucket).
		WithKey(key)
	if p.timeout > 0 {
		b = b.WithTimeout(p.timeout)
	}
	cmd, err := b.Build()
	if err != nil {
		return err
	}
	return p.execute(ctx, cmd)
}

// Keys streams the bucket's key list. Riak walks every key on every vnode to
// answer this; never call it on a hot path.
func (p *Riak) Keys(ctx context.Context, fn pr.KeysFunc) error {
	b := rk.NewListKeysCommandBuilder().
		WithBucketType(p.bucketType).
		WithBucket(p.bucket).
		WithAllowListing().
		WithStreaming(true).
		WithCallback(func(keys []string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(keys) == 0 {
				return nil
			}
			return fn(keys)
		})
	if p.timeout > 0 {
		b = b.WithTimeout(p.timeout)
	}
	cmd, err := b.Build()
	if err != nil {
		return err
	}
	return p.execute(ctx, cmd)
}

// Close stops the client when this provider owns it.
// Safe to call multiple times.
func (p *Riak) Close(context.Context) error {
	if !p.closeClient || p.c == nil {
		return nil
	}
	c := p.c
	p.c = nil
	return c.Stop()
}

// execute runs cmd unless ctx is already done. The client has no context
// support; in-flight requests are bounded by Config.Timeout instead.
func (p *Riak) execute(ctx context.Context, cmd rk.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.c == nil {
		return errors.New("riak provider: closed")
	}
	if err := p.c.Execute(cmd); err != nil {
		return fmt.Errorf("riak %s %s/%s: %w", cmd.Name(), p.bucketType, p.bucket, err)
	}
	return nil
}

func toRiak(bucketType, bucket string, o *pr.Object) *rk.Object {
	ro := &rk.Object{
		BucketType:  bucketType,
		Bucket:      bucket,
		Key:         o.Key,
		Value:       o.Value,
		ContentType: o.ContentType,
	}
	if len(o.Meta) > 0 {
		ro.UserMeta = make([]*rk.Pair, 0, len(o.Meta))
		for k, v := range o.Meta {
			ro.UserMeta = append(ro.UserMeta, &rk.Pair{Key: k, Value: v})
		}
	}
	return ro
}

func fromRiak(key string, ro *rk.Object) *pr.Object {
	o := &pr.Object{
		Key:          key,
		Value:        ro.Value,
		ContentType:  ro.ContentType,
		LastModified: ro.LastModified,
	}
	if len(ro.UserMeta) > 0 {
		o.Meta = make(map[string]string, len(ro.UserMeta))
		for _, m := range ro.UserMeta {
			if m != nil {
				o.Meta[m.Key] = m.Value
			}
		}
	}
	return o
}
