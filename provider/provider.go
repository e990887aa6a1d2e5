// Package provider defines the key/value store contract used by riakcache.
//
// A Provider is a handle to one named bucket. Implementations own the
// connection to the store and MUST be safe for concurrent use. They must be
// payload-transparent: Fetch returns exactly the Value bytes previously passed
// to Store for the same key. Content type and metadata are carried next to
// the payload, never inside it.
//
// Quorum values are hints. Stores without replica quorums (Redis, bbolt,
// memory) accept and ignore them.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Fetch when the key is absent.
var ErrNotFound = errors.New("provider: not found")

// Object is one stored entry.
type Object struct {
	Key          string
	Value        []byte
	ContentType  string
	Meta         map[string]string
	LastModified time.Time // maintained by the store; ignored on Store
}

// Props is the subset of bucket properties riakcache cares about.
type Props struct {
	// AllowMult permits sibling values for concurrent writes to one key.
	AllowMult bool
	// LastWriteWins makes the store drop vector clocks and keep the newest write.
	LastWriteWins bool
}

type FetchOptions struct {
	R uint32 // read quorum; 0 => store default
}

type StoreOptions struct {
	W          uint32 // write quorum; 0 => store default
	R          uint32 // read quorum used for the pre-write fetch, where applicable
	ReturnBody bool
}

// KeysFunc receives one batch of raw (escaped) keys. Returning an error stops
// the enumeration and that error is returned from Keys.
type KeysFunc func(keys []string) error

type Provider interface {
	// Bucket returns the name of the bucket this handle is bound to.
	Bucket() string

	Props(ctx context.Context) (Props, error)
	SetProps(ctx context.Context, p Props) error

	// Fetch returns (obj, nil) on hit; (nil, ErrNotFound) on miss.
	Fetch(ctx context.Context, key string, o FetchOptions) (*Object, error)

	// Store creates or replaces obj.Key.
	Store(ctx context.Context, obj *Object, o StoreOptions) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys streams every key in the bucket. This is a full scan.
	Keys(ctx context.Context, fn KeysFunc) error

	Close(ctx context.Context) error
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Value != nil {
		cp.Value = append([]byte(nil), o.Value...)
	}
	if o.Meta != nil {
		cp.Meta = make(map[string]string, len(o.Meta))
		for k, v := range o.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}
