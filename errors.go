package riakcache

import (
	"errors"
	"fmt"

	pr "github.com/unkn0wn-root/riakcache/provider"
)

// ErrNotFound is the provider's not-found sentinel, re-exported for errors.Is.
var ErrNotFound = pr.ErrNotFound

// ErrEmptyKey is returned for the empty key. Riak would assign a random key
// to such a write, leaving an entry nobody can read or expire.
var ErrEmptyKey = errors.New("riakcache: empty key")

// StoreError is a contained per-request store failure. Fail-soft operations
// log it; explicit forms (Fetch, Put, Remove) return it.
type StoreError struct {
	Op  string
	Key string // logical (unescaped) key; empty for bucket-wide operations
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("riakcache: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("riakcache: %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConfigurationError is returned by New when the bucket's divergence setting
// cannot be read or corrected.
type ConfigurationError struct {
	Bucket   string
	FetchErr error
	StoreErr error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.FetchErr != nil:
		return fmt.Sprintf("riakcache: bucket %q: fetch props failed: %v", e.Bucket, e.FetchErr)
	case e.StoreErr != nil:
		return fmt.Sprintf("riakcache: bucket %q: disable allow_mult failed: %v", e.Bucket, e.StoreErr)
	default:
		return fmt.Sprintf("riakcache: bucket %q: unknown configuration error", e.Bucket)
	}
}

func (e *ConfigurationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.FetchErr != nil {
		errs = append(errs, e.FetchErr)
	}
	if e.StoreErr != nil {
		errs = append(errs, e.StoreErr)
	}
	return errs
}

// IsUnavailable reports whether err is a contained store failure rather than
// a miss.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && !errors.Is(se.Err, pr.ErrNotFound) && !errors.Is(se.Err, ErrEmptyKey)
}
