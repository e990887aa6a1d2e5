// Package riakcache implements a fail-soft key/value cache on top of a Riak
// bucket (or any provider.Provider with the same contract).
//
// Steady-state operations never return store failures to the caller: reads
// degrade to a miss, writes and deletes to false. The failure is logged and
// reported to Hooks. Callers that need to tell "miss" from "store down" use
// the explicit forms (Fetch, Put, Remove, Probe).
//
// Components:
//   - Provider: bucket handle (Riak, Redis, bbolt, in-memory).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - localcache: optional in-process front-end wrapping any Store.
//
// Keys are percent-escaped into a single flat segment before they reach the
// store; DeleteMatched unescapes them again before matching.
//
// Expiry is lazy. An entry with an "expires-at" metadata field expires at
// that instant; otherwise a positive TTL is measured from the store's
// last-modified time. Expired entries are deleted when a read observes them.
//
// The bucket must not allow siblings. New turns allow_mult off if it is on
// and fails if it cannot.
package riakcache
