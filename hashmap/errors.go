// Package hashmap implements the chained hash map used by pipeline
// aggregation and join stages (C2): a page-backed, lazily-growing entry
// arena keyed by a power-of-two number of hash chains, plus a separate
// append-only arena for variable-sized keys and values.
package hashmap

import "errors"

// ErrInvalidKeySize is returned when a key or value size of zero is
// passed to New: every entry needs at least the fixed hash/next header.
var ErrInvalidKeySize = errors.New("hashmap: key and value size must be greater than 0")

// ErrInvalidBucketCount is returned when the requested bucket count
// cannot be satisfied.
var ErrInvalidBucketCount = errors.New("hashmap: number of buckets must be greater than 0")

// ErrVarSizedAllocFailed reports that the backing buffer pool could not
// satisfy a request for variable-sized key/value storage.
var ErrVarSizedAllocFailed = errors.New("hashmap: variable-sized allocation failed")
