// Package buffer implements the pooled, reference-counted tuple buffer
// allocator (C1): a global pool of fixed-size segments, per-worker local
// pools that reserve a slice of the global pool, and a size-sorted
// unpooled free list for oversized variable-sized payloads.
package buffer

import "errors"

// ErrShutdown is returned by any acquire operation once the pool has been
// destroyed. It is a sentinel, checked with errors.Is, in the teacher's
// style of re-exporting a well-known error value.
var ErrShutdown = errors.New("buffer: pool is shutting down")

// ErrPoolExhausted is returned by TryAcquire and AcquireWithin when no
// buffer became available. It is a control-flow signal, not a failure:
// callers decide whether to apply backpressure or reject input.
var ErrPoolExhausted = errors.New("buffer: pool exhausted")

// ErrInvariantViolation marks corruption that must abort the process:
// a refcount CAS that did not see the expected value, or a recycle
// callback invoked on a segment that is still referenced.
var ErrInvariantViolation = errors.New("buffer: invariant violation")

// ErrUnpooledAllocFailed reports that an oversized allocation could not
// be satisfied. Distinct from ErrPoolExhausted because the caller of an
// unpooled request usually has no fallback but to reject or spill.
var ErrUnpooledAllocFailed = errors.New("buffer: unpooled allocation failed")
