// Package window implements the keyed, slice-based windowing subsystem
// (C3): a per-key SliceStore of disjoint time slices, a WatermarkProcessor
// tracking per-origin progress, tumbling/sliding window trigger logic,
// and a GlobalSliceStore for the distributed combining stage. Grounded
// on WindowHandlerImpl.hpp and KeyedGlobalSliceStore.cpp.
package window

import "errors"

// ErrLateRecord marks a record whose timestamp is behind the store's
// current watermark. The record is not lifted; WindowAggregateStage
// skips it without failing and without counting it.
var ErrLateRecord = errors.New("window: record timestamp is behind the current watermark")

// ErrSliceStoreCorrupt is fatal: slices observed out of order.
var ErrSliceStoreCorrupt = errors.New("window: slice store invariant violated, slices out of order")

// ErrUnknownOrigin is not returned or used by anything in this package:
// origins are registered lazily on first sight.
var ErrUnknownOrigin = errors.New("window: origin not yet registered")
