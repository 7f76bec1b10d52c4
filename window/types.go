package window

// WindowType selects the slicing/trigger rule a SliceStore applies.
// Session windows are a documented open question (spec §9: "slice-store
// eviction policy for session windows is not determined by the
// sample"); the type exists so callers can name the intent, but
// triggerWindows only implements Tumbling and Sliding; a Session
// definition is sliced and triggered like Tumbling.
type WindowType int

const (
	Tumbling WindowType = iota
	Sliding
	Session
)

// TimeCharacteristic selects whether a window's watermark advances on
// event time (minimum per-origin max timestamp) or processing time
// (wall clock), per EXPANSION C.6.
type TimeCharacteristic int

const (
	EventTime TimeCharacteristic = iota
	ProcessingTime
)

// DistributionMode selects how a window's aggregate is produced across
// workers (spec §4.3 "Distribution modes").
type DistributionMode int

const (
	// Complete: all input arrives at one worker; aggregateWindows
	// produces final values directly.
	Complete DistributionMode = iota
	// Slicing: upstream workers emit sealed slices verbatim for a
	// downstream combiner.
	Slicing
	// Combining: a downstream worker assembles slices per window and
	// lowers to final values.
	Combining
)

// Definition describes one window operator instance: its type, size,
// slide (ignored for Tumbling, where slide == size), time
// characteristic, and distribution mode. NumberOfInputEdges is the
// number of upstream mappings a Combining-mode GlobalSliceStore must
// hear from before it may advance past lastWatermark (EXPANSION C.7).
type Definition struct {
	Type               WindowType
	Size               uint64
	Slide              uint64
	TimeCharacteristic TimeCharacteristic
	Mode               DistributionMode
	NumberOfInputEdges int
}

// Result is one fired window's output row.
type Result struct {
	StartTs uint64
	EndTs   uint64
	Key     uint64
	Value   float64
}
