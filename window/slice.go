package window

import (
	"sort"
	"sync"

	"github.com/nebulastream/streamcore/aggregation"
)

// Slice is a maximal disjoint time interval fully contained in every
// window that overlaps it — the unit of partial aggregation (spec
// GLOSSARY "Slice"). State is sized and initialized by the store's
// aggregation.Function.
type Slice struct {
	StartTs uint64
	EndTs   uint64
	State   []byte
	Fired   bool // already combined into an emitted window
}

// SliceStore holds one key's slices, ordered ascending by StartTs, plus
// the per-origin watermark inputs and trigger state needed to fire
// windows over them (spec §4.3 "SliceStore<Partial>").
type SliceStore struct {
	mu            sync.Mutex
	key           uint64
	fn            aggregation.Function
	def           Definition
	slices        []Slice
	originMaxTs   map[uint64]uint64
	lastWatermark uint64
	// nextTriggerStart is the smallest window start not yet fired. It
	// only ever moves forward when Advance actually fires the window at
	// that start, which keeps firing a pure function of "has this window
	// fired before", independent of how far the watermark has already
	// travelled past it.
	nextTriggerStart uint64
}

// NewSliceStore creates an empty store for key under def, aggregating
// with fn.
func NewSliceStore(key uint64, fn aggregation.Function, def Definition) *SliceStore {
	return &SliceStore{
		key:         key,
		fn:          fn,
		def:         def,
		originMaxTs: make(map[uint64]uint64),
	}
}

// sliceBounds returns the [start, end) slice boundary containing ts.
// Tumbling windows use the direct floor-division formula; sliding
// windows use the union of window starts/ends within [ts-W, ts+W]
// described in spec §4.3, so that every slice lies entirely in or
// entirely outside every window that overlaps it.
func sliceBounds(ts uint64, def Definition) (uint64, uint64) {
	w := def.Size
	if def.Type != Sliding || def.Slide == w {
		start := (ts / w) * w
		return start, start + w
	}

	s := def.Slide
	lo := uint64(0)
	if ts > w {
		lo = ts - w
	}
	hi := ts + w

	kLo := lo / s
	if kLo*s < lo {
		// integer division already floors; nothing to adjust.
		_ = kLo
	}
	kHi := hi/s + 1

	edges := make(map[uint64]struct{})
	for k := kLo; k <= kHi; k++ {
		start := k * s
		end := start + w
		if start >= lo && start <= hi {
			edges[start] = struct{}{}
		}
		if end >= lo && end <= hi {
			edges[end] = struct{}{}
		}
	}
	sorted := make([]uint64, 0, len(edges))
	for e := range edges {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i := 0; i+1 < len(sorted); i++ {
		if sorted[i] <= ts && ts < sorted[i+1] {
			return sorted[i], sorted[i+1]
		}
	}
	// ts sits exactly on the final computed edge (happens at the
	// boundary of [lo,hi]); fall back to the tumbling-style bucket for
	// the slide interval containing ts.
	start := (ts / s) * s
	return start, start + s
}

// slice ensures a slice containing ts exists in s, creating and
// inserting it in sorted order if necessary, and returns it.
func (s *SliceStore) slice(ts uint64) *Slice {
	start, end := sliceBounds(ts, s.def)

	idx := sort.Search(len(s.slices), func(i int) bool { return s.slices[i].StartTs >= start })
	if idx < len(s.slices) && s.slices[idx].StartTs == start {
		return &s.slices[idx]
	}

	ns := Slice{StartTs: start, EndTs: end, State: s.fn.NewState()}
	s.slices = append(s.slices, Slice{})
	copy(s.slices[idx+1:], s.slices[idx:])
	s.slices[idx] = ns
	return &s.slices[idx]
}

// Record lifts value at timestamp ts from originId into its slice. It
// returns ErrLateRecord (not lifted) if ts is behind the store's
// current watermark.
func (s *SliceStore) Record(ts, originId uint64, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts < s.lastWatermark {
		return ErrLateRecord
	}

	sl := s.slice(ts)
	s.fn.Lift(sl.State, value)
	if ts > s.originMaxTs[originId] {
		s.originMaxTs[originId] = ts
	}
	return nil
}

// UpdateMaxTs records originId's progress without moving the store's
// watermark (spec §4.3 "updateMaxTs").
func (s *SliceStore) UpdateMaxTs(originId, ts uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts > s.originMaxTs[originId] {
		s.originMaxTs[originId] = ts
	}
}

// eventTimeWatermark is the minimum of every known origin's max
// timestamp (spec §4.3 step 1, event-time branch).
func (s *SliceStore) eventTimeWatermark() uint64 {
	if len(s.originMaxTs) == 0 {
		return 0
	}
	min := uint64(1<<64 - 1)
	for _, ts := range s.originMaxTs {
		if ts < min {
			min = ts
		}
	}
	return min
}

// windowBounds is a (start, end) pair identifying one window instance.
type windowBounds struct{ start, end uint64 }

// triggerWindows returns every window starting at or after cursor whose
// endTs <= watermark, walking window starts cursor, cursor+step,
// cursor+2*step, ... (step is the window size for Tumbling, the slide
// for Sliding), and the cursor position to resume from on the next
// call. Because the cursor only advances past a start once that
// window has actually fired, a window is fired exactly once no matter
// how far the watermark has already moved past its start — unlike
// comparing directly against the watermark's previous value, which
// would permanently skip a window the watermark leapt over before it
// became ready.
func triggerWindows(def Definition, cursor, watermark uint64) ([]windowBounds, uint64) {
	w := def.Size
	step := w
	if def.Type == Sliding && def.Slide != 0 {
		step = def.Slide
	}

	var out []windowBounds
	start := cursor
	for start+w <= watermark {
		out = append(out, windowBounds{start, start + w})
		start += step
	}
	return out, start
}

// Advance runs the full aggregateWindows algorithm (spec §4.3): it
// determines the current watermark (event-time minimum per-origin max,
// or wallclock() for processing-time), collects and emits trigger-ready
// windows, advances lastWatermark, and evicts slices that can no longer
// contribute to any future window.
func (s *SliceStore) Advance(wallclock func() uint64) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var watermark uint64
	if s.def.TimeCharacteristic == ProcessingTime {
		watermark = wallclock()
	} else {
		watermark = s.eventTimeWatermark()
	}

	ready, newCursor := triggerWindows(s.def, s.nextTriggerStart, watermark)
	s.nextTriggerStart = newCursor
	results := make([]Result, 0, len(ready))
	for _, win := range ready {
		state := s.fn.NewState()
		for i := range s.slices {
			sl := &s.slices[i]
			if sl.StartTs >= win.start && sl.EndTs <= win.end {
				s.fn.Combine(state, sl.State)
				sl.Fired = true
			}
		}
		results = append(results, Result{StartTs: win.start, EndTs: win.end, Key: s.key, Value: s.fn.Lower(state)})
	}

	s.lastWatermark = watermark
	s.evict()
	return results
}

// Flush forcibly emits every slice that never fired through Advance,
// one window per slice, in ascending StartTs order. A pipeline calls
// this once at end-of-stream so that a window whose endTs the real
// watermark never reaches (the last, partially-filled window of a
// finite stream) is still observable, rather than silently dropped.
// Flushed slices are marked Fired so a later Flush call is idempotent.
func (s *SliceStore) Flush() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []Result
	for i := range s.slices {
		sl := &s.slices[i]
		if sl.Fired {
			continue
		}
		sl.Fired = true
		results = append(results, Result{StartTs: sl.StartTs, EndTs: sl.EndTs, Key: s.key, Value: s.fn.Lower(sl.State)})
	}
	return results
}

// evict drops slices that cannot contribute to any future window: for
// tumbling windows, anything whose endTs is at or before
// lastWatermark-windowSize; for sliding, anything ending at or before
// the oldest still-live window start.
func (s *SliceStore) evict() {
	threshold := uint64(0)
	if s.lastWatermark > s.def.Size {
		threshold = s.lastWatermark - s.def.Size
	}
	if s.def.Type == Sliding && s.def.Slide != 0 {
		// nextTriggerStart is the start of the oldest window not yet fired.
		threshold = s.nextTriggerStart
	}
	kept := s.slices[:0]
	for _, sl := range s.slices {
		if sl.EndTs > threshold {
			kept = append(kept, sl)
		}
	}
	s.slices = kept
}

// NumberOfSlices reports how many live slices remain, for diagnostics
// and tests.
func (s *SliceStore) NumberOfSlices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slices)
}
