package window

import (
	"sort"
	"sync"

	"github.com/nebulastream/streamcore/aggregation"
)

// globalSlice is one key's partially-aggregated slice as staged at a
// Combining-mode downstream worker: the same [StartTs, EndTs) interval
// a Slicing-mode upstream worker sealed and shipped, re-merged here
// across every upstream mapping that contributed to it.
type globalSlice struct {
	StartTs uint64
	EndTs   uint64
	State   []byte
}

// GlobalSliceStore assembles per-key slices shipped by multiple
// upstream Slicing-mode workers into final windows (spec §4.3
// Combining distribution mode), grounded on KeyedGlobalSliceStore in
// the original. Unlike SliceStore, which lifts raw records itself,
// GlobalSliceStore only ever receives already-sealed slices and merges
// them by boundary.
type GlobalSliceStore struct {
	mu       sync.Mutex
	key      uint64
	fn       aggregation.Function
	def      Definition
	slices   []globalSlice
	mappings map[uint64]struct{}

	lastMaxSliceEnd uint64
	nextWindowStart uint64
	triggerStarted  bool
}

// NewGlobalSliceStore creates an empty combining store for key under
// def, aggregating with fn. def.NumberOfInputEdges is the number of
// distinct upstream mappings that must have each contributed at least
// one slice before this store will advance past its last watermark
// (EXPANSION C.7's stall check).
func NewGlobalSliceStore(key uint64, fn aggregation.Function, def Definition) *GlobalSliceStore {
	return &GlobalSliceStore{
		key:      key,
		fn:       fn,
		def:      def,
		mappings: make(map[uint64]struct{}),
	}
}

// AddSliceAndTriggerWindows merges a sealed slice shipped by mappingId
// into this store, recording mappingId as having reported, and returns
// every window that becomes ready to fire as a result. If fewer than
// def.NumberOfInputEdges distinct mappings have ever reported, no
// window is triggered yet, even if this slice's own boundary would
// otherwise make one ready: a window can only be final once every
// upstream partition has had a chance to contribute to it (spec §4.3
// "Failure semantics", EXPANSION C.7).
func (g *GlobalSliceStore) AddSliceAndTriggerWindows(mappingId, startTs, endTs uint64, state []byte) []Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.mappings[mappingId] = struct{}{}
	g.mergeSlice(startTs, endTs, state)

	if len(g.mappings) < g.def.NumberOfInputEdges {
		return nil
	}

	if endTs > g.lastMaxSliceEnd {
		prev := g.lastMaxSliceEnd
		g.lastMaxSliceEnd = endTs
		return g.triggerInflightWindows(prev, g.lastMaxSliceEnd)
	}
	return nil
}

// mergeSlice finds-or-inserts the globalSlice at [startTs, endTs) in
// sorted order and folds state into it via Combine, so that repeated
// contributions to the same boundary from different upstream mappings
// accumulate rather than overwrite.
func (g *GlobalSliceStore) mergeSlice(startTs, endTs uint64, state []byte) {
	idx := sort.Search(len(g.slices), func(i int) bool { return g.slices[i].StartTs >= startTs })
	if idx < len(g.slices) && g.slices[idx].StartTs == startTs {
		g.fn.Combine(g.slices[idx].State, state)
		return
	}

	ns := globalSlice{StartTs: startTs, EndTs: endTs, State: g.fn.NewState()}
	g.fn.Combine(ns.State, state)
	g.slices = append(g.slices, globalSlice{})
	copy(g.slices[idx+1:], g.slices[idx:])
	g.slices[idx] = ns
}

// triggerInflightWindows walks every window start from this store's
// trigger cursor forward by the slide, emitting every window whose
// endTs falls strictly inside [startEndTs, endEndTs) — the interval the
// watermark just advanced through. The cursor persists across calls so
// a window, once fired, is never revisited.
func (g *GlobalSliceStore) triggerInflightWindows(startEndTs, endEndTs uint64) []Result {
	w := g.def.Size
	slide := w
	if g.def.Type == Sliding && g.def.Slide != 0 {
		slide = g.def.Slide
	}

	if !g.triggerStarted {
		g.triggerStarted = true
		g.nextWindowStart = (startEndTs / w) * w
	}

	var results []Result
	for start := g.nextWindowStart; start+w < endEndTs; start += slide {
		results = append(results, g.windowResult(start, start+w))
		g.nextWindowStart = start + slide
	}
	return results
}

// TriggerAllInflightWindows forces every window still reachable given
// the slices currently staged, without waiting for a new slice to
// arrive — used at end-of-stream, mirroring SliceStore.Flush's role for
// the per-worker case.
func (g *GlobalSliceStore) TriggerAllInflightWindows() []Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.slices) == 0 {
		return nil
	}
	endEndTs := g.slices[len(g.slices)-1].EndTs + g.def.Size
	return g.triggerInflightWindows(g.lastMaxSliceEnd, endEndTs)
}

// windowResult combines every staged slice inside [start, end) and
// lowers it to a final Result.
func (g *GlobalSliceStore) windowResult(start, end uint64) Result {
	state := g.fn.NewState()
	for i := range g.slices {
		sl := &g.slices[i]
		if sl.StartTs >= start && sl.EndTs <= end {
			g.fn.Combine(state, sl.State)
		}
	}
	return Result{StartTs: start, EndTs: end, Key: g.key, Value: g.fn.Lower(state)}
}

// GetSlicesForWindow returns the staged slices, in order, whose start
// lies in [startTs, endTs], stopping at the first slice that ends after
// endTs (that slice and every later one are left out), for diagnostics
// and tests (spec grounding:
// KeyedGlobalSliceStore::getSlicesForWindow).
func (g *GlobalSliceStore) GetSlicesForWindow(startTs, endTs uint64) []Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Result
	for _, sl := range g.slices {
		if sl.EndTs > endTs {
			break
		}
		if sl.StartTs >= startTs && sl.StartTs <= endTs {
			out = append(out, Result{StartTs: sl.StartTs, EndTs: sl.EndTs, Key: g.key, Value: g.fn.Lower(sl.State)})
		}
	}
	return out
}

// FinalizeSlice drops every staged slice that ends at or before
// threshold: once every window that could reference them has fired,
// they can never be read again (spec grounding:
// KeyedGlobalSliceStore::finalizeSlice).
func (g *GlobalSliceStore) FinalizeSlice(threshold uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.slices[:0]
	for _, sl := range g.slices {
		if sl.EndTs > threshold {
			kept = append(kept, sl)
		}
	}
	g.slices = kept
}

// NumberOfMappings reports how many distinct upstream mappings have
// contributed at least one slice so far.
func (g *GlobalSliceStore) NumberOfMappings() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.mappings)
}
