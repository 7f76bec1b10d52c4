package window_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/aggregation"
	"github.com/nebulastream/streamcore/window"
)

func TestGlobalSliceStoreWaitsForAllMappings(t *testing.T) {
	def := window.Definition{Type: window.Tumbling, Size: 10, Slide: 10, NumberOfInputEdges: 2}
	fn := aggregation.NewSum()
	g := window.NewGlobalSliceStore(1, fn, def)

	state := fn.NewState()
	fn.Lift(state, 5)

	// Only one of two expected mappings has reported: nothing may fire
	// yet even though this slice's own end would otherwise be ready.
	results := g.AddSliceAndTriggerWindows(100, 0, 10, state)
	assert.Empty(t, results)
	assert.Equal(t, 1, g.NumberOfMappings())

	state2 := fn.NewState()
	fn.Lift(state2, 7)
	results = g.AddSliceAndTriggerWindows(200, 10, 20, state2)
	assert.Equal(t, 2, g.NumberOfMappings())

	// Window [0,10) can now fire since a later slice [10,20) shows the
	// watermark has moved past it.
	require.Len(t, results, 1)
	assert.Equal(t, uint64(0), results[0].StartTs)
	assert.Equal(t, float64(5), results[0].Value)
}

func TestGlobalSliceStoreMergesSameBoundary(t *testing.T) {
	def := window.Definition{Type: window.Tumbling, Size: 10, Slide: 10, NumberOfInputEdges: 2}
	fn := aggregation.NewSum()
	g := window.NewGlobalSliceStore(1, fn, def)

	a := fn.NewState()
	fn.Lift(a, 3)
	b := fn.NewState()
	fn.Lift(b, 4)

	g.AddSliceAndTriggerWindows(1, 0, 10, a)
	g.AddSliceAndTriggerWindows(2, 0, 10, b)

	results := g.AddSliceAndTriggerWindows(1, 10, 20, fn.NewState())
	require.Len(t, results, 1)
	assert.Equal(t, float64(7), results[0].Value)
}

func TestGlobalSliceStoreFinalizeSliceEvicts(t *testing.T) {
	def := window.Definition{Type: window.Tumbling, Size: 10, Slide: 10, NumberOfInputEdges: 1}
	fn := aggregation.NewSum()
	g := window.NewGlobalSliceStore(1, fn, def)

	g.AddSliceAndTriggerWindows(1, 0, 10, fn.NewState())
	g.AddSliceAndTriggerWindows(1, 10, 20, fn.NewState())

	g.FinalizeSlice(10)
	remaining := g.GetSlicesForWindow(0, 20)
	for _, r := range remaining {
		assert.Greater(t, r.EndTs, uint64(10))
	}
}
