package window_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/aggregation"
	"github.com/nebulastream/streamcore/window"
)

// Scenario 1 (tumbling, size=10, single origin): records (k=1,v=5,ts=3),
// (k=1,v=7,ts=8), (k=1,v=2,ts=11). The origin's max timestamp never
// advances past 11, so window [10,20) never reaches its endTs via
// ordinary watermark progress; only a Flush at end-of-stream surfaces
// it. Expected: {0,10,sum:12} via Advance, {10,20,sum:2} via Flush.
func TestTumblingScenarioOne(t *testing.T) {
	def := window.Definition{Type: window.Tumbling, Size: 10, Slide: 10, TimeCharacteristic: window.EventTime}
	s := window.NewSliceStore(1, aggregation.NewSum(), def)

	require.NoError(t, s.Record(3, 0, 5))
	s.UpdateMaxTs(0, 3)
	require.NoError(t, s.Record(8, 0, 7))
	s.UpdateMaxTs(0, 8)
	require.NoError(t, s.Record(11, 0, 2))
	s.UpdateMaxTs(0, 11)

	results := s.Advance(nil)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(0), results[0].StartTs)
	assert.Equal(t, uint64(10), results[0].EndTs)
	assert.Equal(t, float64(12), results[0].Value)

	flushed := s.Flush()
	require.Len(t, flushed, 1)
	assert.Equal(t, uint64(10), flushed[0].StartTs)
	assert.Equal(t, uint64(20), flushed[0].EndTs)
	assert.Equal(t, float64(2), flushed[0].Value)

	// Flush is idempotent: nothing left to emit a second time.
	assert.Empty(t, s.Flush())
}

// Scenario 2 (sliding, size=10, slide=5): records (v=1,ts=3), (v=2,ts=12),
// (v=3,ts=7), watermark supplied directly via a processing-time wallclock
// set to 15. Expected windows: {0,10,sum:4} (ts=3,7) and {5,15,sum:5}
// (ts=7,12... wait sum is 2+3=5 over [5,15)).
func TestSlidingScenarioTwo(t *testing.T) {
	def := window.Definition{Type: window.Sliding, Size: 10, Slide: 5, TimeCharacteristic: window.ProcessingTime}
	s := window.NewSliceStore(1, aggregation.NewSum(), def)

	require.NoError(t, s.Record(3, 0, 1))
	require.NoError(t, s.Record(12, 0, 2))
	require.NoError(t, s.Record(7, 0, 3))

	results := s.Advance(func() uint64 { return 15 })

	byStart := make(map[uint64]window.Result)
	for _, r := range results {
		byStart[r.StartTs] = r
	}

	w1, ok := byStart[0]
	require.True(t, ok, "expected window starting at 0")
	assert.Equal(t, uint64(10), w1.EndTs)
	assert.Equal(t, float64(4), w1.Value)

	w2, ok := byStart[5]
	require.True(t, ok, "expected window starting at 5")
	assert.Equal(t, uint64(15), w2.EndTs)
	assert.Equal(t, float64(5), w2.Value)
}

func TestLateRecordRejected(t *testing.T) {
	def := window.Definition{Type: window.Tumbling, Size: 10, Slide: 10, TimeCharacteristic: window.EventTime}
	s := window.NewSliceStore(1, aggregation.NewSum(), def)

	require.NoError(t, s.Record(5, 0, 1))
	s.UpdateMaxTs(0, 5)
	require.NoError(t, s.Record(25, 0, 1))
	s.UpdateMaxTs(0, 25)
	_ = s.Advance(nil)

	err := s.Record(1, 0, 1)
	assert.ErrorIs(t, err, window.ErrLateRecord)
}

func TestNoDoubleFiring(t *testing.T) {
	def := window.Definition{Type: window.Tumbling, Size: 10, Slide: 10, TimeCharacteristic: window.EventTime}
	s := window.NewSliceStore(1, aggregation.NewSum(), def)

	require.NoError(t, s.Record(3, 0, 5))
	s.UpdateMaxTs(0, 3)
	require.NoError(t, s.Record(8, 0, 7))
	s.UpdateMaxTs(0, 8)

	first := s.Advance(nil)
	assert.Empty(t, first, "window [0,10) should not fire until watermark passes 10")

	require.NoError(t, s.Record(19, 0, 1))
	s.UpdateMaxTs(0, 19)
	second := s.Advance(nil)
	require.Len(t, second, 1)
	assert.Equal(t, uint64(0), second[0].StartTs)
	assert.Equal(t, float64(12), second[0].Value)

	require.NoError(t, s.Record(29, 0, 1))
	s.UpdateMaxTs(0, 29)
	third := s.Advance(nil)
	require.Len(t, third, 1)
	assert.Equal(t, uint64(10), third[0].StartTs, "window [0,10) must never fire twice")
}

func TestEvictionDropsStaleSlices(t *testing.T) {
	def := window.Definition{Type: window.Tumbling, Size: 10, Slide: 10, TimeCharacteristic: window.EventTime}
	s := window.NewSliceStore(1, aggregation.NewSum(), def)

	require.NoError(t, s.Record(3, 0, 1))
	s.UpdateMaxTs(0, 3)
	require.NoError(t, s.Record(35, 0, 1))
	s.UpdateMaxTs(0, 35)
	_ = s.Advance(nil)

	assert.LessOrEqual(t, s.NumberOfSlices(), 2)
}
