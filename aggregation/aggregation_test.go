package aggregation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nebulastream/streamcore/aggregation"
)

func TestSum(t *testing.T) {
	fn := aggregation.NewSum()
	state := fn.NewState()
	fn.Lift(state, 5)
	fn.Lift(state, 7)
	fn.Lift(state, 2)
	assert.Equal(t, float64(14), fn.Lower(state))
}

func TestMinMax(t *testing.T) {
	min := aggregation.NewMin()
	state := min.NewState()
	for _, v := range []float64{5, 2, 9, -1} {
		min.Lift(state, v)
	}
	assert.Equal(t, float64(-1), min.Lower(state))

	max := aggregation.NewMax()
	state = max.NewState()
	for _, v := range []float64{5, 2, 9, -1} {
		max.Lift(state, v)
	}
	assert.Equal(t, float64(9), max.Lower(state))
}

func TestCount(t *testing.T) {
	fn := aggregation.NewCount()
	state := fn.NewState()
	for i := 0; i < 5; i++ {
		fn.Lift(state, float64(i)*100)
	}
	assert.Equal(t, float64(5), fn.Lower(state))
}

func TestAvg(t *testing.T) {
	fn := aggregation.NewAvg()
	state := fn.NewState()
	for _, v := range []float64{2, 4, 6} {
		fn.Lift(state, v)
	}
	assert.Equal(t, float64(4), fn.Lower(state))
}

func TestAvgOfEmptyStateIsZero(t *testing.T) {
	fn := aggregation.NewAvg()
	state := fn.NewState()
	assert.Equal(t, float64(0), fn.Lower(state))
}

func TestCombineMergesTwoPartials(t *testing.T) {
	fn := aggregation.NewSum()
	a := fn.NewState()
	b := fn.NewState()
	fn.Lift(a, 3)
	fn.Lift(b, 4)
	fn.Combine(a, b)
	assert.Equal(t, float64(7), fn.Lower(a))
}

func TestAvgCombine(t *testing.T) {
	fn := aggregation.NewAvg()
	a := fn.NewState()
	b := fn.NewState()
	fn.Lift(a, 10)
	fn.Lift(b, 20)
	fn.Lift(b, 30)
	fn.Combine(a, b)
	assert.Equal(t, float64(20), fn.Lower(a))
}

func TestCustom(t *testing.T) {
	fn := aggregation.NewCustom(8,
		func(state []byte, v float64) {},
		func(dst, src []byte) {},
		func(state []byte) float64 { return 42 })
	assert.Equal(t, aggregation.Custom, fn.Kind)
	assert.Equal(t, float64(42), fn.Lower(fn.NewState()))
}
