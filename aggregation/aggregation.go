// Package aggregation implements the aggregate-function tagged variant
// design note calls for: a fixed {Sum|Min|Max|Count|Avg|Custom} enum
// backed by a {lift, combine, lower, state_size} function table instead
// of runtime polymorphism over an aggregate base class.
package aggregation

import (
	"encoding/binary"
	"math"
)

// Kind identifies which built-in aggregate a Function implements, or
// Custom for an operator-supplied one.
type Kind int

const (
	Sum Kind = iota
	Min
	Max
	Count
	Avg
	Custom
)

func (k Kind) String() string {
	switch k {
	case Sum:
		return "Sum"
	case Min:
		return "Min"
	case Max:
		return "Max"
	case Count:
		return "Count"
	case Avg:
		return "Avg"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// Function is the fixed table a window slice or hash-map aggregation
// entry calls through: Lift folds one input value into a fresh state
// buffer, Combine merges a source state into a destination state (used
// when folding slices into a window), and Lower projects a finished
// state into its output value. StateSize is the number of bytes each
// partial-aggregate slot needs, so callers can allocate state inline
// (e.g. as a hash map entry's Value) instead of boxing it.
type Function struct {
	Kind      Kind
	StateSize int
	Lift      func(state []byte, value float64)
	Combine   func(dst, src []byte)
	Lower     func(state []byte) float64
}

// NewSum returns the Sum aggregate: an 8-byte float64 accumulator.
func NewSum() Function {
	return Function{
		Kind:      Sum,
		StateSize: 8,
		Lift: func(state []byte, value float64) {
			setF64(state, getF64(state)+value)
		},
		Combine: func(dst, src []byte) {
			setF64(dst, getF64(dst)+getF64(src))
		},
		Lower: getF64,
	}
}

// NewMin returns the Min aggregate, seeded to +Inf.
func NewMin() Function {
	return Function{
		Kind:      Min,
		StateSize: 8,
		Lift: func(state []byte, value float64) {
			if cur := getF64(state); value < cur {
				setF64(state, value)
			}
		},
		Combine: func(dst, src []byte) {
			if s := getF64(src); s < getF64(dst) {
				setF64(dst, s)
			}
		},
		Lower: getF64,
	}
}

// NewMax returns the Max aggregate, seeded to -Inf.
func NewMax() Function {
	return Function{
		Kind:      Max,
		StateSize: 8,
		Lift: func(state []byte, value float64) {
			if cur := getF64(state); value > cur {
				setF64(state, value)
			}
		},
		Combine: func(dst, src []byte) {
			if s := getF64(src); s > getF64(dst) {
				setF64(dst, s)
			}
		},
		Lower: getF64,
	}
}

// NewCount returns the Count aggregate: Lift ignores its value and
// increments a counter.
func NewCount() Function {
	return Function{
		Kind:      Count,
		StateSize: 8,
		Lift: func(state []byte, _ float64) {
			setF64(state, getF64(state)+1)
		},
		Combine: func(dst, src []byte) {
			setF64(dst, getF64(dst)+getF64(src))
		},
		Lower: getF64,
	}
}

// NewAvg returns the Avg aggregate: a 16-byte {sum, count} state pair,
// lowered to sum/count (0 when count is 0, matching an empty window
// never being lowered by a caller in practice).
func NewAvg() Function {
	return Function{
		Kind:      Avg,
		StateSize: 16,
		Lift: func(state []byte, value float64) {
			setF64(state[0:8], getF64(state[0:8])+value)
			setF64(state[8:16], getF64(state[8:16])+1)
		},
		Combine: func(dst, src []byte) {
			setF64(dst[0:8], getF64(dst[0:8])+getF64(src[0:8]))
			setF64(dst[8:16], getF64(dst[8:16])+getF64(src[8:16]))
		},
		Lower: func(state []byte) float64 {
			count := getF64(state[8:16])
			if count == 0 {
				return 0
			}
			return getF64(state[0:8]) / count
		},
	}
}

// NewCustom wraps an operator-supplied function table, tagging it
// Custom so callers that switch on Kind can still identify it.
func NewCustom(stateSize int, lift func([]byte, float64), combine func(dst, src []byte), lower func([]byte) float64) Function {
	return Function{Kind: Custom, StateSize: stateSize, Lift: lift, Combine: combine, Lower: lower}
}

// NewState allocates a zeroed state buffer of the right size for fn,
// seeded for aggregates whose identity element isn't zero (Min, Max).
func (fn Function) NewState() []byte {
	state := make([]byte, fn.StateSize)
	switch fn.Kind {
	case Min:
		setF64(state, math.Inf(1))
	case Max:
		setF64(state, math.Inf(-1))
	}
	return state
}

func getF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:8]))
}

func setF64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b[:8], math.Float64bits(v))
}
