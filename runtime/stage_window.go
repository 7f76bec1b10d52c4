package runtime

import (
	"github.com/nebulastream/streamcore/aggregation"
	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/window"
)

// Record is one decoded input row a WindowAggregateStage folds into a
// key's SliceStore. Decoding a tuple buffer's schema-typed payload into
// rows is a compiled-operator concern out of this component's scope
// (spec §1); WindowAggregateStage takes a Decode function instead of
// assuming any particular wire layout.
type Record struct {
	Key      uint64
	Ts       uint64
	OriginID uint64
	Value    float64
}

// WindowAggregateStage is the concrete pipeline stage that ties the
// windowing subsystem (C3) into the pipeline runtime (C4): it decodes
// every record out of an input buffer, records each into its key's
// SliceStore, advances every touched key's store, and emits every window
// fired by one Execute call together in a single output buffer (spec §2
// "update window slice stores (C3)").
type WindowAggregateStage struct {
	Def      window.Definition
	Fn       aggregation.Function
	Decode   func(buffer.Buffer) ([]Record, error)
	// Encode writes results into an output buffer acquired from the
	// worker's local pool. If nil, the output buffer only carries its
	// tuple count (spec §1: the wire layout for aggregate results is a
	// compiled-operator concern this component does not assume).
	Encode    func([]window.Result, buffer.Buffer) error
	Wallclock func() uint64
}

// Execute implements Stage.
func (w *WindowAggregateStage) Execute(buf buffer.Buffer, ctx *PipelineExecutionContext) (StageStatus, error) {
	defer buf.Release()

	records, err := w.Decode(buf)
	if err != nil {
		return 0, NewStageError("SchemaMismatch", err.Error())
	}

	touched := make(map[uint64]*window.SliceStore)
	for _, r := range records {
		store := w.storeFor(ctx, r.Key)
		if err := store.Record(r.Ts, r.OriginID, r.Value); err != nil {
			// Late records are skipped without an error; no count of
			// them is kept.
			continue
		}
		touched[r.Key] = store
	}

	var results []window.Result
	for _, store := range touched {
		results = append(results, store.Advance(w.Wallclock)...)
	}
	if len(results) == 0 {
		return Ok, nil
	}

	out, err := ctx.Pool.AcquireBlocking()
	if err != nil {
		return 0, err
	}
	out.SetNumberOfTuples(uint32(len(results)))
	if w.Encode != nil {
		if err := w.Encode(results, out); err != nil {
			out.Release()
			return 0, NewStageError("Encode", err.Error())
		}
	}
	if err := ctx.Emit(out); err != nil {
		return NeedsBackpressure, nil
	}
	return Ok, nil
}

// storeFor returns the SliceStore for key, creating it on first sight.
// HandlerStore.GetOrCreate serializes creation of each per-key handler
// independently (keyed by a string unique to this stage and key), so
// two worker threads racing to touch the same never-before-seen key
// (spec §4.4 "execute is re-entrant across threads sharing the
// pipeline") always agree on exactly one SliceStore instance for it.
func (w *WindowAggregateStage) storeFor(ctx *PipelineExecutionContext, key uint64) *window.SliceStore {
	return ctx.Handlers.GetOrCreate(perKeyHandlerID(key), func() any {
		return window.NewSliceStore(key, w.Fn, w.Def)
	}).(*window.SliceStore)
}

func perKeyHandlerID(key uint64) string {
	return "window-slice-store/" + itoa(key)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
