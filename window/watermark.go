package window

// WatermarkProcessor tracks each origin's reported maximum timestamp and
// exposes the minimum across all known origins as the event-time
// watermark (spec §4.3 step 1's "minimum per-origin max"). SliceStore
// and GlobalSliceStore keep their own bookkeeping and do not use it;
// metrics.Collector.SampleWatermark reads one.
type WatermarkProcessor struct {
	maxTs map[uint64]uint64
}

// NewWatermarkProcessor returns an empty processor: no origins
// registered yet.
func NewWatermarkProcessor() *WatermarkProcessor {
	return &WatermarkProcessor{maxTs: make(map[uint64]uint64)}
}

// UpdateMaxTs records originId's progress, registering it on first
// sight. A later ts lower than what's already recorded for originId is
// ignored: per-origin progress only moves forward.
func (w *WatermarkProcessor) UpdateMaxTs(originId, ts uint64) {
	if ts > w.maxTs[originId] {
		w.maxTs[originId] = ts
	}
}

// Watermark is the minimum max-timestamp across every registered
// origin, or 0 if no origin has reported yet.
func (w *WatermarkProcessor) Watermark() uint64 {
	if len(w.maxTs) == 0 {
		return 0
	}
	min := uint64(1<<64 - 1)
	for _, ts := range w.maxTs {
		if ts < min {
			min = ts
		}
	}
	return min
}

// NumberOfOrigins reports how many distinct origins have reported at
// least once.
func (w *WatermarkProcessor) NumberOfOrigins() int {
	return len(w.maxTs)
}
