package scheduler

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/nebulastream/streamcore/buffer"
)

// WorkerContext is the per-thread state a scheduler worker carries
// across every task it executes (spec §2 "A worker thread (C5) ...";
// design note "Replace thread-local trace contexts with an explicit
// WorkerContext threaded through every stage invocation. No implicit
// thread-local state."). It is never shared between goroutines.
type WorkerContext struct {
	ID       int
	LocalPool *buffer.LocalBufferPool
	Span     trace.SpanContext

	// currentTask names what this worker is doing right now, for
	// diagnostics (spec §4.1 "dumps owning-thread info for
	// diagnostics").
	currentTask string
}

// CurrentTask reports a human-readable description of the task this
// worker is presently executing, or "" if idle.
func (w *WorkerContext) CurrentTask() string { return w.currentTask }
