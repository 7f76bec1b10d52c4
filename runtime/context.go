package runtime

import (
	"sync"
	"time"

	"github.com/nebulastream/streamcore/buffer"
	"go.opentelemetry.io/otel/trace"
)

// BufferPool is the subset of buffer.Pool / buffer.LocalBufferPool /
// buffer.FixedSizeBufferPool a pipeline stage needs: acquiring output
// buffers from the worker's local pool (spec §4.4
// "PipelineExecutionContext exposes ... the worker's local buffer
// pool"). Kept as an interface here (rather than importing a concrete
// pool type from scheduler) so runtime has no dependency on scheduler.
type BufferPool interface {
	AcquireBlocking() (buffer.Buffer, error)
	TryAcquire() (buffer.Buffer, error)
	AcquireWithin(timeout time.Duration) (buffer.Buffer, error)
	AvailableBuffers() int
}

// TaskEnqueuer is how runtime hands work back to the scheduler (C5)
// without importing it: a data task routes one buffer to one
// successor pipeline, a reconfiguration task routes one control
// message to its target (spec §4.5 "reconfiguration messages carry a
// priority that sorts them ahead of data tasks for the same
// pipeline").
type TaskEnqueuer interface {
	EnqueueData(p *Pipeline, buf buffer.Buffer) error
	EnqueueReconfig(msg ReconfigurationMessage) error
}

// HandlerStore is a pipeline's per-query operator-handler registry
// (spec §4.4: "the pipeline's operator-handler store, for stateful
// operators like windows and joins"). Handlers are looked up by the
// operator id the plan compiler assigned them; the store itself is
// agnostic to what a handler actually is (a *window.SliceStore, a
// *hashmap.ChainedHashMap, ...).
type HandlerStore struct {
	mu       sync.Mutex
	handlers map[string]any
}

// NewHandlerStore returns an empty handler registry.
func NewHandlerStore() *HandlerStore {
	return &HandlerStore{handlers: make(map[string]any)}
}

// GetOrCreate returns the handler registered under id, creating it via
// create() the first time it is requested. Concurrent stage
// invocations sharing a pipeline (spec §4.4 "execute is re-entrant
// across threads sharing the pipeline") race safely on first creation.
func (h *HandlerStore) GetOrCreate(id string, create func() any) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.handlers[id]; ok {
		return v
	}
	v := create()
	h.handlers[id] = v
	return v
}

// Get returns the handler registered under id, or nil if none exists
// yet.
func (h *HandlerStore) Get(id string) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handlers[id]
}

// PipelineExecutionContext is threaded through every Stage.Execute call
// (spec §4.4 "the stage receives a PipelineExecutionContext"; design
// note "replace thread-local trace contexts with an explicit
// WorkerContext"). Pipeline.Execute builds one per call, pairing the
// pipeline's own persistent Handlers (created once in Setup, so
// stateful operators keep their state across tasks) with whichever
// worker's local Pool is calling in.
type PipelineExecutionContext struct {
	Pipeline *Pipeline
	Handlers *HandlerStore
	Pool     BufferPool
	Span     trace.SpanContext

	enqueuer TaskEnqueuer
}

// NewPipelineExecutionContext builds a standalone context with its own
// fresh handler store, for driving a Stage directly in tests without a
// Pipeline's Setup/Execute lifecycle.
func NewPipelineExecutionContext(p *Pipeline, pool BufferPool, enqueuer TaskEnqueuer) *PipelineExecutionContext {
	return &PipelineExecutionContext{
		Pipeline: p,
		Handlers: NewHandlerStore(),
		Pool:     pool,
		enqueuer: enqueuer,
	}
}

// Emit routes buf to every successor pipeline and every attached sink
// of the owning pipeline (spec §2: "emit output buffers routed to
// successor pipelines or sinks"). Each destination gets its own
// reference: buf is retained once per extra destination and the
// caller's own reference is consumed by the first destination (or
// released if there are none).
func (c *PipelineExecutionContext) Emit(buf buffer.Buffer) error {
	return c.Pipeline.emit(c.enqueuer, buf)
}
