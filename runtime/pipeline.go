package runtime

import (
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
	"go.opentelemetry.io/otel/trace"

	"github.com/nebulastream/streamcore/buffer"
)

// Stage is the compiled operator chain a Pipeline runs per task (spec
// §4.4: "Holds a pointer to an immutable stage"). Planning, binding,
// and compilation of a stage from a logical plan are out of scope
// (spec §1); runtime only consumes the compiled result through this
// interface.
type Stage interface {
	// Execute processes one input buffer under ctx, returning Ok or
	// NeedsBackpressure on success. Any returned error is passed to the
	// owning QEP unchanged (it is not wrapped in a *StageError) and
	// triggers QEP failure (spec §4.4 "on error the QEP transitions to
	// ErrorState").
	Execute(buf buffer.Buffer, ctx *PipelineExecutionContext) (StageStatus, error)
}

// StageFunc adapts a plain function to Stage, the common case for a
// single-operator pipeline.
type StageFunc func(buf buffer.Buffer, ctx *PipelineExecutionContext) (StageStatus, error)

func (f StageFunc) Execute(buf buffer.Buffer, ctx *PipelineExecutionContext) (StageStatus, error) {
	return f(buf, ctx)
}

// Pipeline is an immutable graph node: a compiled stage, its successor
// pipelines, the sinks it writes to directly, and lifecycle state
// (spec §3 "Executable Pipeline"). Successor pipelines are held as
// plain pointers owned by the QEP, not the Pipeline itself — the QEP
// is the thing that keeps the whole graph alive (spec §4.4: "a list of
// successor pipelines (weak references: a pipeline does not keep its
// successors alive past the QEP)").
type Pipeline struct {
	ID   string
	stage Stage

	successors []*Pipeline
	sinks      []*SinkHandle

	qep    *QEP
	status atomix.Int64 // Status

	numPredecessors int
	eosReceived     atomix.Int64
	reconfigMu      sync.Mutex // serializes postReconfigurationCallback (spec §5)

	// handlers is this pipeline's operator-handler store: created once in
	// Setup and shared by every Execute call for the pipeline's lifetime,
	// since it holds stateful per-key operator state (window slice
	// stores, join hash maps) that must survive across tasks rather than
	// being rebuilt per call (spec §4.4 "the pipeline's operator-handler
	// store").
	handlers *HandlerStore
	enqueuer TaskEnqueuer
}

// NewPipeline creates a pipeline in StatusCreated wrapping stage.
func NewPipeline(id string, stage Stage) *Pipeline {
	p := &Pipeline{ID: id, stage: stage}
	p.status.StoreRelease(int64(StatusCreated))
	return p
}

// AddSuccessor wires next as a downstream pipeline: buffers Emit-ed by
// p are routed to next as a data task, and next will not consider
// itself drained until it has seen an EoS from p (among any of its
// other predecessors).
func (p *Pipeline) AddSuccessor(next *Pipeline) {
	p.successors = append(p.successors, next)
	next.numPredecessors++
}

// AddSink attaches a terminal sink this pipeline writes Emit-ed buffers
// to directly (spec §2 "routed to successor pipelines or sinks").
func (p *Pipeline) AddSink(s *SinkHandle) {
	p.sinks = append(p.sinks, s)
	s.numPredecessors++
}

// addSourcePredecessor registers a SourceHandle as feeding p directly,
// for EoS-counting purposes (a source is a predecessor the same way
// another pipeline is).
func (p *Pipeline) addSourcePredecessor() {
	p.numPredecessors++
}

// Status returns the pipeline's current lifecycle state.
func (p *Pipeline) Status() Status {
	return Status(p.status.LoadAcquire())
}

// Setup transitions Created → Setup and builds this pipeline's
// operator-handler store (spec §4.4 "setup(qm, bm)"). Calling Setup on a
// pipeline not in StatusCreated is an invalid transition.
func (p *Pipeline) Setup(enqueuer TaskEnqueuer) error {
	if !p.status.CompareAndSwapAcqRel(int64(StatusCreated), int64(StatusSetup)) {
		return fmt.Errorf("%w: pipeline %s: Setup from %s", ErrInvalidTransition, p.ID, p.Status())
	}
	p.handlers = NewHandlerStore()
	p.enqueuer = enqueuer
	return nil
}

// newContext builds the execution context for one Execute call: the
// pipeline's persistent handler store paired with the calling worker's
// own local buffer pool (spec §4.4 "PipelineExecutionContext exposes
// ... the worker's local buffer pool").
func (p *Pipeline) newContext(pool BufferPool, span trace.SpanContext) *PipelineExecutionContext {
	return &PipelineExecutionContext{
		Pipeline: p,
		Handlers: p.handlers,
		Pool:     pool,
		Span:     span,
		enqueuer: p.enqueuer,
	}
}

// Start transitions Setup → Running (spec §4.4 "start()").
func (p *Pipeline) Start() error {
	if !p.status.CompareAndSwapAcqRel(int64(StatusSetup), int64(StatusRunning)) {
		return fmt.Errorf("%w: pipeline %s: Start from %s", ErrInvalidTransition, p.ID, p.Status())
	}
	return nil
}

// Execute runs one task's worth of work through the compiled stage.
// Re-entrant across worker threads sharing this pipeline (spec §4.4).
// A non-nil stage error is translated into a pipeline failure, which
// propagates to the owning QEP; a NeedsBackpressure status returned
// without an error is passed back to the caller unchanged.
func (p *Pipeline) Execute(buf buffer.Buffer, pool BufferPool) (StageStatus, error) {
	return p.ExecuteTraced(buf, pool, trace.SpanContext{})
}

// ExecuteTraced is Execute with an explicit span context attached to
// the PipelineExecutionContext (design note "replace thread-local
// trace contexts with an explicit WorkerContext"), for callers (the
// scheduler) that mint one span per task.
func (p *Pipeline) ExecuteTraced(buf buffer.Buffer, pool BufferPool, span trace.SpanContext) (StageStatus, error) {
	status, err := p.stage.Execute(buf, p.newContext(pool, span))
	if err != nil {
		p.Fail()
		if p.qep != nil {
			p.qep.notifyPipelineStageError(p, err)
		}
		return status, err
	}
	return status, nil
}

// emit routes buf to every successor pipeline and sink, retaining one
// extra reference per additional destination beyond the first so each
// destination owns exactly one reference.
func (p *Pipeline) emit(enqueuer TaskEnqueuer, buf buffer.Buffer) error {
	destinations := len(p.successors) + len(p.sinks)
	if destinations == 0 {
		buf.Release()
		return nil
	}

	sent := 0
	var firstErr error
	next := func() buffer.Buffer {
		sent++
		if sent < destinations {
			return buf.Retain()
		}
		return buf
	}

	for _, s := range p.successors {
		if err := enqueuer.EnqueueData(s, next()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range p.sinks {
		if err := s.consumeAsData(next()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop requests termination (spec §4.4 "stop(terminationType) → bool").
// Hard stop transitions the pipeline to Stopped immediately, flushing
// no further data. Graceful stop is a no-op here: a pipeline only
// actually stops gracefully once it has observed EoS from every
// predecessor (see onPredecessorEoS), matching "pipelines flush held
// state" being driven by the EoS cascade, not a direct call. Stop
// returns whether this call performed the transition.
func (p *Pipeline) Stop(t TerminationType) bool {
	if t != Graceful {
		if p.status.CompareAndSwapAcqRel(int64(StatusRunning), int64(StatusStopped)) ||
			p.status.CompareAndSwapAcqRel(int64(StatusSetup), int64(StatusStopped)) {
			p.forwardEoS(HardEoS)
			if p.qep != nil {
				p.qep.notifyPipelineCompletion(p, Hard)
			}
			return true
		}
		return false
	}
	return false
}

// Fail transitions the pipeline to Failed (idempotent: only the first
// caller gets true back), per spec §4.4 "fail() → bool".
func (p *Pipeline) Fail() bool {
	for {
		cur := Status(p.status.LoadAcquire())
		if cur == StatusFailed || cur == StatusStopped {
			return false
		}
		if p.status.CompareAndSwapAcqRel(int64(cur), int64(StatusFailed)) {
			return true
		}
	}
}

// postReconfigurationCallback runs exactly once per message, serially
// per pipeline (spec §4.4 "Reconfiguration messages"). Only EoS
// variants are meaningful to a pipeline; Pause/Resume/SchemaUpdate are
// accepted but pipeline behavior for them is operator-specific and out
// of scope here.
func (p *Pipeline) postReconfigurationCallback(msg ReconfigurationMessage) {
	p.reconfigMu.Lock()
	defer p.reconfigMu.Unlock()

	switch msg.Type {
	case SoftEoS, HardEoS, FailEoS:
		p.onPredecessorEoS(msg.Type)
	}
}

// onPredecessorEoS counts one more predecessor's EoS in; once every
// predecessor has reported, the pipeline itself is considered drained
// (spec §4.4 "each stage, on seeing EoS from all of its predecessors,
// forwards EoS downstream and decrements the QEP's termination-token
// counter"). A FailEoS from any predecessor short-circuits straight to
// pipeline failure rather than waiting for the rest.
func (p *Pipeline) onPredecessorEoS(observed ReconfigType) {
	if observed == FailEoS {
		if p.Fail() {
			p.forwardEoS(FailEoS)
			if p.qep != nil {
				p.qep.notifyPipelineCompletion(p, Failure)
			}
		}
		return
	}

	n := p.eosReceived.AddAcqRel(1)
	if p.numPredecessors == 0 || int(n) < p.numPredecessors {
		return
	}

	term := Graceful
	reconfig := SoftEoS
	if observed == HardEoS {
		term = Hard
		reconfig = HardEoS
	}

	transitioned := p.status.CompareAndSwapAcqRel(int64(StatusRunning), int64(StatusStopped)) ||
		p.status.CompareAndSwapAcqRel(int64(StatusSetup), int64(StatusStopped))
	if !transitioned {
		return
	}

	p.forwardEoS(reconfig)
	if p.qep != nil {
		p.qep.notifyPipelineCompletion(p, term)
	}
}

// forwardEoS posts t to every successor pipeline and sink, via the
// pipeline's own execution-context enqueuer.
func (p *Pipeline) forwardEoS(t ReconfigType) {
	if p.enqueuer == nil {
		return
	}
	for _, s := range p.successors {
		_ = p.enqueuer.EnqueueReconfig(ReconfigurationMessage{QueryID: p.queryID(), Type: t, Target: s})
	}
	for _, s := range p.sinks {
		_ = p.enqueuer.EnqueueReconfig(ReconfigurationMessage{QueryID: p.queryID(), Type: t, Target: s})
	}
}

func (p *Pipeline) queryID() QueryID {
	if p.qep == nil {
		return ""
	}
	return p.qep.ID
}
