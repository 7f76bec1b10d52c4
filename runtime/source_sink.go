package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
	"github.com/nebulastream/streamcore/buffer"
)

// Source is implemented outside the core (spec §1 "collaborators via
// their interfaces"; §6 "Source/sink contracts"). Open runs until the
// source has nothing more to produce (or ctx is cancelled), calling
// emit for each buffer it produces; its return error, if any, marks
// the source as having failed rather than completed gracefully. A
// source must not call emit again after Open returns.
type Source interface {
	Open(ctx context.Context, emit func(buffer.Buffer) error) error
	Close(t TerminationType) error
}

// Sink is implemented outside the core (spec §6). Consume reports
// whether buf was accepted, should be retried under backpressure, or
// failed outright.
type Sink interface {
	Consume(buf buffer.Buffer) (ConsumeResult, error)
	Close(t TerminationType) error
}

// SourceHandle wires a Source into one query's plan, targeting the
// first pipeline(s) its emitted buffers feed (spec §2 "A Source Handle
// produces a Tuple Buffer from its local pool and enqueues a task for
// the first pipeline").
type SourceHandle struct {
	ID      string
	source  Source
	targets []*Pipeline

	qep      *QEP
	enqueuer TaskEnqueuer
	status   atomix.Int64 // Status
	cancel   context.CancelFunc
}

// NewSourceHandle wraps source, feeding every buffer it emits to each
// of targets.
func NewSourceHandle(id string, source Source, targets ...*Pipeline) *SourceHandle {
	for _, t := range targets {
		t.addSourcePredecessor()
	}
	h := &SourceHandle{ID: id, source: source, targets: targets}
	h.status.StoreRelease(int64(StatusCreated))
	return h
}

// Run launches the source's Open loop in its own goroutine (spec §4.5
// "acquireBlocking on the buffer pool ... is a suspension point"; a
// source's own production loop is the other long-lived suspension
// point in the system). Run returns immediately; completion is
// reported asynchronously to the owning QEP.
func (h *SourceHandle) Run(parent context.Context, enqueuer TaskEnqueuer) {
	h.enqueuer = enqueuer
	ctx, cancel := context.WithCancel(parent)
	h.cancel = cancel
	h.status.StoreRelease(int64(StatusRunning))

	go func() {
		err := h.source.Open(ctx, h.emit)
		h.finish(err)
	}()
}

func (h *SourceHandle) emit(buf buffer.Buffer) error {
	if len(h.targets) == 0 {
		buf.Release()
		return nil
	}
	var firstErr error
	for i, t := range h.targets {
		b := buf
		if i < len(h.targets)-1 {
			b = buf.Retain()
		}
		if err := h.enqueuer.EnqueueData(t, b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// finish is called once Open returns (normally or with an error): it
// forwards the matching EoS to every target and reports completion to
// the QEP (spec §4.4 "Source emits FailEoS → propagates like SoftEoS
// but marks terminal state ErrorState").
func (h *SourceHandle) finish(err error) {
	term := Graceful
	if err != nil {
		term = Failure
	}
	if !h.status.CompareAndSwapAcqRel(int64(StatusRunning), int64(StatusStopped)) {
		h.status.StoreRelease(int64(StatusStopped))
	}

	reconfig := reconfigTypeForTermination(term)
	for _, t := range h.targets {
		_ = h.enqueuer.EnqueueReconfig(ReconfigurationMessage{QueryID: h.queryID(), Type: reconfig, Target: t})
	}
	if h.qep != nil {
		h.qep.notifySourceCompletion(h, term)
	}
}

// Stop requests the underlying source wind down (spec §6
// "Source::close(terminationType)"). The source's own Open call is
// expected to return shortly after, driving the normal finish() path.
func (h *SourceHandle) Stop(t TerminationType) error {
	if h.cancel != nil && t != Graceful {
		h.cancel()
	}
	return h.source.Close(t)
}

func (h *SourceHandle) queryID() QueryID {
	if h.qep == nil {
		return ""
	}
	return h.qep.ID
}

// SinkHandle wires a Sink into one query's plan as a terminal
// destination for one or more pipelines' Emit calls.
type SinkHandle struct {
	ID   string
	sink Sink

	qep             *QEP
	status          atomix.Int64 // Status
	numPredecessors int
	eosReceived     atomix.Int64
	reconfigMu      sync.Mutex
}

// NewSinkHandle wraps sink.
func NewSinkHandle(id string, sink Sink) *SinkHandle {
	h := &SinkHandle{ID: id, sink: sink}
	h.status.StoreRelease(int64(StatusRunning))
	return h
}

// Status returns the sink's current lifecycle state.
func (h *SinkHandle) Status() Status {
	return Status(h.status.LoadAcquire())
}

// consumeAsData is called by Pipeline.emit for every buffer routed to
// this sink. An ErrChannelClosed from Consume is dropped: consumeAsData
// returns nil and neither closes the sink nor counts an EoS for it. Any
// other Consume error is returned as is, and a ConsumeBackpressure or
// ConsumeError result is returned as an error the caller's emit sees;
// the buffer is not retried here.
func (h *SinkHandle) consumeAsData(buf buffer.Buffer) error {
	result, err := h.sink.Consume(buf)
	if err != nil {
		if errors.Is(err, ErrChannelClosed) {
			return nil
		}
		return err
	}
	switch result {
	case ConsumeOk:
		return nil
	case ConsumeBackpressure:
		return fmt.Errorf("runtime: sink %s requested backpressure", h.ID)
	default:
		return fmt.Errorf("runtime: sink %s reported an error", h.ID)
	}
}

func (h *SinkHandle) postReconfigurationCallback(msg ReconfigurationMessage) {
	h.reconfigMu.Lock()
	defer h.reconfigMu.Unlock()

	switch msg.Type {
	case SoftEoS, HardEoS, FailEoS:
		h.onPredecessorEoS(msg.Type)
	}
}

func (h *SinkHandle) onPredecessorEoS(observed ReconfigType) {
	if observed == FailEoS {
		if h.status.CompareAndSwapAcqRel(int64(StatusRunning), int64(StatusFailed)) {
			_ = h.sink.Close(Failure)
			if h.qep != nil {
				h.qep.notifySinkCompletion(h, Failure)
			}
		}
		return
	}

	n := h.eosReceived.AddAcqRel(1)
	if h.numPredecessors == 0 || int(n) < h.numPredecessors {
		return
	}

	term := Graceful
	if observed == HardEoS {
		term = Hard
	}
	if h.status.CompareAndSwapAcqRel(int64(StatusRunning), int64(StatusStopped)) {
		_ = h.sink.Close(term)
		if h.qep != nil {
			h.qep.notifySinkCompletion(h, term)
		}
	}
}
