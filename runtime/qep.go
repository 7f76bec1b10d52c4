package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
)

// QEP (Executable Query Plan) owns one query's sources, pipelines, and
// sinks, and drives their lifecycle as a unit via the termination-token
// protocol (spec §3 "Executable Query Plan (QEP)", §4.4). T = 1 (the
// QEP itself) + |sources| + |pipelines| + |sinks|.
type QEP struct {
	ID        QueryID
	sources   []*SourceHandle
	pipelines []*Pipeline
	sinks     []*SinkHandle

	status atomix.Int64 // QEPStatus
	tokens atomix.Int64

	enqueuer TaskEnqueuer
	pool     BufferPool

	mu         sync.Mutex
	timestamps QueryTimestamps
	lastErr    error

	resultOnce sync.Once
	result     chan Result
}

// NewQEP wires sources, pipelines, and sinks into one query plan,
// back-referencing each so their completion notifications reach this
// QEP (spec §3 "a termination-status promise/future, an atomic status,
// and a total termination-token count").
func NewQEP(id QueryID, sources []*SourceHandle, pipelines []*Pipeline, sinks []*SinkHandle) *QEP {
	q := &QEP{
		ID:        id,
		sources:   sources,
		pipelines: pipelines,
		sinks:     sinks,
		result:    make(chan Result, 1),
	}
	q.status.StoreRelease(int64(QEPCreated))
	total := int64(1 + len(sources) + len(pipelines) + len(sinks))
	q.tokens.StoreRelease(total)

	for _, s := range sources {
		s.qep = q
	}
	for _, p := range pipelines {
		p.qep = q
	}
	for _, s := range sinks {
		s.qep = q
	}
	return q
}

// Status returns the QEP's current lifecycle state.
func (q *QEP) Status() QEPStatus {
	return QEPStatus(q.status.LoadAcquire())
}

// Setup transitions Created → Deployed, propagating Setup to every
// pipeline (spec §4.4 "setup transitions Created → Deployed, propagates
// to each pipeline; any pipeline-setup failure reverses the transition
// and calls stop"). enqueuer and pool are threaded into every
// pipeline's execution context. On a pipeline-setup failure this QEP
// does not return to Created: it moves to ErrorState, records the error
// and calls Stop(Hard).
func (q *QEP) Setup(enqueuer TaskEnqueuer, pool BufferPool) error {
	if !q.status.CompareAndSwapAcqRel(int64(QEPCreated), int64(QEPDeployed)) {
		return fmt.Errorf("%w: QEP %s: Setup from %s", ErrInvalidTransition, q.ID, q.Status())
	}
	q.enqueuer = enqueuer
	q.pool = pool

	for _, p := range q.pipelines {
		if err := p.Setup(enqueuer); err != nil {
			q.status.StoreRelease(int64(QEPErrorState))
			q.recordErr(err)
			_ = q.Stop(Hard)
			return err
		}
	}
	return nil
}

// Start transitions Deployed → Running, starting every pipeline and
// every source (spec §4.4 "start transitions Deployed → Running; any
// start failure likewise triggers stop").
func (q *QEP) Start(ctx context.Context) error {
	if !q.status.CompareAndSwapAcqRel(int64(QEPDeployed), int64(QEPRunning)) {
		return fmt.Errorf("%w: QEP %s: Start from %s", ErrInvalidTransition, q.ID, q.Status())
	}
	q.mu.Lock()
	q.timestamps.Started = now()
	q.timestamps.Running = now()
	q.mu.Unlock()

	for _, p := range q.pipelines {
		if err := p.Start(); err != nil {
			q.status.StoreRelease(int64(QEPErrorState))
			q.recordErr(err)
			_ = q.Stop(Hard)
			return err
		}
	}
	for _, s := range q.sources {
		s.Run(ctx, q.enqueuer)
	}
	return nil
}

// Stop requests termination (spec §4.4 "stop(hard)"/"stop(graceful)").
// Hard stop closes every source, pipeline, and sink immediately; a
// graceful stop only asks sources to wind down, letting the ordinary
// EoS cascade drain pipelines and sinks in turn.
func (q *QEP) Stop(t TerminationType) error {
	for _, s := range q.sources {
		_ = s.Stop(t)
	}
	if t != Graceful {
		for _, p := range q.pipelines {
			if p.Stop(t) {
				continue
			}
		}
		for _, s := range q.sinks {
			if s.status.CompareAndSwapAcqRel(int64(StatusRunning), int64(StatusStopped)) {
				_ = s.sink.Close(t)
				q.notifySinkCompletion(s, t)
			}
		}
	}
	return nil
}

// Fail marks the QEP ErrorState and force-stops everything (spec §7
// "Pipeline stage throws/returns Error → QEP → ErrorState, all stages
// fail(), future completes Fail"). Unlike the ordinary termination-token
// cascade, a stage error completes the future immediately rather than
// waiting for every source/pipeline/sink to report in: by the time a
// stage errors, those other actors' own EoS bookkeeping can no longer be
// trusted to reach zero (a sibling pipeline might never see a matching
// predecessor EoS once its peer has failed out from under it).
func (q *QEP) Fail(err error) {
	q.status.StoreRelease(int64(QEPErrorState))
	q.recordErr(err)
	for _, p := range q.pipelines {
		p.Fail()
	}
	_ = q.Stop(Hard)
	q.completeResult(QEPErrorState, err)
}

// Destroy asserts the QEP has fully terminated before releasing it
// (EXPANSION C.8 "QEP destroy() asserts zero termination tokens and no
// running pipeline before releasing sources/pipelines/sinks").
func (q *QEP) Destroy() error {
	if q.tokens.LoadAcquire() != 0 {
		return fmt.Errorf("%w: QEP %s: Destroy called with %d termination tokens outstanding", ErrInvalidTransition, q.ID, q.tokens.LoadAcquire())
	}
	for _, p := range q.pipelines {
		if p.Status() == StatusRunning {
			return fmt.Errorf("%w: QEP %s: Destroy called with pipeline %s still running", ErrInvalidTransition, q.ID, p.ID)
		}
	}
	return nil
}

// Future returns the channel the QEP's termination result is delivered
// on exactly once (spec §3 "termination-status promise/future"; spec §8
// "Termination totality").
func (q *QEP) Future() <-chan Result {
	return q.result
}

// QueryStatus returns the user-visible status surface (spec §6
// "queryStatus(queryId)").
func (q *QEP) QueryStatus() QueryStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueryStatus{State: q.Status(), Error: q.lastErr, Timestamps: q.timestamps}
}

func (q *QEP) recordErr(err error) {
	q.mu.Lock()
	q.lastErr = err
	q.mu.Unlock()
}

// notifyPipelineStageError is called by Pipeline.Execute when a stage
// returns an error: it fails the whole QEP (spec §4.4 "on error the QEP
// transitions to ErrorState and triggers FailEoS propagation").
func (q *QEP) notifyPipelineStageError(p *Pipeline, err error) {
	q.Fail(err)
}

// notifySourceCompletion, notifyPipelineCompletion, and
// notifySinkCompletion each independently perform the termination-token
// protocol's "tokensLeft == 2" check (EXPANSION C.9): the actor whose
// decrement brings the token count from 2 to 1 is the one that
// schedules the QEP's own final reconfiguration, because the identity
// of "the last non-self completion" is otherwise nondeterministic
// (spec §4.4 "Termination-token protocol").
func (q *QEP) notifySourceCompletion(h *SourceHandle, t TerminationType) {
	q.decrementAndMaybeSchedule(t)
}

func (q *QEP) notifyPipelineCompletion(p *Pipeline, t TerminationType) {
	q.decrementAndMaybeSchedule(t)
}

func (q *QEP) notifySinkCompletion(h *SinkHandle, t TerminationType) {
	q.decrementAndMaybeSchedule(t)
}

func (q *QEP) decrementAndMaybeSchedule(t TerminationType) {
	remaining := q.tokens.AddAcqRel(-1)
	if remaining == 1 {
		msg := ReconfigurationMessage{QueryID: q.ID, Type: reconfigTypeForTermination(t), Target: q}
		if q.enqueuer != nil {
			_ = q.enqueuer.EnqueueReconfig(msg)
		} else {
			// No scheduler wired (e.g. a QEP driven synchronously in
			// tests): process the QEP's own final reconfiguration
			// inline rather than losing the token.
			q.postReconfigurationCallback(msg)
		}
	}
}

// postReconfigurationCallback is the QEP's own reconfiguration handler:
// it is the final decrement, 1 → 0, and fulfills the termination
// future exactly once (spec §4.4 "When the QEP processes this message,
// it decrements T to 0, fulfills the termination future with Ok or
// Fail, and notifies the query manager").
func (q *QEP) postReconfigurationCallback(msg ReconfigurationMessage) {
	q.tokens.AddAcqRel(-1)

	var finalStatus QEPStatus
	switch msg.Type {
	case FailEoS:
		finalStatus = QEPErrorState
	case HardEoS:
		finalStatus = QEPStopped
	default:
		finalStatus = QEPFinished
	}
	if q.Status() == QEPErrorState {
		finalStatus = QEPErrorState
	} else {
		q.status.StoreRelease(int64(finalStatus))
	}

	q.mu.Lock()
	lastErr := q.lastErr
	q.mu.Unlock()
	q.completeResult(finalStatus, lastErr)
}

// completeResult records the stop timestamp and fulfills the
// termination future exactly once (spec §3 "termination-status
// promise/future"), whichever path gets there first: the ordinary
// token cascade reaching zero, or Fail's immediate short-circuit.
func (q *QEP) completeResult(status QEPStatus, err error) {
	q.mu.Lock()
	q.timestamps.Stopped = now()
	q.mu.Unlock()

	q.resultOnce.Do(func() {
		q.result <- Result{Status: status, Err: err}
		close(q.result)
	})
}

// now is a seam so tests that need deterministic timestamps can stub
// it; production code always sees wall-clock time.
var now = func() time.Time { return time.Now() }
