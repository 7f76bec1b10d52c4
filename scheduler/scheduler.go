package scheduler

import (
	"context"
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
	"code.hybscloud.com/spin"
	"go.opentelemetry.io/otel/trace"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/runtime"
)

// Tracer mints one span per data task a worker executes (design note
// "replace thread-local trace contexts with an explicit WorkerContext
// threaded through every stage invocation"). tracing.Provider satisfies
// this. A nil Tracer is valid and means tasks run unspanned.
type Tracer interface {
	StartTask(ctx context.Context, pipelineID string) (context.Context, trace.Span)
}

// Metrics is the narrow hook Scheduler calls into on every state
// change worth exporting (spec EXPANSION B: "C5 queue-depth/worker-busy
// gauges"). A nil Metrics is valid and simply means nothing is
// recorded; production wiring is metrics.Collector.
type Metrics interface {
	SetQueueDepth(dataDepth, reconfigDepth int)
	SetWorkersBusy(n int)
}

// Scheduler is the fixed worker-thread pool consuming one shared task
// queue (spec §4.5). Reconfiguration messages are queued separately and
// always drained ahead of data tasks, so EoS reaches a pipeline after
// its data but before any new data on the same logical channel (spec
// §4.5 "reconfiguration messages carry a priority that sorts them
// ahead of data tasks for the same pipeline").
type Scheduler struct {
	global *buffer.Pool

	dataQueue     *lfq.MPMC[task]
	reconfigQueue *lfq.MPMC[task]
	notify        chan struct{}

	numWorkers         int
	reservedPerWorker  int
	workers            []*WorkerContext
	busy               atomix.Int64

	wg        sync.WaitGroup
	stop      chan struct{}
	destroyed atomix.Bool

	metrics Metrics
	tracer  Tracer
}

// New creates a scheduler over global, with numWorkers worker
// goroutines each reserving reservedPerWorker buffers from global as
// their local pool (spec §2 "A worker thread (C5) owns a WorkerContext
// carrying a local buffer pool"). dataQueueCapacity and
// reconfigQueueCapacity bound the two task queues (rounded up to a
// power of two by lfq).
func New(global *buffer.Pool, numWorkers, reservedPerWorker, dataQueueCapacity, reconfigQueueCapacity int) (*Scheduler, error) {
	if numWorkers < 1 {
		return nil, fmt.Errorf("scheduler: numWorkers must be >= 1")
	}
	s := &Scheduler{
		global:            global,
		dataQueue:         lfq.NewMPMC[task](dataQueueCapacity),
		reconfigQueue:     lfq.NewMPMC[task](reconfigQueueCapacity),
		notify:            make(chan struct{}, 1),
		numWorkers:        numWorkers,
		reservedPerWorker: reservedPerWorker,
		stop:              make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		local, err := buffer.NewLocalBufferPool(global, reservedPerWorker)
		if err != nil {
			return nil, fmt.Errorf("scheduler: reserving worker %d local pool: %w", i, err)
		}
		s.workers = append(s.workers, &WorkerContext{ID: i, LocalPool: local})
	}
	return s, nil
}

// SetMetrics installs the gauge/counter sink the scheduler reports
// into. Safe to call before Start only.
func (s *Scheduler) SetMetrics(m Metrics) { s.metrics = m }

// SetTracer installs the span source data tasks are executed under.
// Safe to call before Start only.
func (s *Scheduler) SetTracer(t Tracer) { s.tracer = t }

// Start spawns one goroutine per worker, each running workerLoop.
func (s *Scheduler) Start() {
	for _, w := range s.workers {
		s.wg.Add(1)
		go s.workerLoop(w)
	}
}

// Stop signals every worker to exit after its current task and waits
// for them to drain. Tasks still queued are dropped (spec §5 "a hard
// stop ... outstanding buffers are dropped on pool teardown").
func (s *Scheduler) Stop() {
	if !s.destroyed.CompareAndSwapAcqRel(false, true) {
		return
	}
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// EnqueueData implements runtime.TaskEnqueuer: queues a (pipeline,
// buffer) pair as a data task.
func (s *Scheduler) EnqueueData(p *runtime.Pipeline, buf buffer.Buffer) error {
	if s.destroyed.LoadAcquire() {
		buf.Release()
		return ErrShutdown
	}
	t := task{kind: taskData, pipeline: p, buf: buf}
	if err := s.dataQueue.Enqueue(&t); err != nil {
		buf.Release()
		return fmt.Errorf("%w: %v", ErrQueueFull, err)
	}
	s.reportQueueDepth()
	s.wake()
	return nil
}

// EnqueueReconfig implements runtime.TaskEnqueuer: queues a
// reconfiguration message on the high-priority queue.
func (s *Scheduler) EnqueueReconfig(msg runtime.ReconfigurationMessage) error {
	if s.destroyed.LoadAcquire() {
		return ErrShutdown
	}
	t := task{kind: taskReconfig, reconfig: msg}
	if err := s.reconfigQueue.Enqueue(&t); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueFull, err)
	}
	s.reportQueueDepth()
	s.wake()
	return nil
}

func (s *Scheduler) reportQueueDepth() {
	if s.metrics == nil {
		return
	}
	// MPMC deliberately excludes Len (spec §4.1 rationale carried over
	// to the scheduler's own queues: accurate counts need cross-core
	// synchronization the queue avoids). Capacity is reported instead
	// of a live depth so the gauge at least bounds utilization.
	s.metrics.SetQueueDepth(s.dataQueue.Cap(), s.reconfigQueue.Cap())
}

// workerLoop is one worker thread's body: drain the reconfig queue
// first, then the data queue. When both are empty it takes a pending
// notify signal if one is there and otherwise backs off with spin.Wait;
// it never blocks on the notify channel, so an idle worker keeps polling
// until Stop.
func (s *Scheduler) workerLoop(w *WorkerContext) {
	defer s.wg.Done()
	sw := spin.Wait{}

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if t, err := s.reconfigQueue.Dequeue(); err == nil {
			s.runReconfig(w, t)
			sw = spin.Wait{}
			continue
		}
		if t, err := s.dataQueue.Dequeue(); err == nil {
			s.runData(w, t)
			sw = spin.Wait{}
			continue
		}

		select {
		case <-s.stop:
			return
		case <-s.notify:
		default:
			sw.Once()
		}
	}
}

func (s *Scheduler) runData(w *WorkerContext, t task) {
	s.busy.AddAcqRel(1)
	s.reportBusy()
	w.currentTask = fmt.Sprintf("pipeline=%s", t.pipeline.ID)
	defer func() {
		w.currentTask = ""
		s.busy.AddAcqRel(-1)
		s.reportBusy()
	}()

	if s.tracer == nil {
		_, _ = t.pipeline.Execute(t.buf, w.LocalPool)
		return
	}

	_, span := s.tracer.StartTask(context.Background(), t.pipeline.ID)
	w.Span = span.SpanContext()
	if _, err := t.pipeline.ExecuteTraced(t.buf, w.LocalPool, w.Span); err != nil {
		span.RecordError(err)
	}
	span.End()
}

func (s *Scheduler) runReconfig(w *WorkerContext, t task) {
	w.currentTask = fmt.Sprintf("reconfig=%s", t.reconfig.Type)
	defer func() { w.currentTask = "" }()
	t.reconfig.Dispatch()
}

func (s *Scheduler) reportBusy() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetWorkersBusy(int(s.busy.LoadAcquire()))
}
