package scheduler_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/runtime"
	"github.com/nebulastream/streamcore/scheduler"
	"github.com/nebulastream/streamcore/tracing"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	p, err := buffer.NewPool(256, 64)
	require.NoError(t, err)
	return p
}

func TestSchedulerRunsDataTasks(t *testing.T) {
	global := newTestPool(t)
	s, err := scheduler.New(global, 2, 4, 16, 16)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	var executed int32
	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		atomic.AddInt32(&executed, 1)
		buf.Release()
		return runtime.Ok, nil
	}))
	require.NoError(t, pipeline.Setup(s))
	require.NoError(t, pipeline.Start())

	for i := 0; i < 10; i++ {
		buf, err := global.TryAcquire()
		require.NoError(t, err)
		require.NoError(t, s.EnqueueData(pipeline, buf))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&executed) == 10
	}, time.Second, time.Millisecond)
}

// reconfigOrderRecorder appends kinds in the order the scheduler dequeues
// them, letting the test assert that a reconfig message enqueued after a
// data task is still observed before it, because the reconfig queue is
// drained first on a worker's next iteration.
type reconfigOrderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *reconfigOrderRecorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, s)
}

func (r *reconfigOrderRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func TestSchedulerDrainsReconfigAheadOfQueuedData(t *testing.T) {
	global := newTestPool(t)
	// Single worker so dequeue order is fully deterministic.
	s, err := scheduler.New(global, 1, 4, 16, 16)
	require.NoError(t, err)

	rec := &reconfigOrderRecorder{}
	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		rec.add("data")
		buf.Release()
		return runtime.Ok, nil
	}))
	sink := runtime.NewSinkHandle("sink", &observingSink{rec: rec})
	pipeline.AddSink(sink)
	require.NoError(t, pipeline.Setup(s))
	require.NoError(t, pipeline.Start())

	// Enqueue a data task and a reconfig task before starting any
	// worker goroutine, so both are already queued when workerLoop
	// begins its first dequeue and must pick the reconfig queue first.
	buf, err := global.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, s.EnqueueData(pipeline, buf))
	require.NoError(t, s.EnqueueReconfig(runtime.ReconfigurationMessage{Type: runtime.HardEoS, Target: sink}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 2
	}, time.Second, time.Millisecond)

	order := rec.snapshot()
	require.Len(t, order, 2)
	assert.Equal(t, "reconfig", order[0])
	assert.Equal(t, "data", order[1])
}

type observingSink struct {
	rec *reconfigOrderRecorder
}

func (s *observingSink) Consume(buf buffer.Buffer) (runtime.ConsumeResult, error) {
	buf.Release()
	return runtime.ConsumeOk, nil
}

func (s *observingSink) Close(t runtime.TerminationType) error {
	s.rec.add("reconfig")
	return nil
}

func TestSchedulerEnqueueAfterStopReturnsErrShutdown(t *testing.T) {
	global := newTestPool(t)
	s, err := scheduler.New(global, 1, 2, 4, 4)
	require.NoError(t, err)
	s.Start()
	s.Stop()

	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		return runtime.Ok, nil
	}))
	buf, err := global.TryAcquire()
	require.NoError(t, err)
	err = s.EnqueueData(pipeline, buf)
	assert.ErrorIs(t, err, scheduler.ErrShutdown)

	err = s.EnqueueReconfig(runtime.ReconfigurationMessage{Type: runtime.SoftEoS, Target: pipeline})
	assert.ErrorIs(t, err, scheduler.ErrShutdown)
}

type recordingMetrics struct {
	mu             sync.Mutex
	lastDataDepth  int
	lastReconfig   int
	lastWorkersBusy int
}

func (m *recordingMetrics) SetQueueDepth(dataDepth, reconfigDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDataDepth = dataDepth
	m.lastReconfig = reconfigDepth
}

func (m *recordingMetrics) SetWorkersBusy(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWorkersBusy = n
}

func TestSchedulerReportsMetrics(t *testing.T) {
	global := newTestPool(t)
	s, err := scheduler.New(global, 1, 2, 4, 4)
	require.NoError(t, err)
	m := &recordingMetrics{}
	s.SetMetrics(m)
	s.Start()
	defer s.Stop()

	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		buf.Release()
		return runtime.Ok, nil
	}))
	require.NoError(t, pipeline.Setup(s))
	require.NoError(t, pipeline.Start())

	buf, err := global.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, s.EnqueueData(pipeline, buf))

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.lastDataDepth > 0
	}, time.Second, time.Millisecond)
}

func TestSchedulerRunsDataTasksUnderTracer(t *testing.T) {
	global := newTestPool(t)
	s, err := scheduler.New(global, 1, 2, 4, 4)
	require.NoError(t, err)

	provider, err := tracing.New(tracing.Config{Enabled: true, ServiceName: "test", SampleRatio: 1.0})
	require.NoError(t, err)
	s.SetTracer(provider)
	s.Start()
	defer s.Stop()

	var sawValidSpan int32
	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		if ctx.Span.IsValid() {
			atomic.AddInt32(&sawValidSpan, 1)
		}
		buf.Release()
		return runtime.Ok, nil
	}))
	require.NoError(t, pipeline.Setup(s))
	require.NoError(t, pipeline.Start())

	buf, err := global.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, s.EnqueueData(pipeline, buf))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sawValidSpan) == 1
	}, time.Second, time.Millisecond)
}
