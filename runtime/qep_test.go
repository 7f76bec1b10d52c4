package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/runtime"
)

// finiteSource emits n buffers from pool then returns, driving the
// ordinary graceful-completion path through Source.Open.
type finiteSource struct {
	n    int
	pool *buffer.Pool
}

func (s *finiteSource) Open(ctx context.Context, emit func(buffer.Buffer) error) error {
	for i := 0; i < s.n; i++ {
		buf, err := s.pool.TryAcquire()
		if err != nil {
			return err
		}
		if err := emit(buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *finiteSource) Close(t runtime.TerminationType) error { return nil }

func waitFuture(t *testing.T, fut <-chan runtime.Result) runtime.Result {
	t.Helper()
	select {
	case r := <-fut:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("QEP termination future never resolved")
		return runtime.Result{}
	}
}

func TestQEPFullLifecycleGracefulCompletion(t *testing.T) {
	var executed int
	pipeline := runtime.NewPipeline("p", passthroughStage(&executed))
	sink := runtime.NewSinkHandle("sink", &recordingSink{})
	pipeline.AddSink(sink)

	src := runtime.NewSourceHandle("src", &finiteSource{n: 3, pool: testPool}, pipeline)

	qep := runtime.NewQEP("q", []*runtime.SourceHandle{src}, []*runtime.Pipeline{pipeline}, []*runtime.SinkHandle{sink})
	enq := &syncEnqueuer{}
	require.NoError(t, qep.Setup(enq, testPool))
	require.NoError(t, qep.Start(context.Background()))

	res := waitFuture(t, qep.Future())
	assert.Equal(t, runtime.QEPFinished, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, executed)

	assert.Equal(t, runtime.QEPFinished, qep.QueryStatus().State)
	require.NoError(t, qep.Destroy())
}

func TestQEPDestroyRejectsOutstandingTokens(t *testing.T) {
	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		buf.Release()
		return runtime.Ok, nil
	}))
	qep := runtime.NewQEP("q2", nil, []*runtime.Pipeline{pipeline}, nil)
	require.Error(t, qep.Destroy())
}

func TestQEPFutureFulfilledExactlyOnce(t *testing.T) {
	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		buf.Release()
		return runtime.Ok, nil
	}))
	qep := runtime.NewQEP("q3", nil, []*runtime.Pipeline{pipeline}, nil)
	enq := &syncEnqueuer{}
	require.NoError(t, qep.Setup(enq, testPool))
	require.NoError(t, qep.Start(context.Background()))

	require.NoError(t, qep.Stop(runtime.Hard))

	res := waitFuture(t, qep.Future())
	assert.Equal(t, runtime.QEPStopped, res.Status)

	// A second read must not block forever or panic: the channel was
	// closed after its one send.
	_, ok := <-qep.Future()
	assert.False(t, ok)
}
