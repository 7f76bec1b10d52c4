package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/runtime"
)

func TestManagerRegisterStartDestroy(t *testing.T) {
	enq := &syncEnqueuer{}
	mgr := runtime.NewManager(enq, testPool)

	pipeline := runtime.NewPipeline("p", runtime.StageFunc(func(buf buffer.Buffer, ctx *runtime.PipelineExecutionContext) (runtime.StageStatus, error) {
		buf.Release()
		return runtime.Ok, nil
	}))
	src := runtime.NewSourceHandle("src", &finiteSource{n: 1, pool: testPool}, pipeline)

	id, err := mgr.RegisterQuery(runtime.PlanSpec{
		Sources:   []*runtime.SourceHandle{src},
		Pipelines: []*runtime.Pipeline{pipeline},
	})
	require.NoError(t, err)

	status, err := mgr.QueryStatus(id)
	require.NoError(t, err)
	assert.Equal(t, runtime.QEPCreated, status.State)

	fut, err := mgr.StartQuery(context.Background(), id)
	require.NoError(t, err)

	res := waitFuture(t, fut)
	assert.Equal(t, runtime.QEPFinished, res.Status)

	require.NoError(t, mgr.DestroyQuery(id))
	_, err = mgr.QueryStatus(id)
	assert.ErrorIs(t, err, runtime.ErrQueryNotFound)
}

func TestManagerUnknownQueryID(t *testing.T) {
	mgr := runtime.NewManager(&syncEnqueuer{}, testPool)
	_, err := mgr.QueryStatus("nope")
	assert.ErrorIs(t, err, runtime.ErrQueryNotFound)

	err = mgr.StopQuery("nope", runtime.Graceful)
	assert.ErrorIs(t, err, runtime.ErrQueryNotFound)

	err = mgr.DestroyQuery("nope")
	assert.ErrorIs(t, err, runtime.ErrQueryNotFound)
}
