package runtime_test

import (
	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/runtime"
)

// syncEnqueuer runs every enqueued data task and reconfiguration message
// synchronously and inline, standing in for the scheduler in tests that
// only care about runtime's own lifecycle logic (spec §4.5's actual
// worker pool is exercised separately in package scheduler).
type syncEnqueuer struct {
	dataCalls     []dataCall
	reconfigCalls []runtime.ReconfigurationMessage
}

type dataCall struct {
	pipeline *runtime.Pipeline
	buf      buffer.Buffer
}

func (e *syncEnqueuer) EnqueueData(p *runtime.Pipeline, buf buffer.Buffer) error {
	e.dataCalls = append(e.dataCalls, dataCall{pipeline: p, buf: buf})
	_, _ = p.Execute(buf, testPool)
	return nil
}

func (e *syncEnqueuer) EnqueueReconfig(msg runtime.ReconfigurationMessage) error {
	e.reconfigCalls = append(e.reconfigCalls, msg)
	msg.Dispatch()
	return nil
}

// testPool is shared by every test in this package: nothing here
// exercises buffer acquisition accounting, only pipeline/QEP wiring.
var testPool = newTestBufferPool()

func newTestBufferPool() *buffer.Pool {
	p, err := buffer.NewPool(256, 64)
	if err != nil {
		panic(err)
	}
	return p
}
