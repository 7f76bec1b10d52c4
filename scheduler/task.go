package scheduler

import (
	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/runtime"
)

// taskKind distinguishes a data task from a reconfiguration task (spec
// §3 "Reconfiguration Message"; §4.5 "Tasks are (pipeline, buffer)
// pairs or reconfiguration messages").
type taskKind int

const (
	taskData taskKind = iota
	taskReconfig
)

// task is the scheduler's queue element. Reconfiguration tasks are
// carried on a separate, higher-priority queue (see Scheduler), so
// taskKind here only distinguishes how a dequeued task is run — not
// which queue it came from.
type task struct {
	kind     taskKind
	pipeline *runtime.Pipeline
	buf      buffer.Buffer
	reconfig runtime.ReconfigurationMessage
}
