// Package scheduler implements the fixed worker-thread pool (C5): a
// multi-producer multi-consumer task queue, per-worker WorkerContext
// carrying a local buffer pool, and a higher-priority reconfiguration
// queue so control messages reach a pipeline after its data but before
// any new data on the same logical channel (spec §4.5).
package scheduler

import "errors"

// ErrShutdown is returned by Enqueue* once the scheduler has been
// stopped.
var ErrShutdown = errors.New("scheduler: shut down")

// ErrQueueFull is returned when a task queue is at capacity; callers
// apply backpressure rather than retrying indefinitely inline.
var ErrQueueFull = errors.New("scheduler: task queue full")
