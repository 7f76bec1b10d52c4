package config

import "fmt"

// Validate checks that a loaded Config's values are usable by the
// scheduler and buffer manager constructors they feed, catching a bad
// file or env override before process start rather than inside
// scheduler.New/buffer.NewPool.
func (c *Config) Validate() error {
	if c.WorkerPool.NumWorkers <= 0 {
		return fmt.Errorf("config: worker_pool.num_workers must be > 0, got %d", c.WorkerPool.NumWorkers)
	}
	if c.WorkerPool.DataQueueCapacity <= 0 {
		return fmt.Errorf("config: worker_pool.data_queue_capacity must be > 0, got %d", c.WorkerPool.DataQueueCapacity)
	}
	if c.WorkerPool.ReconfigQueueCapacity <= 0 {
		return fmt.Errorf("config: worker_pool.reconfig_queue_capacity must be > 0, got %d", c.WorkerPool.ReconfigQueueCapacity)
	}
	if c.BufferManager.BufferSize == 0 {
		return fmt.Errorf("config: buffer_manager.buffer_size must be > 0")
	}
	if c.BufferManager.NumBuffers == 0 {
		return fmt.Errorf("config: buffer_manager.num_buffers must be > 0")
	}
	if int(c.BufferManager.NumBuffers) < c.WorkerPool.NumWorkers*c.WorkerPool.ReservedBuffersPerWorker {
		return fmt.Errorf("config: buffer_manager.num_buffers (%d) is smaller than worker_pool reservations (%d workers * %d)",
			c.BufferManager.NumBuffers, c.WorkerPool.NumWorkers, c.WorkerPool.ReservedBuffersPerWorker)
	}
	return nil
}
