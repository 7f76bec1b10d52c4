// Package config loads the worker runtime's environment settings: worker
// pool sizing, the global buffer manager, and watermark cadence (spec §6
// "Environment & config") — consumed by scheduler.New and buffer.NewPool
// at process start, not defined by either package itself.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerPoolConfig sizes the fixed scheduler goroutine pool (C5).
type WorkerPoolConfig struct {
	NumWorkers            int `yaml:"num_workers"`
	ReservedBuffersPerWorker int `yaml:"reserved_buffers_per_worker"`
	DataQueueCapacity     int `yaml:"data_queue_capacity"`
	ReconfigQueueCapacity int `yaml:"reconfig_queue_capacity"`
}

// BufferManagerConfig sizes the global tuple buffer pool (C1) and the
// page granularity child allocations (hash map pages, var-sized arenas)
// are carved from.
type BufferManagerConfig struct {
	BufferSize uint32 `yaml:"buffer_size"`
	NumBuffers uint32 `yaml:"num_buffers"`
	PageSize   uint32 `yaml:"page_size"`
}

// WatermarkConfig controls how often the watermark processor (C3) is
// asked to recompute and propagate the global watermark.
type WatermarkConfig struct {
	AdvanceInterval time.Duration `yaml:"advance_interval"`
}

// Config is the top-level worker configuration.
type Config struct {
	WorkerPool    WorkerPoolConfig    `yaml:"worker_pool"`
	BufferManager BufferManagerConfig `yaml:"buffer_manager"`
	Watermark     WatermarkConfig     `yaml:"watermark"`
}

// DefaultConfig returns a Config with the defaults a single-node worker
// runs with out of the box.
func DefaultConfig() *Config {
	return &Config{
		WorkerPool: WorkerPoolConfig{
			NumWorkers:               4,
			ReservedBuffersPerWorker: 8,
			DataQueueCapacity:        1024,
			ReconfigQueueCapacity:    64,
		},
		BufferManager: BufferManagerConfig{
			BufferSize: 4096,
			NumBuffers: 1024,
			PageSize:   4096,
		},
		Watermark: WatermarkConfig{
			AdvanceInterval: 100 * time.Millisecond,
		},
	}
}

// LoadFromFile reads a YAML config file and overlays it onto
// DefaultConfig, so a file only needs to set the fields it wants to
// override.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies STREAMCORE_* environment variable overrides to cfg,
// in place, matching the precedence file-then-env order callers are
// expected to use: DefaultConfig, then LoadFromFile, then LoadFromEnv.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STREAMCORE_WORKER_POOL_NUM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPool.NumWorkers = n
		}
	}
	if v := os.Getenv("STREAMCORE_WORKER_POOL_RESERVED_BUFFERS_PER_WORKER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPool.ReservedBuffersPerWorker = n
		}
	}
	if v := os.Getenv("STREAMCORE_WORKER_POOL_DATA_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPool.DataQueueCapacity = n
		}
	}
	if v := os.Getenv("STREAMCORE_WORKER_POOL_RECONFIG_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPool.ReconfigQueueCapacity = n
		}
	}
	if v := os.Getenv("STREAMCORE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.BufferManager.BufferSize = uint32(n)
		}
	}
	if v := os.Getenv("STREAMCORE_NUM_BUFFERS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.BufferManager.NumBuffers = uint32(n)
		}
	}
	if v := os.Getenv("STREAMCORE_PAGE_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.BufferManager.PageSize = uint32(n)
		}
	}
	if v := os.Getenv("STREAMCORE_WATERMARK_ADVANCE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watermark.AdvanceInterval = d
		}
	}
}
