package executor

import (
	"runtime"

	"github.com/wehubfusion/kage/pkg/concurrency"
)

// WorkerPoolConfig configures the pool used by the parallel strategy
type WorkerPoolConfig struct {
	// NumWorkers is the number of concurrent workers. If 0, it is taken
	// from the limiter's capacity or defaults to runtime.NumCPU().
	NumWorkers int

	// BufferSize is the job and result channel buffer size.
	// Default: 64
	BufferSize int

	// UseLimiter makes workers hold a limiter slot while a binding runs.
	// Default: true
	UseLimiter bool
}

// DefaultWorkerPoolConfig returns sensible defaults for the worker pool
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		NumWorkers: 0,
		BufferSize: 64,
		UseLimiter: true,
	}
}

// FromConcurrencyConfig sizes the pool from environment-derived settings
func FromConcurrencyConfig(c *concurrency.Config) WorkerPoolConfig {
	cfg := DefaultWorkerPoolConfig()
	if c != nil {
		cfg.NumWorkers = c.MaxWorkers
	}
	return cfg
}

// Validate applies defaults to unset fields
func (c *WorkerPoolConfig) Validate() {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
}

// workers resolves the effective worker count
func (c WorkerPoolConfig) workers(limiter *concurrency.Limiter) int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	if limiter != nil {
		return limiter.Capacity()
	}
	return runtime.NumCPU()
}

// WithNumWorkers sets the number of workers
func (c WorkerPoolConfig) WithNumWorkers(n int) WorkerPoolConfig {
	c.NumWorkers = n
	return c
}

// WithBufferSize sets the buffer size
func (c WorkerPoolConfig) WithBufferSize(n int) WorkerPoolConfig {
	c.BufferSize = n
	return c
}

// WithLimiter sets whether to use the limiter
func (c WorkerPoolConfig) WithLimiter(use bool) WorkerPoolConfig {
	c.UseLimiter = use
	return c
}
