package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wehubfusion/kage/pkg/concurrency"
	kerrors "github.com/wehubfusion/kage/pkg/errors"
	"github.com/wehubfusion/kage/pkg/graph"
)

// outcome is the result of one binding invocation
type outcome struct {
	node    *graph.Node
	result  interface{}
	failure *kerrors.BindingFailure
}

// nodeProcessor invokes a single binding
type nodeProcessor func(ctx context.Context, n *graph.Node) (interface{}, *kerrors.BindingFailure)

type workerJob struct {
	node *graph.Node
	ctx  context.Context
}

// WorkerPool runs bindings on a fixed number of goroutines. Workers hold a
// limiter slot while a binding runs when the pool is configured to.
type WorkerPool struct {
	config     WorkerPoolConfig
	limiter    *concurrency.Limiter
	jobChan    chan workerJob
	resultChan chan outcome
	wg         sync.WaitGroup
	process    nodeProcessor
	logger     *zap.Logger

	processed atomic.Int64
	errors    atomic.Int64
}

func newWorkerPool(config WorkerPoolConfig, process nodeProcessor, limiter *concurrency.Limiter, logger *zap.Logger) *WorkerPool {
	config.Validate()
	config.NumWorkers = config.workers(limiter)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		config:     config,
		limiter:    limiter,
		jobChan:    make(chan workerJob, config.BufferSize),
		resultChan: make(chan outcome, config.BufferSize),
		process:    process,
		logger:     logger,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.Debug("Starting worker pool",
		zap.Int("workers", wp.config.NumWorkers),
		zap.Int("bufferSize", wp.config.BufferSize))

	for i := 0; i < wp.config.NumWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// worker drains the job channel until it is closed. Jobs carry their own
// context so a cancelled run still reports every submitted node.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for job := range wp.jobChan {
		wp.processJob(job, id)
	}
	wp.logger.Debug("Worker stopped", zap.Int("workerID", id))
}

func (wp *WorkerPool) processJob(job workerJob, workerID int) {
	if wp.config.UseLimiter && wp.limiter != nil {
		if err := wp.limiter.Acquire(job.ctx); err != nil {
			wp.errors.Add(1)
			wp.resultChan <- outcome{
				node:    job.node,
				failure: &kerrors.BindingFailure{Binding: job.node.Binding.Name, Err: err},
			}
			return
		}
		defer wp.limiter.Release()
	}

	wp.logger.Debug("Worker picked up binding",
		zap.Int("workerID", workerID),
		zap.String("binding", job.node.Binding.Name))

	result, failure := wp.process(job.ctx, job.node)
	if failure != nil {
		wp.errors.Add(1)
	} else {
		wp.processed.Add(1)
	}
	wp.resultChan <- outcome{node: job.node, result: result, failure: failure}
}

// RunLevel submits every node of a level and blocks until all of them have
// reported. This is the barrier between levels.
func (wp *WorkerPool) RunLevel(ctx context.Context, level []*graph.Node) []outcome {
	go func() {
		for _, n := range level {
			wp.jobChan <- workerJob{node: n, ctx: ctx}
		}
	}()

	out := make([]outcome, 0, len(level))
	for len(out) < len(level) {
		out = append(out, <-wp.resultChan)
	}
	return out
}

// Close stops the workers and waits for them to exit
func (wp *WorkerPool) Close() {
	close(wp.jobChan)
	wp.wg.Wait()
	close(wp.resultChan)
}

// Stats returns the current processing statistics
func (wp *WorkerPool) Stats() (processed, errors int64) {
	return wp.processed.Load(), wp.errors.Load()
}

// Config returns the worker pool configuration
func (wp *WorkerPool) Config() WorkerPoolConfig {
	return wp.config
}
