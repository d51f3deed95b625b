package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"issuemigrate/internal/checkpoint"
	"issuemigrate/internal/metrics"
	"issuemigrate/internal/storage"
	"issuemigrate/internal/tracker"

	"go.uber.org/zap"
)

// Pool manages a pool of batch workers. Workers checkpoint independent
// batches concurrently; the checkpoint manager serializes its own indices.
type Pool struct {
	size       int
	config     Config
	target     tracker.Target
	checkpoint *checkpoint.Manager
	archive    storage.Archive
	metrics    *metrics.Collector
	logger     *zap.Logger
	abort      context.CancelFunc

	migrated atomic.Int64
	failed   atomic.Int64
	skipped  atomic.Int64
}

// NewPool creates a new worker pool. The abort function is invoked when a
// recovery plan demands the migration stop; archive may be nil.
func NewPool(
	size int,
	config Config,
	target tracker.Target,
	checkpointManager *checkpoint.Manager,
	archive storage.Archive,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
	abort context.CancelFunc,
) *Pool {
	return &Pool{
		size:       size,
		config:     config,
		target:     target,
		checkpoint: checkpointManager,
		archive:    archive,
		metrics:    metricsCollector,
		logger:     logger,
		abort:      abort,
	}
}

// Start starts the worker pool
func (p *Pool) Start(ctx context.Context, tasks <-chan Task, wg *sync.WaitGroup) {
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go p.worker(ctx, i, tasks, wg)
	}
}

// Totals returns the migrated, failed, and skipped entity counts so far
func (p *Pool) Totals() (migrated, failed, skipped int64) {
	return p.migrated.Load(), p.failed.Load(), p.skipped.Load()
}

func (p *Pool) worker(ctx context.Context, id int, tasks <-chan Task, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Info("Worker started")

	processor := &BatchProcessor{
		config:     p.config,
		target:     p.target,
		checkpoint: p.checkpoint,
		archive:    p.archive,
		metrics:    p.metrics,
		logger:     logger,
		pool:       p,
	}

	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				logger.Info("Worker finished - no more tasks")
				return
			}

			processor.Process(ctx, task)

		case <-ctx.Done():
			logger.Info("Worker stopped - context cancelled")
			return
		}
	}
}
