// Package workerpool is the bounded goroutine pool the fan-out
// coordinator (internal/fanout) runs its per-peer GatherData tasks on.
// Unlike a generic task pool it carries no blocking-submit or
// try-submit variants and no self-reported Stats: the coordinator
// always has an overall deadline race of its own (a WaitGroup raced
// against context.WithTimeout) and every outcome that matters is
// already a Prometheus metric (internal/metrics), so duplicating that
// bookkeeping here would just be a second, unread copy of it.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one peer RPC to run on the pool.
type Task struct {
	ID string
	Fn func(context.Context) error
}

// Config holds worker pool sizing.
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// WorkerPool runs Tasks on a fixed number of goroutines pulling off a
// shared queue.
type WorkerPool struct {
	name       string
	maxWorkers int
	taskQueue  chan Task
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}
}

// NewWorkerPool creates and starts a pool per cfg.
func NewWorkerPool(cfg *Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pool := &WorkerPool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		taskQueue:  make(chan Task, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < pool.maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("worker pool started",
		zap.String("name", pool.name),
		zap.Int("max_workers", pool.maxWorkers),
		zap.Int("queue_size", cfg.QueueSize))

	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case task := <-p.taskQueue:
			p.executeTask(id, task)
		}
	}
}

func (p *WorkerPool) executeTask(workerID int, task Task) {
	start := time.Now()
	err := p.safeExecute(task)

	if err != nil {
		p.logger.Error("task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
}

// safeExecute recovers a panicking task and folds it into an error
// rather than crashing the worker goroutine.
func (p *WorkerPool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()

	return task.Fn(context.Background())
}

// Submit enqueues task, returning an error if the pool is stopped or
// its queue is full. Never blocks.
func (p *WorkerPool) Submit(task Task) error {
	select {
	case <-p.stopChan:
		return fmt.Errorf("worker pool %q is stopped", p.name)
	default:
	}

	select {
	case p.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("worker pool %q queue is full", p.name)
	}
}

// Stop signals every worker to exit and waits up to timeout for them
// to drain in-flight tasks.
func (p *WorkerPool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q stop timeout after %v", p.name, timeout)
		}
	})
	return err
}
