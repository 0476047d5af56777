// Package pool provides a fixed-size worker pool. Peak concurrency is
// bounded by the pool size regardless of how many tasks are submitted;
// excess tasks queue on the semaphore until a slot frees.
package pool

import (
	"context"
	"sync"
)

type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit runs task once a worker slot is free. If ctx is cancelled
// before a slot opens, the task is dropped.
func (p *WorkerPool) Submit(ctx context.Context, task func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			task(ctx)
		case <-ctx.Done():
		}
	}()
}

// Wait blocks until every submitted task has finished or been dropped.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
