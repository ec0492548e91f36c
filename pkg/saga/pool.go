package saga

import (
	"context"
	"sync"
	"sync/atomic"
)

// WorkerPool runs blocking step functions on a fixed set of goroutines so that
// long synchronous calls do not pile up one goroutine per saga.
type WorkerPool struct {
	maxWorkers int
	jobs       chan func()

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	processed atomic.Int64
}

// NewWorkerPool creates a pool with maxWorkers goroutines. Values below one become one.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		jobs:       make(chan func()),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *WorkerPool) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop stops accepting jobs and waits for running ones to return.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.running.Store(false)
		close(p.stopCh)
		p.wg.Wait()
	})
}

// Submit hands fn to a worker, blocking until one is free.
// It returns false when the pool is not running or ctx ends first.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) bool {
	if !p.running.Load() {
		return false
	}
	select {
	case p.jobs <- fn:
		return true
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Processed returns the number of jobs run so far.
func (p *WorkerPool) Processed() int64 {
	return p.processed.Load()
}

// IsRunning reports whether the pool accepts jobs.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.jobs:
			fn()
			p.processed.Add(1)
		case <-p.stopCh:
			return
		}
	}
}
