package worker

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrWorkerPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull        = errors.New("worker pool queue is full")
)

// Job represents a task to be executed by a worker.
type Job func()

// WorkerPool is a fixed-size pool of goroutines for work that must not run on
// the caller's goroutine, such as shipping log entries to external sinks.
type WorkerPool struct {
	jobs    chan Job
	stop    chan struct{}
	workers int
	wg      sync.WaitGroup
	mu      sync.RWMutex
	once    sync.Once
	closed  bool
}

// NewWorkerPool creates a new WorkerPool with a given number of workers and job queue size.
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	if workers <= 0 {
		panic("number of workers must be positive")
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		jobs:    make(chan Job, queueSize),
		stop:    make(chan struct{}),
		workers: workers,
	}
}

// Start initializes the workers in the pool.
func (p *WorkerPool) Start() {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.run()
	}
}

// Stop stops accepting jobs, lets workers drain what is already queued and
// waits for them until ctx is done.
func (p *WorkerPool) Stop(ctx context.Context) {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.stop)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// run is the worker's execution loop.
func (p *WorkerPool) run() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			p.execute(job)
		case <-p.stop:
			// Drain queued jobs before exiting
			for {
				select {
				case job := <-p.jobs:
					p.execute(job)
				default:
					return
				}
			}
		}
	}
}

// execute runs a job; a panicking job does not take the worker down
func (p *WorkerPool) execute(job Job) {
	defer func() {
		_ = recover()
	}()
	job()
}

// Submit sends a job to the worker pool, blocking while the queue is full.
// It returns ErrWorkerPoolClosed if the pool is closed.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.stop:
		return ErrWorkerPoolClosed
	}
}

// TrySubmit enqueues job without blocking. It returns ErrQueueFull when no
// slot is free.
func (p *WorkerPool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}
