package engine

import "sync"

// WorkerPool runs batch evaluation tasks on a fixed set of goroutines.
type WorkerPool struct {
	workers int
	tasks   chan func()
	stop    sync.Once
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}

	pool := &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), workers*8),
	}
	for i := 0; i < workers; i++ {
		go pool.run()
	}

	return pool
}

func (p *WorkerPool) run() {
	for task := range p.tasks {
		task()
	}
}

// Submit queues a task, blocking while the queue is full.
func (p *WorkerPool) Submit(task func()) {
	p.tasks <- task
}

// Stop shuts the pool down. Tasks already queued still run; submitting
// after Stop panics.
func (p *WorkerPool) Stop() {
	p.stop.Do(func() {
		close(p.tasks)
	})
}

// Workers returns the pool size.
func (p *WorkerPool) Workers() int {
	return p.workers
}
