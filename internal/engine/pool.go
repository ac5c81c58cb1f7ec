package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolShutdown is returned when a lead is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// WorkerPool bounds how many leads a batch processes concurrently. Each
// submitted unit is one lead's full step sequence; the semaphore provides
// backpressure when the batch is larger than the pool. Lead work reports its
// outcome through the RunResult it writes, so submissions carry no error
// channel of their own.
type WorkerPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	done   chan struct{}
	closed bool

	processed atomic.Int64
	panics    atomic.Int64
}

// NewWorkerPool creates a pool with the given max concurrency.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
}

// Submit enqueues one lead's work. It blocks while the pool is at capacity
// and respects context cancellation while waiting. Returns ErrPoolShutdown
// after Shutdown.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// Re-check closed after acquiring the slot, in case Shutdown raced.
	// wg.Add must happen under the lock so Shutdown's wg.Wait cannot miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			// Step-level panics are already converted to fail results
			// before they reach here; this recover is the last resort for
			// faults in the per-lead bookkeeping itself.
			if r := recover(); r != nil {
				p.panics.Add(1)
			}
			p.processed.Add(1)
			<-p.sem
			p.wg.Done()
		}()
		fn(ctx)
	}()

	return nil
}

// Wait blocks until all submitted work completes.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown prevents new submissions and waits for in-flight leads to finish.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Processed reports how many leads finished, panicked ones included.
func (p *WorkerPool) Processed() int64 {
	return p.processed.Load()
}

// Panics reports how many lead submissions ended in an uncontained panic.
func (p *WorkerPool) Panics() int64 {
	return p.panics.Load()
}
