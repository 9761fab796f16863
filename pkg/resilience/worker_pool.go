package resilience

import (
	"context"
	"errors"
	"sync"
)

var ErrWorkerPoolClosed = errors.New("worker pool is closed")

// WorkerPool runs submitted jobs on a fixed set of goroutines. Submit blocks
// while the queue is full, which bounds how far producers can run ahead.
// With a single worker, jobs run in submission order.
type WorkerPool struct {
	jobs chan func()

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	workers = max(workers, 1)
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &WorkerPool{jobs: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	if job == nil {
		return nil
	}

	// Hold the read lock across the send so Close cannot close the channel
	// under a blocked sender.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Close stops accepting jobs. Queued jobs still run.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
}

// Wait blocks until every worker has exited. Call Close first.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Group tracks a batch of error-returning jobs on a pool. The first failure
// cancels the group context; jobs that have not started by then are skipped.
type Group struct {
	pool   *WorkerPool
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewGroup binds a group to p. The returned context is canceled on the first
// job failure or when Wait returns.
func (p *WorkerPool) NewGroup(ctx context.Context) (*Group, context.Context) {
	gctx, cancel := context.WithCancelCause(ctx)
	return &Group{pool: p, ctx: gctx, cancel: cancel}, gctx
}

// Go queues fn. If the job cannot be queued the group fails with that error.
func (g *Group) Go(fn func(context.Context) error) error {
	if g.ctx.Err() != nil {
		return g.Err()
	}

	g.wg.Add(1)
	err := g.pool.Submit(g.ctx, func() {
		defer g.wg.Done()
		if g.ctx.Err() != nil {
			return
		}
		if err := fn(g.ctx); err != nil {
			g.fail(err)
		}
	})
	if err != nil {
		g.wg.Done()
		g.fail(err)
		return g.Err()
	}
	return nil
}

// Abort fails the group with err unless it already failed.
func (g *Group) Abort(err error) {
	g.fail(err)
}

func (g *Group) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = err
		g.cancel(err)
	}
}

// Err returns the first failure recorded so far, or the parent context error.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	return g.ctx.Err()
}

// Wait blocks until every queued job finished and returns the first failure.
func (g *Group) Wait() error {
	g.wg.Wait()
	err := g.Err()
	g.cancel(nil)
	return err
}
