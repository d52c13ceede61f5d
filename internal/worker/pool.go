// Package worker runs background tasks on a bounded goroutine pool.
package worker

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// Pool runs submitted tasks on at most N goroutines. Submission never blocks;
// excess tasks wait in the pool's queue. A panicking task is logged and
// isolated.
type Pool struct {
	pool    pond.Pool
	log     *zap.Logger
	wg      sync.WaitGroup
	stopped atomic.Bool
	panics  atomic.Int64
}

// NewPool creates a pool with the given concurrency.
func NewPool(workers int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		pool: pond.NewPool(workers),
		log:  log,
	}
}

// Go submits fn. It returns false once the pool is stopped.
func (p *Pool) Go(name string, fn func()) bool {
	if p.stopped.Load() {
		return false
	}
	p.wg.Add(1)
	p.pool.Submit(func() {
		defer p.wg.Done()
		defer p.recover(name)
		fn()
	})
	return true
}

// TrySubmit submits fn only if g has a free slot. The slot is held until fn
// returns.
func (p *Pool) TrySubmit(g *Gate, name string, fn func()) bool {
	if !g.TryAcquire() {
		return false
	}
	ok := p.Go(name, func() {
		defer g.Release()
		fn()
	})
	if !ok {
		g.Release()
	}
	return ok
}

func (p *Pool) recover(name string) {
	if r := recover(); r != nil {
		p.panics.Add(1)
		p.log.Error("worker task panicked",
			zap.String("task", name),
			zap.Error(fmt.Errorf("panic: %v", r)),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}

// Panics returns how many tasks have panicked.
func (p *Pool) Panics() int64 {
	return p.panics.Load()
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop rejects further submissions, waits for queued tasks and releases the
// pool's goroutines.
func (p *Pool) Stop() {
	if p.stopped.Swap(true) {
		return
	}
	p.wg.Wait()
	p.pool.StopAndWait()
}
