// Package scheduler provides the bounded worker pool used by the
// per-subcloud audit dispatch. It is the systems-language expression of
// the source's greenthread pools (see SPEC_FULL.md §9): a fixed-width
// semaphore gates concurrency, RunAll joins the failures of all items,
// and Close makes later Go calls fail without stopping tasks already
// running.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent execution of arbitrary tasks to a fixed width.
// It is safe for concurrent use by multiple callers submitting tasks.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Pool that runs at most width tasks concurrently. width
// must be >= 1.
func New(width int) *Pool {
	if width < 1 {
		width = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(width))}
}

// Go submits fn to run on the pool, blocking until a slot is free or ctx
// is done. It returns ctx.Err() without running fn if the context is
// cancelled before a slot becomes available, and context.Canceled if the
// pool is closed.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return context.Canceled
	}
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		fn(ctx)
	}()
	return nil
}

// Wait blocks until every task submitted via Go has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close marks the pool closed; subsequent Go calls fail fast. It does not
// wait for in-flight tasks — call Wait for that.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// RunAll runs fn once per item concurrently, bounded by the pool's
// width, and waits for all of them to finish. Unlike an errgroup, a
// failing item does not cancel the others: per-subcloud audit and step
// dispatch must keep going even when one subcloud's task errors (§7,
// "orchestrator loops never die on exception"). Errors are joined and
// returned after every item has completed.
func RunAll[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, item := range items {
		item := item
		if err := p.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.sem.Release(1)
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
