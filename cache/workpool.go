// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package cache

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// debugInfoParallelism bounds the number of concurrent debuginfo
// indexing tasks a single AddToStore call will enqueue.
const debugInfoParallelism = 25

// workPool is a bounded worker pool: Enqueue submits a task that runs
// once a slot is free, Wait blocks until every submitted task has
// finished and returns the first error encountered. Built from
// [errgroup.Group]'s own concurrency limiter. A separate
// [semaphore.Weighted] of the same size backs TryReserve and Release;
// its slots are counted independently of the errgroup limiter, so tasks
// started by Enqueue do not hold them and a reservation does not hold
// back Enqueue.
type workPool struct {
	grp  *errgroup.Group
	ctx  context.Context
	sem  *semaphore.Weighted
}

// newWorkPool returns a pool with the given parallelism, derived from
// ctx. Cancelling ctx (or any enqueued task returning an error)
// cancels the context observed by every other task via grp's context
// propagation.
func newWorkPool(ctx context.Context, parallelism int) *workPool {
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(parallelism)
	return &workPool{
		grp: grp,
		ctx: grpCtx,
		sem: semaphore.NewWeighted(int64(parallelism)),
	}
}

// Enqueue submits task to run on the pool. If parallelism tasks are
// already running, Enqueue blocks until one of them returns.
func (p *workPool) Enqueue(task func(ctx context.Context) error) {
	p.grp.Go(func() error {
		return task(p.ctx)
	})
}

// TryReserve attempts to reserve one of the pool's reservation slots
// without blocking. It reports whether a slot was reserved; the caller
// must call Release exactly once if it was. Reservation slots are
// separate from the slots used by Enqueue: running tasks do not occupy
// them, so a successful TryReserve does not mean the pool is idle.
func (p *workPool) TryReserve() bool {
	return p.sem.TryAcquire(1)
}

// Release gives back a slot reserved by TryReserve.
func (p *workPool) Release() {
	p.sem.Release(1)
}

// Wait blocks until every enqueued task has completed, returning the
// first non-nil error any of them returned.
func (p *workPool) Wait() error {
	return p.grp.Wait()
}
