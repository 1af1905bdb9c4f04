// Package concurrency implements the concurrency harness (spec §2 C11,
// §4.9, §5): a single-threaded cooperative runtime for orchestration and
// script-host suspension points, paired with a bounded worker pool for
// CPU-bound hashing/decompression/manifest-parsing work. Cancellation of
// the cooperative runtime does not cancel in-flight pool work (spec §5
// "Cancellation & timeout").
//
// Grounded on cmd/distri/install.go's errgroup.WithContext fan-out for
// fetch/unpack, generalised into a reusable bounded pool, and on
// internal/oninterrupt for signal-driven cancellation of the cooperative
// side only.
package concurrency

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool runs CPU-bound jobs with bounded parallelism. It is the "(a)
// work-stealing thread pool" half of spec §4.9's scheduling model; a real
// work-stealing scheduler is runtime-internal to Go's goroutine scheduler,
// so Pool only needs to bound concurrency, not implement stealing itself.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a Pool sized to n, or runtime.NumCPU() if n <= 0 (spec
// §5: "parallel worker pool sized to CPU count").
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, n)}
}

// Submit runs fn on the pool, blocking until a slot is free. Submit itself
// does not observe ctx cancellation once fn has started — a submitted job
// runs to completion even if the caller's context is later cancelled,
// matching spec §5's "synchronous background tasks on the pool are not
// cancelled" guarantee. ctx is only consulted before fn starts, so a
// cancelled context still prevents new work from beginning.
func (p *Pool) Submit(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}

// Runtime is the cooperative single-threaded orchestrator: the script host
// and the reconciliation engine's phase sequencing run here, offloading
// CPU-heavy work to a Pool and joining background fetches/hashes through
// an errgroup (spec §4.9, §5 "Suspension points").
type Runtime struct {
	Pool *Pool
}

// NewRuntime builds a Runtime with a Pool sized to poolSize (0 = NumCPU).
func NewRuntime(poolSize int) *Runtime {
	return &Runtime{Pool: NewPool(poolSize)}
}

// Group returns an errgroup bound to ctx, the unit of "joining futures"
// spec §5 names as a suspension point: callers Go() suspension-worthy work
// (a child process, a host filesystem read, an archive decode) and Wait()
// at the next await point the script host exposes.
func (r *Runtime) Group(ctx context.Context) (*errgroup.Group, context.Context) {
	return errgroup.WithContext(ctx)
}

// RunOffloaded runs fn on the pool as part of group g, returning control to
// the cooperative runtime immediately; g.Wait() is the suspension point.
func (r *Runtime) RunOffloaded(ctx context.Context, g *errgroup.Group, fn func() error) {
	g.Go(func() error {
		return r.Pool.Submit(ctx, fn)
	})
}
