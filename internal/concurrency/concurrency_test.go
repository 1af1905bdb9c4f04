package concurrency

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var inflight, max int32
	g, ctx := NewRuntime(0).Group(context.Background())
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return p.Submit(ctx, func() error {
				n := atomic.AddInt32(&inflight, 1)
				for {
					old := atomic.LoadInt32(&max)
					if n <= old || atomic.CompareAndSwapInt32(&max, old, n) {
						break
					}
				}
				atomic.AddInt32(&inflight, -1)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if max > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", max)
	}
}

func TestPoolSubmitRunsToCompletionDespiteCancellation(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- p.Submit(ctx, func() error {
			close(started)
			<-done
			return nil
		})
	}()
	<-started
	cancel()
	close(done)
	if err := <-finished; err != nil {
		t.Fatalf("expected the started job to run to completion after cancellation, got %v", err)
	}
}

func TestNewPoolDefaultsToNumCPU(t *testing.T) {
	p := NewPool(0)
	if cap(p.sem) <= 0 {
		t.Fatalf("expected a positive default pool size, got %d", cap(p.sem))
	}
}
