// Package oninterrupt turns SIGINT into cooperative-runtime cancellation
// (see the concurrency harness, C11): the reconciliation engine must
// propagate cancellation through the cooperative runtime on signal without
// tearing down in-flight worker-pool tasks (§5, "Cancellation & timeout").
package oninterrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

var (
	mu       sync.Mutex
	handlers []func()
)

// WithCancel returns a context that is cancelled when SIGINT arrives, along
// with the exit code callers should use (130, the POSIX convention for
// SIGINT) once every registered handler has run and the context's
// cancellation has drained through the pipeline.
func WithCancel(parent context.Context) (ctx context.Context, exitCode func() int) {
	ctx, cancel := context.WithCancel(parent)
	code := 0
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		signal.Stop(c)
		code = 130
		mu.Lock()
		for _, f := range handlers {
			f()
		}
		mu.Unlock()
		cancel()
	}()
	return ctx, func() int { return code }
}

// Register adds a cleanup callback invoked once, synchronously, when SIGINT
// is received and before the context installed by WithCancel is cancelled.
func Register(cb func()) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, cb)
}
