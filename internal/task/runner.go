package task

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// Runner executes fire-and-forget side effects (webhook fan-out,
// activity writes) off the request path. Panics and errors are
// contained and logged; they never reach the caller.
type Runner struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{timeout: timeout}
}

// Go runs fn on its own goroutine with a bounded context. The caller
// is never blocked and never observes fn's failure.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("task %s panicked: %v\n%s", name, rec, debug.Stack())
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("task %s failed: %v", name, err)
		}
	}()
}

// Wait blocks until all dispatched tasks finish. Used on shutdown and
// in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}
