package dispatch

import (
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// keyedRunner serializes work submitted under the same key: at most one
// pool worker drains a given key's
// queue at a time, so two tasks for the same key can never run
// concurrently on different workers. Distinct keys still run in
// parallel up to the pool's own concurrency cap. This is what keeps
// same-property notifications in arrival order for a given callback
// while the drain loop keeps pulling the next queued event.
type keyedRunner struct {
	pool *pool.Pool

	mu   sync.Mutex
	runs map[string]*keyedRun
}

type keyedRun struct {
	pending []func()
	running bool
}

func newKeyedRunner(p *pool.Pool) *keyedRunner {
	return &keyedRunner{pool: p, runs: make(map[string]*keyedRun)}
}

// submit enqueues fn under key. If no worker is currently draining key,
// one is scheduled on the pool; otherwise fn joins the existing queue
// and runs after everything already queued for key. Scheduling a new
// drain worker blocks while the pool is at its goroutine limit; joining
// an existing queue does not block.
func (k *keyedRunner) submit(key string, fn func()) {
	k.mu.Lock()
	run, ok := k.runs[key]
	if !ok {
		run = &keyedRun{}
		k.runs[key] = run
	}
	run.pending = append(run.pending, fn)
	start := !run.running
	run.running = true
	k.mu.Unlock()

	if start {
		k.pool.Go(func() { k.drain(key) })
	}
}

func (k *keyedRunner) drain(key string) {
	for {
		k.mu.Lock()
		run := k.runs[key]
		if len(run.pending) == 0 {
			run.running = false
			delete(k.runs, key)
			k.mu.Unlock()
			return
		}
		fn := run.pending[0]
		run.pending = run.pending[1:]
		k.mu.Unlock()

		fn()
	}
}
