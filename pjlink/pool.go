package pjlink

import (
	"sync"
	"sync/atomic"
)

// Pool is the shared I/O worker: a single goroutine draining a queue of
// posted closures. Every Connection routes its state mutations through a
// Pool so that, per connection, callbacks never run concurrently with each
// other - the Go equivalent of a single-threaded reactor.
type Pool struct {
	jobs    chan func()
	done    chan struct{}
	running atomic.Bool

	mxStart sync.Mutex

	connections atomic.Int64
}

// NewPool constructs a Pool with the given job queue depth. A depth of 0
// makes post block until the worker goroutine is free, which is fine for
// tests but adds latency under load; production callers should size this
// to their expected command fan-out.
func NewPool(queueDepth int) *Pool {
	return &Pool{
		jobs: make(chan func(), queueDepth),
		done: make(chan struct{}),
	}
}

// Start spawns the worker goroutine. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mxStart.Lock()
	defer p.mxStart.Unlock()

	if p.running.Load() {
		return
	}
	p.running.Store(true)
	go p.run()
}

func (p *Pool) run() {
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.done:
			return
		}
	}
}

// Stop drains no further jobs and stops the worker goroutine. Jobs still
// queued when Stop is called are discarded.
func (p *Pool) Stop() {
	p.mxStart.Lock()
	defer p.mxStart.Unlock()

	if !p.running.Load() {
		return
	}
	close(p.done)
	p.running.Store(false)
}

// Running reports whether the worker goroutine is active.
func (p *Pool) Running() bool { return p.running.Load() }

// post enqueues job to run on the worker goroutine. It returns as soon as
// the job is queued, blocking while the queue is full. Safe to call from
// any goroutine; called from within a job, it deadlocks the worker if the
// queue is full.
func (p *Pool) post(job func()) error {
	if !p.running.Load() {
		return errClosedf("pool is not running")
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return errClosedf("pool is not running")
	}
}

// postSync runs job on the worker goroutine and blocks the caller until it
// completes. Must never be called from within a job running on the same
// Pool - that would deadlock the single worker goroutine against itself.
func (p *Pool) postSync(job func()) error {
	done := make(chan struct{})
	err := p.post(func() {
		defer close(done)
		job()
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

func (p *Pool) incrConnections() { p.connections.Add(1) }
func (p *Pool) decrConnections() { p.connections.Add(-1) }

// Connections returns the number of Connections currently tracked by this
// Pool, i.e. those that reached Ready and have not yet closed.
func (p *Pool) Connections() int { return int(p.connections.Load()) }
