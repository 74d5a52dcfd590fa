// Package actor provides a minimal single-goroutine mailbox used to give
// each Counter, the Master, and the embedded challenge cache exclusive,
// lock-free access to their own state, processing one message at a time
// in FIFO order (spec.md §5 Concurrency & Resource Model).
//
// It is the idiomatic Go stand-in for the actix actor/Addr/Handler
// machinery in the original Rust source (see
// original_source/src/master/embedded/master.rs): a private goroutine
// owns state of type S and drains jobs off a channel; callers get a
// result back over a one-shot reply channel instead of exposing the
// owner's internal scheduling.
package actor

import (
	"context"
	"sync"
)

// Mailbox runs jobs against a privately-owned state of type S, one at a
// time, in send order.
type Mailbox[S any] struct {
	state     S
	jobs      chan func(*S)
	closeReq  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts a Mailbox owning state and returns it. The owner goroutine
// runs until Close is called.
func New[S any](state S) *Mailbox[S] {
	m := &Mailbox[S]{
		state:    state,
		jobs:     make(chan func(*S), 64),
		closeReq: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailbox[S]) run() {
	defer close(m.done)
	for {
		// Drain whatever is already enqueued before honoring a close
		// request, so Close's "wait for queued jobs to finish" promise
		// holds even though select would otherwise pick ready cases
		// arbitrarily.
		select {
		case job := <-m.jobs:
			job(&m.state)
			continue
		default:
		}
		select {
		case job := <-m.jobs:
			job(&m.state)
		case <-m.closeReq:
			return
		}
	}
}

// Cast enqueues job to run against the mailbox's state without waiting
// for it to complete (fire-and-forget). It returns false if the mailbox
// is already closed.
func (m *Mailbox[S]) Cast(job func(*S)) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.jobs <- job:
		return true
	case <-m.done:
		return false
	}
}

// Call enqueues job and blocks until it has run, returning whatever job
// computed. ok is false if the mailbox was closed before job could run,
// or if ctx is done first.
func Call[S any, R any](ctx context.Context, m *Mailbox[S], job func(*S) R) (result R, ok bool) {
	reply := make(chan R, 1)
	sent := m.Cast(func(s *S) {
		reply <- job(s)
	})
	if !sent {
		var zero R
		return zero, false
	}
	select {
	case r := <-reply:
		return r, true
	case <-ctx.Done():
		var zero R
		return zero, false
	case <-m.done:
		var zero R
		return zero, false
	}
}

// Closed reports whether the mailbox's owner goroutine has exited.
func (m *Mailbox[S]) Closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Close stops accepting new jobs and waits for the owner goroutine to
// drain whatever is already enqueued. Close is idempotent and safe to
// call concurrently.
func (m *Mailbox[S]) Close() {
	m.closeOnce.Do(func() {
		close(m.closeReq)
	})
	<-m.done
}
