// Package clocktest provides a deterministic clock.Clock for tests that
// exercise TTL expiry without sleeping past real durations, grounded on
// the fakeClock/Clock seam used in IvanBrykalov-shardcache's cache tests.
package clocktest

import (
	"container/heap"
	"sync"
	"time"

	"github.com/mcaptcha/powcore/internal/core/clock"
)

// Fake is a manually-advanced clock.Clock. Zero value starts at the zero
// time.Time. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending timerHeap
	seq     int
}

var _ clock.Clock = (*Fake)(nil)

type fakeTimer struct {
	at       time.Time
	f        func()
	stopped  bool
	seq      int
	index    int
}

type timerHeap []*fakeTimer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	t := x.(*fakeTimer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Now returns the fake clock's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules f to run (synchronously, at Advance call time)
// once the fake clock reaches Now()+d.
func (f *Fake) AfterFunc(d time.Duration, cb func()) clock.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{at: f.now.Add(d), f: cb, seq: f.seq}
	heap.Push(&f.pending, t)
	return &fakeTimerHandle{fake: f, t: t}
}

type fakeTimerHandle struct {
	fake *Fake
	t    *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	if h.t.stopped || h.t.index < 0 {
		return false
	}
	h.t.stopped = true
	return true
}

// Advance moves the fake clock forward by d, synchronously firing any
// timers whose deadline has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	target := f.now
	var due []*fakeTimer
	for f.pending.Len() > 0 && !f.pending[0].at.After(target) {
		t := heap.Pop(&f.pending).(*fakeTimer)
		t.index = -1
		if !t.stopped {
			due = append(due, t)
		}
	}
	f.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}
