// Package master implements spec.md §4.4: the supervisor that owns the
// fleet of per-site Counter actors, their registry, and the periodic GC
// sweep that evicts idle, previously-touched sites.
//
// Grounded directly on original_source/src/master/embedded/master.rs
// (Master/CleanUp/AddVisitor/Rename/RemoveCaptcha), translated onto
// internal/core/actor: the Rust CleanUp handler's self-resend via
// ctx.spawn(task) becomes a recurring clock.AfterFunc reschedule.
package master

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcaptcha/powcore/internal/core/actor"
	"github.com/mcaptcha/powcore/internal/core/clock"
	"github.com/mcaptcha/powcore/internal/counter"
	"github.com/mcaptcha/powcore/internal/metrics"
	"github.com/mcaptcha/powcore/pkg/defense"
)

// SiteConfig is the per-site configuration accepted by AddSite —
// equivalent to the Rust source's "mcaptcha_config".
type SiteConfig struct {
	Defense           defense.Defense
	VisitorLifetimeMs uint64
	DurationS         uint64
}

// SweepObserver is invoked after every completed GC pass (spec.md §9's
// observability open question). scanned is the number of sites
// snapshotted at the start of the pass; evicted is how many of those
// were stopped and removed.
type SweepObserver func(scanned, evicted int, dur time.Duration)

type siteEntry struct {
	touched bool
	counter *counter.Counter
}

type state struct {
	sites map[string]*siteEntry
}

// Config configures a Master.
type Config struct {
	// GCPeriodS is the cleanup cadence in seconds (>0).
	GCPeriodS uint64
}

// Master supervises a fleet of Counter actors keyed by site id.
type Master struct {
	mbox          *actor.Mailbox[state]
	clock         clock.Clock
	metrics       metrics.Metrics
	gcPeriod      time.Duration
	sweepObserver SweepObserver
}

// New constructs a Master and schedules its first GC sweep after
// cfg.GCPeriodS. clk and m may be nil, in which case clock.System{} and
// metrics.Noop{} are used. observer may be nil.
func New(cfg Config, clk clock.Clock, m metrics.Metrics, observer SweepObserver) *Master {
	if clk == nil {
		clk = clock.System{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	master := &Master{
		mbox:          actor.New(state{sites: make(map[string]*siteEntry)}),
		clock:         clk,
		metrics:       m,
		gcPeriod:      time.Duration(cfg.GCPeriodS) * time.Second,
		sweepObserver: observer,
	}
	master.scheduleCleanup()
	return master
}

func (m *Master) scheduleCleanup() {
	m.clock.AfterFunc(m.gcPeriod, m.runCleanup)
}

// AddSite instantiates a Counter under id. If id already has a counter
// registered, the previous one is stopped and replaced.
func (m *Master) AddSite(ctx context.Context, id string, cfg SiteConfig) {
	c := counter.New(counter.Config{
		Defense:           cfg.Defense,
		VisitorLifetimeMs: cfg.VisitorLifetimeMs,
		DurationS:         cfg.DurationS,
	}, m.clock)

	prev, _ := actor.Call(ctx, m.mbox, func(s *state) *counter.Counter {
		old := s.sites[id]
		s.sites[id] = &siteEntry{counter: c}
		if old != nil {
			return old.counter
		}
		return nil
	})
	if prev != nil {
		prev.Stop(ctx)
	}
}

// GetSite returns the Counter registered under id, if any, and marks
// the site touched (spec.md §4.4's GC eligibility gate).
func (m *Master) GetSite(ctx context.Context, id string) (*counter.Counter, bool) {
	return m.touch(ctx, id)
}

func (m *Master) touch(ctx context.Context, id string) (*counter.Counter, bool) {
	type out struct {
		c  *counter.Counter
		ok bool
	}
	o, called := actor.Call(ctx, m.mbox, func(s *state) out {
		e, ok := s.sites[id]
		if !ok {
			return out{}
		}
		e.touched = true
		return out{e.counter, true}
	})
	if !called {
		return nil, false
	}
	return o.c, o.ok
}

// Rename re-keys the entry at from to to. A missing from is a no-op
// success. A pre-existing to is overwritten; its prior counter is
// stopped (spec.md S6).
func (m *Master) Rename(ctx context.Context, from, to string) {
	var evicted *counter.Counter
	actor.Call(ctx, m.mbox, func(s *state) struct{} {
		e, ok := s.sites[from]
		if !ok {
			return struct{}{}
		}
		delete(s.sites, from)
		if old, exists := s.sites[to]; exists {
			evicted = old.counter
		}
		s.sites[to] = e
		return struct{}{}
	})
	if evicted != nil {
		evicted.Stop(ctx)
	}
}

// RemoveCaptcha stops and drops the site's counter. Idempotent.
func (m *Master) RemoveCaptcha(ctx context.Context, id string) {
	var c *counter.Counter
	actor.Call(ctx, m.mbox, func(s *state) struct{} {
		if e, ok := s.sites[id]; ok {
			c = e.counter
			delete(s.sites, id)
		}
		return struct{}{}
	})
	if c != nil {
		c.Stop(ctx)
	}
}

// AddVisitor looks up id and forwards AddVisitor to its counter. ok is
// false when id is unknown or the counter has already been stopped.
func (m *Master) AddVisitor(ctx context.Context, id string) (counter.Result, bool) {
	c, ok := m.touch(ctx, id)
	if !ok {
		return counter.Result{}, false
	}
	return c.AddVisitor(ctx)
}

// runCleanup is the recurring GC pass (spec.md §4.4): snapshot the
// registry, stop-and-remove every touched, zero-visitor site, then
// reschedule. It does not reschedule once the Master's mailbox is
// closed.
func (m *Master) runCleanup() {
	ctx := context.Background()
	start := m.clock.Now()

	type snapshotEntry struct {
		id      string
		touched bool
		counter *counter.Counter
	}
	snapshot, called := actor.Call(ctx, m.mbox, func(s *state) []snapshotEntry {
		out := make([]snapshotEntry, 0, len(s.sites))
		for id, e := range s.sites {
			out = append(out, snapshotEntry{id, e.touched, e.counter})
		}
		return out
	})
	if !called {
		return
	}

	evicted := 0
	for _, e := range snapshot {
		if e.counter.GetCurrentVisitorCount(ctx) == 0 && e.touched {
			e.counter.Stop(ctx)
			m.RemoveCaptcha(ctx, e.id)
			evicted++
		}
	}

	dur := m.clock.Now().Sub(start)
	m.metrics.Sweep(len(snapshot), evicted, dur)
	if m.sweepObserver != nil {
		m.sweepObserver(len(snapshot), evicted, dur)
	}

	m.scheduleCleanup()
}

// Close stops every registered counter concurrently (grounded on
// IvanBrykalov-shardcache's errgroup fan-in pattern) and releases the
// Master's own mailbox goroutine. No further GC passes run afterward.
func (m *Master) Close(ctx context.Context) {
	snapshot, called := actor.Call(ctx, m.mbox, func(s *state) []*counter.Counter {
		out := make([]*counter.Counter, 0, len(s.sites))
		for _, e := range s.sites {
			out = append(out, e.counter)
		}
		s.sites = make(map[string]*siteEntry)
		return out
	})
	if called {
		g, gctx := errgroup.WithContext(ctx)
		for _, c := range snapshot {
			c := c
			g.Go(func() error {
				c.Stop(gctx)
				return nil
			})
		}
		_ = g.Wait()
	}
	m.mbox.Close()
}
