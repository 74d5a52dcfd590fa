// Package counter implements spec.md §4.3: a per-site visitor tally
// that schedules a future decrement on every increment and recomputes
// difficulty fresh from pkg/defense on each AddVisitor.
//
// Grounded on original_source/src/master/embedded/master.rs (Counter is
// referenced there as an Addr<Counter> actor with AddVisitor,
// GetCurrentVisitorCount, and Stop handlers) and spec.md §3/§4.3
// directly; built on internal/core/actor.
package counter

import (
	"context"
	"time"

	"github.com/mcaptcha/powcore/internal/core/actor"
	"github.com/mcaptcha/powcore/internal/core/clock"
	"github.com/mcaptcha/powcore/pkg/defense"
)

// Result is returned by AddVisitor: the difficulty factor to hand the
// caller along with the puzzle's TTL in seconds.
type Result struct {
	DifficultyFactor uint32
	DurationS        uint64
}

type state struct {
	defense  defense.Defense
	visitors uint32
	stopped  bool
}

// Counter is a single site's visitor tally actor.
type Counter struct {
	mbox  *actor.Mailbox[state]
	clock clock.Clock

	// Immutable after New: no mailbox round trip needed to read them.
	visitorLifetime time.Duration
	durationS       uint64
}

// Config configures a new Counter.
type Config struct {
	Defense           defense.Defense
	VisitorLifetimeMs uint64
	// DurationS is the puzzle TTL (seconds) returned alongside each
	// difficulty factor, handed to the caller for use as the challenge
	// cache's ttl argument.
	DurationS uint64
}

// New starts a Counter actor. clk may be nil, in which case
// clock.System{} is used.
func New(cfg Config, clk clock.Clock) *Counter {
	if clk == nil {
		clk = clock.System{}
	}
	return &Counter{
		mbox:            actor.New(state{defense: cfg.Defense}),
		clock:           clk,
		visitorLifetime: time.Duration(cfg.VisitorLifetimeMs) * time.Millisecond,
		durationS:       cfg.DurationS,
	}
}

// AddVisitor atomically increments the visitor count, schedules a
// future decrement after the configured visitor lifetime, and returns
// the difficulty factor corresponding to the post-increment count
// (spec.md §4.3, §8 property 2). ok is false if the counter has already
// been stopped or if ctx is done before the increment runs.
func (c *Counter) AddVisitor(ctx context.Context) (Result, bool) {
	type out struct {
		res Result
		ok  bool
	}
	o, called := actor.Call(ctx, c.mbox, func(s *state) out {
		if s.stopped {
			return out{}
		}
		s.visitors++
		return out{Result{
			DifficultyFactor: s.defense.Difficulty(s.visitors),
			DurationS:        c.durationS,
		}, true}
	})
	if !called || !o.ok {
		return Result{}, false
	}

	// Schedule the matching decrement outside the mailbox job so the
	// timer callback's own Cast (below) doesn't need to nest inside this
	// Call's job.
	c.clock.AfterFunc(c.visitorLifetime, func() {
		c.mbox.Cast(func(s *state) {
			if s.stopped {
				return
			}
			if s.visitors > 0 {
				s.visitors--
			}
		})
	})

	return o.res, true
}

// GetCurrentVisitorCount returns the current visitor tally.
func (c *Counter) GetCurrentVisitorCount(ctx context.Context) uint32 {
	n, _ := actor.Call(ctx, c.mbox, func(s *state) uint32 { return s.visitors })
	return n
}

// UpdateDefense swaps in a new Defense curve, e.g. after a hot-reload of
// site configuration (internal/config's argus-backed watcher). Takes
// effect on the next AddVisitor.
func (c *Counter) UpdateDefense(ctx context.Context, d defense.Defense) {
	actor.Call(ctx, c.mbox, func(s *state) struct{} {
		s.defense = d
		return struct{}{}
	})
}

// Stop cancels all pending decrements (by making them no-ops) and marks
// the counter terminal; subsequent AddVisitor calls fail. Stop also
// releases the counter's mailbox goroutine.
func (c *Counter) Stop(ctx context.Context) {
	actor.Call(ctx, c.mbox, func(s *state) struct{} {
		s.stopped = true
		return struct{}{}
	})
	c.mbox.Close()
}
