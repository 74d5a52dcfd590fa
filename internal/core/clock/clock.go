// Package clock provides a time source seam for actors that schedule
// TTL timers, so tests can drive expiry deterministically instead of
// sleeping past real wall-clock durations.
package clock

import (
	"time"

	"github.com/agilira/go-timecache"
)

// Clock is the minimal time source actors depend on.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by AfterFunc; Stop cancels the pending
// callback if it has not already fired.
type Timer interface {
	Stop() bool
}

// System is the production Clock, backed by go-timecache's cached
// monotonic reads for the hot Now() path and the stdlib timer wheel for
// scheduling.
type System struct{}

// Now returns the current time from go-timecache's background-refreshed
// cache rather than a fresh syscall, matching the read-heavy pattern of
// actor hot loops.
func (System) Now() time.Time {
	return time.Unix(0, timecache.CachedTimeNano())
}

// AfterFunc schedules f to run after d using time.AfterFunc.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
