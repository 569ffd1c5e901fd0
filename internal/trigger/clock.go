// Package trigger computes rotation boundaries on a fixed period of whole
// minutes. Boundaries are aligned to multiples of the period since the Unix
// epoch, so with a one minute period and a process started at 12:00:37 the
// boundaries fall at 12:01:00, 12:02:00 and so on.
package trigger

import (
	"context"
	"sync"
	"time"
)

// DefaultPeriodMinutes is used until SetPeriodMinutes accepts a value.
const DefaultPeriodMinutes = 1

// Clock is the rotation-trigger clock.
type Clock struct {
	mu      sync.RWMutex
	period  int
	running bool

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewClock returns a clock using the wall clock and the default period.
func NewClock() *Clock {
	return NewClockWith(nil, nil)
}

// NewClockWith returns a clock reading time from now and waiting with after.
// Nil arguments fall back to time.Now and time.After.
func NewClockWith(now func() time.Time, after func(time.Duration) <-chan time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = time.After
	}
	return &Clock{
		period: DefaultPeriodMinutes,
		now:    now,
		after:  after,
	}
}

// PeriodMinutes returns the configured period.
func (c *Clock) PeriodMinutes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.period
}

// SetPeriodMinutes sets the period. Non-positive values are ignored and the
// previous period is kept; callers that need feedback must read it back.
// The period is fixed once Run has started and later calls are ignored.
func (c *Clock) SetPeriodMinutes(minutes int) {
	if minutes <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.period = minutes
}

func (c *Clock) periodMillis() int64 {
	return int64(c.PeriodMinutes()) * int64(time.Minute/time.Millisecond)
}

// BoundaryStart returns the start of the interval containing t.
func (c *Clock) BoundaryStart(t time.Time) time.Time {
	ticks := c.periodMillis()
	ms := t.UnixMilli()
	q := ms / ticks
	if ms%ticks < 0 {
		q--
	}
	return time.UnixMilli(q * ticks).In(t.Location())
}

// NextCheck returns the next boundary after the interval containing t.
func (c *Clock) NextCheck(t time.Time) time.Time {
	start := c.BoundaryStart(t).Truncate(time.Second)
	start = start.Add(-time.Duration(start.Second()) * time.Second)
	return start.Add(time.Duration(c.PeriodMinutes()) * time.Minute)
}

// Run calls fn on every boundary until ctx is done. fn runs on the calling
// goroutine, so a slow fn delays the following check rather than overlapping
// it.
func (c *Clock) Run(ctx context.Context, fn func(boundary time.Time)) {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	for {
		now := c.now()
		next := c.NextCheck(now)
		select {
		case <-ctx.Done():
			return
		case <-c.after(next.Sub(now)):
		}
		if ctx.Err() != nil {
			return
		}
		fn(next)
	}
}
