// Package ratelimit throttles frames on a single connection.
package ratelimit

import (
	"time"
)

// Limiter accepts at most max events per rolling window. It keeps the
// timestamps of accepted events only, so rejected events do not extend
// the window. A Limiter belongs to one connection and is not safe for
// concurrent use.
type Limiter struct {
	max      int
	window   time.Duration
	now      func() time.Time
	accepted []time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter. A non-positive max or window disables limiting.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.enabled() {
		l.accepted = make([]time.Time, 0, max)
	}
	return l
}

func (l *Limiter) enabled() bool {
	return l.max > 0 && l.window > 0
}

// Allow records an event and reports whether it is within the limit.
func (l *Limiter) Allow() bool {
	if !l.enabled() {
		return true
	}

	now := l.now()
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(l.accepted) && !l.accepted[i].After(cutoff) {
		i++
	}
	l.accepted = append(l.accepted[:0], l.accepted[i:]...)

	if len(l.accepted) >= l.max {
		return false
	}
	l.accepted = append(l.accepted, now)
	return true
}

// Remaining returns how many events would currently be accepted.
func (l *Limiter) Remaining() int {
	if !l.enabled() {
		return -1
	}
	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.accepted {
		if t.After(cutoff) {
			n++
		}
	}
	return l.max - n
}
