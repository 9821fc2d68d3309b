// Package ratelimit throttles expensive per-user operations such as exports.
// Counters live in Redis when it is configured and in process memory
// otherwise; a failing Redis degrades to the in-memory store.
package ratelimit

import (
	"context"
	"time"
)

// Limit allows Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Enabled reports whether the limit should be enforced.
func (l Limit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Round(time.Second) / time.Second)
	return max(secs, 1)
}

// Store counts hits per key.
type Store interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}
