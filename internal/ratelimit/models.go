// Package ratelimit caps public requests per client IP with a sliding window.
package ratelimit

import (
	"time"
)

// Class groups routes that share a limit.
type Class string

const (
	ClassAddress Class = "address"
	ClassProof   Class = "proof"
	ClassSession Class = "session"
)

// Limit allows Requests per Window. Zero Requests means unlimited.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}
