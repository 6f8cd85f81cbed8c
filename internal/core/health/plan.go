// Package health contains the pure arithmetic of the post-deploy health
// check: how many probes a budget allows and how a sequence of observations
// resolves.
package health

import (
	"errors"
	"time"
)

var ErrInvalidPlan = errors.New("health plan requires positive interval and budget")

// Plan fixes the polling schedule before the first probe is sent. Attempts
// is derived from the budget rather than a wall clock deadline, so a slow
// probe never silently reduces the number of tries.
type Plan struct {
	Interval time.Duration
	Budget   time.Duration
}

// NewPlan validates the polling schedule.
func NewPlan(interval, budget time.Duration) (Plan, error) {
	if interval <= 0 || budget <= 0 {
		return Plan{}, ErrInvalidPlan
	}
	return Plan{Interval: interval, Budget: budget}, nil
}

// Attempts returns the number of probes the plan performs: the budget
// divided by the interval, rounded down, never less than one.
func (p Plan) Attempts() int {
	if p.Interval <= 0 {
		return 0
	}
	attempts := int(p.Budget / p.Interval)
	if attempts < 1 {
		attempts = 1
	}
	return attempts
}

// Accept reports whether an HTTP status code counts as healthy. Any 2xx
// passes; redirects do not, because a redirecting health endpoint usually
// means a proxy answered instead of the application.
func Accept(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 299
}
