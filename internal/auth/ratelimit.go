// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"context"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

// Rate limiting defaults.
const (
	// DefaultMaxLoginAttempts is the number of attempts in the window that blocks further logins.
	DefaultMaxLoginAttempts = 5

	// DefaultLoginWindow is the trailing window attempts are counted in.
	DefaultLoginWindow = 15 * time.Minute
)

// LoginAttempt is one recorded login try. Attempts are append-only.
type LoginAttempt struct {
	ID          ulid.ULID
	Email       string
	IPAddress   string
	Success     bool
	AttemptedAt time.Time
}

// LoginAttemptRepository is the append-only login attempt log.
type LoginAttemptRepository interface {
	// RecordLoginAttempt appends an attempt.
	RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error

	// RecentLoginAttempts returns attempts for email at or after since, oldest first.
	RecentLoginAttempts(ctx context.Context, email string, since time.Time) ([]*LoginAttempt, error)

	// PruneLoginAttempts removes attempts older than before and returns the count.
	PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error)
}

// RateLimitPolicy configures the login attempt window.
type RateLimitPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultRateLimitPolicy returns 5 attempts per 15 minutes.
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{MaxAttempts: DefaultMaxLoginAttempts, Window: DefaultLoginWindow}
}

// RateLimitResult contains the result of a rate limit evaluation.
type RateLimitResult struct {
	// Limited indicates further login attempts must be rejected.
	Limited bool

	// Attempts is the number of attempts inside the window.
	Attempts int

	// RetryAfter is the time until the oldest attempt leaves the window.
	RetryAfter time.Duration
}

// RetryAfterMinutes rounds RetryAfter up to whole minutes, never below one.
func (r RateLimitResult) RetryAfterMinutes() int {
	if !r.Limited {
		return 0
	}
	minutes := int(math.Ceil(r.RetryAfter.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// EvaluateAttempts applies the policy to an attempt log at time now.
// Every attempt counts, successful or not. Attempts outside the window are ignored.
func EvaluateAttempts(attempts []*LoginAttempt, now time.Time, policy RateLimitPolicy) RateLimitResult {
	windowStart := now.Add(-policy.Window)

	var (
		count  int
		oldest time.Time
	)
	for _, a := range attempts {
		if a.AttemptedAt.Before(windowStart) {
			continue
		}
		count++
		if oldest.IsZero() || a.AttemptedAt.Before(oldest) {
			oldest = a.AttemptedAt
		}
	}

	result := RateLimitResult{Attempts: count}
	if policy.MaxAttempts <= 0 || count < policy.MaxAttempts {
		return result
	}

	result.Limited = true
	result.RetryAfter = oldest.Add(policy.Window).Sub(now)
	return result
}
