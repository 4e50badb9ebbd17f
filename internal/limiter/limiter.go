// Package limiter throttles sign-in attempts per (username, origin).
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, originHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, originHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, originHash []byte) (bool, time.Duration, error)
}

// Unlimited never blocks. Useful for trusted single-user installs and tests.
type Unlimited struct{}

// Allow implements Limiter.
func (Unlimited) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}

// Success implements Limiter.
func (Unlimited) Success(context.Context, string, []byte) error { return nil }

// Failure implements Limiter.
func (Unlimited) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
