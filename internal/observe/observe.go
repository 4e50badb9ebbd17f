// Package observe defines the counter/duration hook reported to by the cache and the data service.
package observe

import (
	"time"

	"go.uber.org/zap"
)

// Observer receives cache and fetch events. Implementations must be safe for concurrent use.
type Observer interface {
	// Count increments the named counter. Label is the cache slot, or empty.
	Count(name, label string)
	// Duration records how long a named operation took and whether it failed.
	// Label is the cache slot for fetches and the operation name for mutations.
	Duration(name, label string, d time.Duration, err error)
}

// Event names.
const (
	CacheHit        = "cache.hit"
	CacheMiss       = "cache.miss"
	CacheWrite      = "cache.write"
	CacheInvalidate = "cache.invalidate"
	CacheDiscard    = "cache.discard"
	StaleServed     = "cache.stale_served"
	Fetch           = "store.fetch"
	Mutation        = "store.mutation"
)

// Nop discards all events.
type Nop struct{}

// Count implements Observer.
func (Nop) Count(string, string) {}

// Duration implements Observer.
func (Nop) Duration(string, string, time.Duration, error) {}

// Zap logs events through a zap logger: counters at debug, durations at debug or warn on failure.
type Zap struct{ log *zap.Logger }

// NewZap constructs a zap-backed observer.
func NewZap(log *zap.Logger) *Zap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Zap{log: log}
}

// Count implements Observer.
func (z *Zap) Count(name, label string) {
	z.log.Debug(name, zap.String("label", label))
}

// Duration implements Observer.
func (z *Zap) Duration(name, label string, d time.Duration, err error) {
	if err != nil {
		z.log.Warn(name,
			zap.String("label", label),
			zap.Duration("dur", d),
			zap.Error(err),
		)
		return
	}
	z.log.Debug(name, zap.String("label", label), zap.Duration("dur", d))
}
