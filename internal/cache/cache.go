// Package cache holds the named aggregate cache slots served by the data service.
//
// Expiry is lazy: a slot is only checked against the TTL when it is read. The only
// invalidation primitive is InvalidateAll, called after every successful mutation.
//
// The mutex protects the slot map only. It is never held across a store fetch, so two
// concurrent misses on the same slot may both fetch and both write; the values are
// equivalent and the last write wins. A fetch that started before an InvalidateAll
// must store through WriteIf so its result is dropped.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/and161185/sitetime/internal/observe"
)

// DefaultTTL is the maximum age at which a cached aggregate is still served.
const DefaultTTL = 300_000 * time.Millisecond

// Slot names one aggregate cache entry.
type Slot string

// The fixed set of slots.
const (
	AllUsers     Slot = "allUsersData"
	Tasks        Slot = "csiTasks"
	JobAddresses Slot = "allJobAddresses"
)

// Slots lists every slot in a stable order.
var Slots = []Slot{AllUsers, Tasks, JobAddresses}

type entry struct {
	value     any
	writtenAt time.Time
}

// Manager stores one timestamped value per slot.
type Manager struct {
	ttl   time.Duration
	clock clockwork.Clock
	obs   observe.Observer

	mu    sync.Mutex
	slots map[Slot]entry
	gen   uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the real clock, mostly for tests.
func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithObserver attaches an observability hook.
func WithObserver(o observe.Observer) Option { return func(m *Manager) { m.obs = o } }

// New constructs a Manager. ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		ttl:   ttl,
		clock: clockwork.NewRealClock(),
		obs:   observe.Nop{},
		slots: make(map[Slot]entry, len(Slots)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// TTL returns the configured time-to-live.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Read returns the slot value if it was written less than TTL ago.
func (m *Manager) Read(slot Slot) (any, bool) {
	m.mu.Lock()
	e, ok := m.slots[slot]
	m.mu.Unlock()

	if !ok || m.clock.Since(e.writtenAt) >= m.ttl {
		m.obs.Count(observe.CacheMiss, string(slot))
		return nil, false
	}
	m.obs.Count(observe.CacheHit, string(slot))
	return e.value, true
}

// Write stores value in slot, stamped with the current time.
func (m *Manager) Write(slot Slot, value any) {
	now := m.clock.Now()
	m.mu.Lock()
	m.slots[slot] = entry{value: value, writtenAt: now}
	m.mu.Unlock()
	m.obs.Count(observe.CacheWrite, string(slot))
}

// Generation returns a counter that InvalidateAll advances.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// WriteIf stores value in slot only if no InvalidateAll ran since gen was read.
// It reports whether the value was stored.
func (m *Manager) WriteIf(slot Slot, value any, gen uint64) bool {
	now := m.clock.Now()
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.obs.Count(observe.CacheDiscard, string(slot))
		return false
	}
	m.slots[slot] = entry{value: value, writtenAt: now}
	m.mu.Unlock()
	m.obs.Count(observe.CacheWrite, string(slot))
	return true
}

// Stale returns the last value written to slot regardless of its age.
// Values cleared by InvalidateAll are gone.
func (m *Manager) Stale(slot Slot) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.slots[slot]
	return e.value, ok
}

// InvalidateAll clears every slot and its timestamp.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	clear(m.slots)
	m.gen++
	m.mu.Unlock()
	m.obs.Count(observe.CacheInvalidate, "")
}
