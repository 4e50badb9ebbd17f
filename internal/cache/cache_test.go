package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingObserver) Count(name, slot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[name+"/"+slot]++
}

func (c *countingObserver) Duration(string, string, time.Duration, error) {}

func (c *countingObserver) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

func TestManager_ReadWriteWithinTTL(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClock()
	obs := &countingObserver{}
	m := New(0, WithClock(clk), WithObserver(obs))
	require.Equal(t, DefaultTTL, m.TTL())
	require.Equal(t, 5*time.Minute, m.TTL())

	_, ok := m.Read(AllUsers)
	require.False(t, ok)

	m.Write(AllUsers, "v1")
	v, ok := m.Read(AllUsers)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	clk.Advance(DefaultTTL - time.Millisecond)
	v, ok = m.Read(AllUsers)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	require.Equal(t, 1, obs.get("cache.miss/allUsersData"))
	require.Equal(t, 2, obs.get("cache.hit/allUsersData"))
	require.Equal(t, 1, obs.get("cache.write/allUsersData"))
}

func TestManager_ExpiresAtTTL(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClock()
	m := New(time.Minute, WithClock(clk))
	m.Write(Tasks, 42)

	clk.Advance(time.Minute)
	_, ok := m.Read(Tasks)
	require.False(t, ok, "age == TTL must miss")

	v, ok := m.Stale(Tasks)
	require.True(t, ok, "expired value stays available as stale")
	require.Equal(t, 42, v)

	m.Write(Tasks, 43)
	v, ok = m.Read(Tasks)
	require.True(t, ok)
	require.Equal(t, 43, v)
}

func TestManager_SlotsAreIndependent(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClock()
	m := New(time.Minute, WithClock(clk))
	m.Write(AllUsers, "users")
	clk.Advance(30 * time.Second)
	m.Write(JobAddresses, "addrs")
	clk.Advance(40 * time.Second)

	_, ok := m.Read(AllUsers)
	require.False(t, ok)
	v, ok := m.Read(JobAddresses)
	require.True(t, ok)
	require.Equal(t, "addrs", v)
	_, ok = m.Read(Tasks)
	require.False(t, ok)
}

func TestManager_InvalidateAll(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	m := New(time.Hour, WithObserver(obs))
	for _, s := range Slots {
		m.Write(s, string(s))
	}
	m.InvalidateAll()

	for _, s := range Slots {
		_, ok := m.Read(s)
		require.False(t, ok, "slot %s must be cleared", s)
		_, ok = m.Stale(s)
		require.False(t, ok, "slot %s must have no stale value", s)
	}
	require.Equal(t, 1, obs.get("cache.invalidate/"))
}

func TestManager_WriteIfDropsResultsFromBeforeInvalidate(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	m := New(time.Hour, WithObserver(obs))

	gen := m.Generation()
	m.InvalidateAll()
	require.NotEqual(t, gen, m.Generation())
	require.False(t, m.WriteIf(AllUsers, "before", gen))
	_, ok := m.Read(AllUsers)
	require.False(t, ok)
	_, ok = m.Stale(AllUsers)
	require.False(t, ok)

	require.True(t, m.WriteIf(AllUsers, "after", m.Generation()))
	v, ok := m.Read(AllUsers)
	require.True(t, ok)
	require.Equal(t, "after", v)
	require.Equal(t, 1, obs.get("cache.discard/allUsersData"))
	require.Equal(t, 1, obs.get("cache.write/allUsersData"))
}

func TestManager_ConcurrentUse(t *testing.T) {
	t.Parallel()

	m := New(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := Slots[i%len(Slots)]
			m.Write(s, i)
			m.Read(s)
			if i%8 == 0 {
				m.InvalidateAll()
			}
		}(i)
	}
	wg.Wait()
}
