package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Breakdown maps a key to a summed value and remembers the order keys were first added.
// The zero value is ready to use.
type Breakdown struct {
	keys   []string
	values map[string]int64
}

// Add accumulates v under key.
func (b *Breakdown) Add(key string, v int64) {
	if b.values == nil {
		b.values = make(map[string]int64)
	}
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] += v
}

// Get returns the value stored under key.
func (b Breakdown) Get(key string) (int64, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (b Breakdown) Keys() []string { return append([]string(nil), b.keys...) }

// Len returns the number of keys.
func (b Breakdown) Len() int { return len(b.keys) }

// Map returns a copy of the breakdown as a plain map.
func (b Breakdown) Map() map[string]int64 {
	out := make(map[string]int64, len(b.keys))
	for _, k := range b.keys {
		out[k] = b.values[k]
	}
	return out
}

// MarshalJSON encodes the breakdown as an object, keys in insertion order.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, _ := json.Marshal(b.values[k])
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// KeyValue is a single ranked breakdown item.
type KeyValue struct {
	Key   string
	Value int64
}

// UserStats is derived from a user's entries and never persisted.
type UserStats struct {
	TotalEntries      int
	TotalHours        float64
	DivisionBreakdown Breakdown  // division -> summed seconds
	LastEntry         *time.Time // start time of the most recent entry
	TotalJobAddresses int        // distinct labels
}

// UserAggregate is one row of the all-users rollup.
type UserAggregate struct {
	User            User
	Stats           UserStats
	JobAddressCount int
	EntryCount      int
}

// TaskUsage is a catalog task augmented with usage statistics.
type TaskUsage struct {
	Task            CSITask
	UsageCount      int
	TotalHours      float64
	UniqueUserCount int
}

// GroupStats summarizes one group of entries.
type GroupStats struct {
	Count           int
	TotalHours      float64
	UniqueUserCount int
}

// BiweekPeriod is one half of a calendar month.
type BiweekPeriod string

// Biweek periods, split at day 15/16.
const (
	FirstHalf  BiweekPeriod = "first-half"
	SecondHalf BiweekPeriod = "second-half"
)

// Grouping nests entries by year, zero-based month and biweek period.
type Grouping map[int]map[int]map[BiweekPeriod][]TimeEntry
