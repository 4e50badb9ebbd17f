// Package aggregate computes statistical rollups over time entries.
//
// All functions are pure: they never touch the store and never mutate their inputs.
// Entries reference catalog tasks by name (TimeEntry.CSIDivision); that string join is
// resolved here and nowhere else.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sitetime/internal/model"
)

// DefaultTopN is the ranking size used when TopNByValue gets n <= 0.
const DefaultTopN = 5

// UnassignedDivision is the breakdown key for entries without a division.
const UnassignedDivision = "Unassigned"

const secondsPerHour = 3600.0

// hours converts seconds to hours, never returning NaN or Inf.
func hours(seconds int64) float64 {
	h := float64(seconds) / secondsPerHour
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	return h
}

func divisionKey(e model.TimeEntry) string {
	if d := strings.TrimSpace(e.CSIDivision); d != "" {
		return d
	}
	return UnassignedDivision
}

// ComputeUserStats summarizes one user's entries and job addresses in a single pass.
func ComputeUserStats(entries []model.TimeEntry, jobAddresses []model.JobAddress) model.UserStats {
	var (
		stats   model.UserStats
		seconds int64
	)
	for i := range entries {
		e := &entries[i]
		d := e.DurationSeconds()
		seconds += d
		stats.DivisionBreakdown.Add(divisionKey(*e), d)
		if stats.LastEntry == nil || e.StartTime.After(*stats.LastEntry) {
			ts := e.StartTime
			stats.LastEntry = &ts
		}
	}
	stats.TotalEntries = len(entries)
	stats.TotalHours = hours(seconds)
	stats.TotalJobAddresses = countDistinctLabels(jobAddresses)
	return stats
}

func countDistinctLabels(addrs []model.JobAddress) int {
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		seen[NormalizeLabel(a.Label)] = struct{}{}
	}
	return len(seen)
}

// NormalizeLabel is the comparison key for job address labels.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// ComputeAllUsersAggregate builds the per-user rollup keyed by username.
// Entries and addresses are bucketed by owner once, so the cost is linear in the input size.
func ComputeAllUsersAggregate(users []model.User, allEntries []model.TimeEntry, allJobAddresses []model.JobAddress) map[string]model.UserAggregate {
	entriesByUser := make(map[uuid.UUID][]model.TimeEntry, len(users))
	for _, e := range allEntries {
		entriesByUser[e.UserID] = append(entriesByUser[e.UserID], e)
	}
	addrsByUser := make(map[uuid.UUID][]model.JobAddress, len(users))
	for _, a := range allJobAddresses {
		addrsByUser[a.UserID] = append(addrsByUser[a.UserID], a)
	}

	out := make(map[string]model.UserAggregate, len(users))
	for _, u := range users {
		entries := entriesByUser[u.ID]
		addrs := addrsByUser[u.ID]
		out[u.Username] = model.UserAggregate{
			User:            u,
			Stats:           ComputeUserStats(entries, addrs),
			JobAddressCount: len(addrs),
			EntryCount:      len(entries),
		}
	}
	return out
}

// ComputeTaskUsageStats augments every catalog task with usage figures.
// Divisions are matched after trimming, as in ComputeUserStats. Entries without a
// division or whose division matches no catalog task do not contribute.
func ComputeTaskUsageStats(tasks []model.CSITask, allEntries []model.TimeEntry) []model.TaskUsage {
	byDivision := make(map[string][]model.TimeEntry)
	for _, e := range allEntries {
		if strings.TrimSpace(e.CSIDivision) == "" {
			continue
		}
		key := divisionKey(e)
		byDivision[key] = append(byDivision[key], e)
	}

	out := make([]model.TaskUsage, 0, len(tasks))
	for _, t := range tasks {
		gs := ComputeGroupStats(byDivision[strings.TrimSpace(t.Name)])
		out = append(out, model.TaskUsage{
			Task:            t,
			UsageCount:      gs.Count,
			TotalHours:      gs.TotalHours,
			UniqueUserCount: gs.UniqueUserCount,
		})
	}
	return out
}

// ComputeGroupStats counts entries, hours and distinct users in a single pass.
func ComputeGroupStats(entries []model.TimeEntry) model.GroupStats {
	var seconds int64
	users := make(map[uuid.UUID]struct{})
	for i := range entries {
		seconds += entries[i].DurationSeconds()
		users[entries[i].UserID] = struct{}{}
	}
	return model.GroupStats{
		Count:           len(entries),
		TotalHours:      hours(seconds),
		UniqueUserCount: len(users),
	}
}

// TopNByValue ranks breakdown keys by value, descending.
// Ties keep insertion order.
func TopNByValue(b model.Breakdown, n int) []model.KeyValue {
	if n <= 0 {
		n = DefaultTopN
	}
	keys := b.Keys()
	out := make([]model.KeyValue, 0, len(keys))
	for _, k := range keys {
		v, _ := b.Get(k)
		out = append(out, model.KeyValue{Key: k, Value: v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
