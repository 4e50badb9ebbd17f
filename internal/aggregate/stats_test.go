package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sitetime/internal/model"
)

func secs(v int64) *int64 { return &v }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func entry(user uuid.UUID, div string, dur *int64, start time.Time) model.TimeEntry {
	return model.TimeEntry{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      user,
		StartTime:   start,
		Duration:    dur,
		CSIDivision: div,
	}
}

func TestComputeUserStats_Empty(t *testing.T) {
	t.Parallel()

	st := ComputeUserStats(nil, nil)
	require.Equal(t, 0, st.TotalEntries)
	require.Equal(t, 0.0, st.TotalHours)
	require.False(t, math.IsNaN(st.TotalHours))
	require.Equal(t, 0, st.DivisionBreakdown.Len())
	require.Empty(t, st.DivisionBreakdown.Map())
	require.Nil(t, st.LastEntry)
	require.Equal(t, 0, st.TotalJobAddresses)

	st = ComputeUserStats([]model.TimeEntry{}, []model.JobAddress{})
	require.Equal(t, 0, st.TotalEntries)
	require.Nil(t, st.LastEntry)
}

func TestComputeUserStats_PlumbingScenario(t *testing.T) {
	t.Parallel()

	u := uuid.Must(uuid.NewV4())
	first := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	second := time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)
	e1 := entry(u, "Plumbing", secs(3600), first)
	e1.Date = day(2024, time.January, 10)
	e2 := entry(u, "Plumbing", secs(1800), second)
	e2.Date = day(2024, time.January, 20)
	entries := []model.TimeEntry{e1, e2}

	st := ComputeUserStats(entries, nil)
	require.Equal(t, 2, st.TotalEntries)
	require.InDelta(t, 1.5, st.TotalHours, 1e-9)
	require.Equal(t, map[string]int64{"Plumbing": 5400}, st.DivisionBreakdown.Map())
	require.NotNil(t, st.LastEntry)
	require.True(t, st.LastEntry.Equal(second))

	g := GroupByYearMonthBiweek(entries)
	require.Len(t, g[2024][0][model.FirstHalf], 1)
	require.Equal(t, e1.ID, g[2024][0][model.FirstHalf][0].ID)
	require.Len(t, g[2024][0][model.SecondHalf], 1)
	require.Equal(t, e2.ID, g[2024][0][model.SecondHalf][0].ID)
}

func TestComputeUserStats_NilDurationCountsZero(t *testing.T) {
	t.Parallel()

	u := uuid.Must(uuid.NewV4())
	now := time.Now()
	entries := []model.TimeEntry{
		entry(u, "Electrical", nil, now),
		entry(u, "Electrical", secs(7200), now.Add(-time.Hour)),
		entry(u, "", secs(60), now.Add(-2*time.Hour)),
	}
	addrs := []model.JobAddress{
		{UserID: u, Label: "12 Oak St"},
		{UserID: u, Label: "12  oak st "},
		{UserID: u, Label: "9 Elm Ave"},
	}

	st := ComputeUserStats(entries, addrs)
	require.Equal(t, 3, st.TotalEntries)
	require.InDelta(t, 7260.0/3600.0, st.TotalHours, 1e-9)
	require.Equal(t, []string{"Electrical", UnassignedDivision}, st.DivisionBreakdown.Keys())
	v, ok := st.DivisionBreakdown.Get("Electrical")
	require.True(t, ok)
	require.Equal(t, int64(7200), v)
	require.Equal(t, 2, st.TotalJobAddresses)
	require.True(t, st.LastEntry.Equal(now))
}

func TestComputeAllUsersAggregate(t *testing.T) {
	t.Parallel()

	alice := model.User{ID: uuid.Must(uuid.NewV4()), Username: "alice"}
	bob := model.User{ID: uuid.Must(uuid.NewV4()), Username: "bob"}
	carol := model.User{ID: uuid.Must(uuid.NewV4()), Username: "carol"}
	stranger := uuid.Must(uuid.NewV4())
	now := time.Now()

	entries := []model.TimeEntry{
		entry(alice.ID, "Framing", secs(3600), now),
		entry(bob.ID, "Framing", secs(1800), now),
		entry(alice.ID, "Drywall", secs(900), now),
		entry(stranger, "Framing", secs(100), now),
	}
	addrs := []model.JobAddress{
		{UserID: alice.ID, Label: "A"},
		{UserID: bob.ID, Label: "B"},
		{UserID: bob.ID, Label: "C"},
	}

	agg := ComputeAllUsersAggregate([]model.User{alice, bob, carol}, entries, addrs)
	require.Len(t, agg, 3)

	a := agg["alice"]
	require.Equal(t, alice.ID, a.User.ID)
	require.Equal(t, 2, a.EntryCount)
	require.Equal(t, 1, a.JobAddressCount)
	require.InDelta(t, 1.25, a.Stats.TotalHours, 1e-9)
	require.Equal(t, map[string]int64{"Framing": 3600, "Drywall": 900}, a.Stats.DivisionBreakdown.Map())

	b := agg["bob"]
	require.Equal(t, 1, b.EntryCount)
	require.Equal(t, 2, b.JobAddressCount)
	require.Equal(t, 2, b.Stats.TotalJobAddresses)

	c := agg["carol"]
	require.Equal(t, 0, c.EntryCount)
	require.Equal(t, 0.0, c.Stats.TotalHours)
	require.Nil(t, c.Stats.LastEntry)

	require.Empty(t, ComputeAllUsersAggregate(nil, entries, addrs))
}

func TestComputeTaskUsageStats(t *testing.T) {
	t.Parallel()

	u1 := uuid.Must(uuid.NewV4())
	u2 := uuid.Must(uuid.NewV4())
	now := time.Now()
	tasks := []model.CSITask{
		{ID: uuid.Must(uuid.NewV4()), Name: "Concrete"},
		{ID: uuid.Must(uuid.NewV4()), Name: "Roofing"},
	}
	entries := []model.TimeEntry{
		entry(u1, "Concrete", secs(3600), now),
		entry(u2, "Concrete", secs(3600), now),
		entry(u1, "Concrete", nil, now),
		entry(u1, "Masonry", secs(3600), now),
	}

	got := ComputeTaskUsageStats(tasks, entries)
	require.Len(t, got, 2)

	require.Equal(t, "Concrete", got[0].Task.Name)
	require.Equal(t, 3, got[0].UsageCount)
	require.InDelta(t, 2.0, got[0].TotalHours, 1e-9)
	require.Equal(t, 2, got[0].UniqueUserCount)

	require.Equal(t, "Roofing", got[1].Task.Name)
	require.Equal(t, 0, got[1].UsageCount)
	require.Equal(t, 0.0, got[1].TotalHours)
	require.Equal(t, 0, got[1].UniqueUserCount)

	require.Empty(t, ComputeTaskUsageStats(nil, entries))
}

func TestComputeTaskUsageStats_MatchesTrimmedDivisions(t *testing.T) {
	t.Parallel()

	u1 := uuid.Must(uuid.NewV4())
	now := time.Now()
	entries := []model.TimeEntry{
		entry(u1, " Plumbing", secs(3600), now),
		entry(u1, "Plumbing\t", secs(1800), now),
		entry(u1, "  ", secs(600), now),
		entry(u1, "", secs(600), now),
	}
	tasks := []model.CSITask{
		{ID: uuid.Must(uuid.NewV4()), Name: "Plumbing"},
		{ID: uuid.Must(uuid.NewV4()), Name: UnassignedDivision},
	}

	got := ComputeTaskUsageStats(tasks, entries)
	require.Equal(t, 2, got[0].UsageCount)
	require.InDelta(t, 1.5, got[0].TotalHours, 1e-9)
	require.Equal(t, 0, got[1].UsageCount, "entries without a division never join the catalog")

	st := ComputeUserStats(entries, nil)
	plumbing, ok := st.DivisionBreakdown.Get("Plumbing")
	require.True(t, ok)
	require.Equal(t, int64(5400), plumbing)
}

func TestComputeGroupStats(t *testing.T) {
	t.Parallel()

	gs := ComputeGroupStats(nil)
	require.Equal(t, model.GroupStats{}, gs)

	u := uuid.Must(uuid.NewV4())
	durs := []int64{3600, 1800, 45, 0, 7201}
	var entries []model.TimeEntry
	var sum int64
	for _, d := range durs {
		entries = append(entries, entry(u, "X", secs(d), time.Now()))
		sum += d
	}
	entries = append(entries, entry(uuid.Must(uuid.NewV4()), "X", nil, time.Now()))

	gs = ComputeGroupStats(entries)
	require.Equal(t, len(entries), gs.Count)
	require.InDelta(t, float64(sum)/3600, gs.TotalHours, 1e-9)
	require.Equal(t, 2, gs.UniqueUserCount)
}

func TestTopNByValue(t *testing.T) {
	t.Parallel()

	var b model.Breakdown
	b.Add("a", 10)
	b.Add("b", 30)
	b.Add("c", 20)
	require.Equal(t, []model.KeyValue{{Key: "b", Value: 30}, {Key: "c", Value: 20}}, TopNByValue(b, 2))

	var ties model.Breakdown
	for _, k := range []string{"x", "y", "z", "w", "v", "u", "t"} {
		ties.Add(k, 1)
	}
	ties.Add("y", 1)
	got := TopNByValue(ties, 0)
	require.Len(t, got, DefaultTopN)
	require.Equal(t, "y", got[0].Key)
	require.Equal(t, []string{"x", "z", "w", "v"}, []string{got[1].Key, got[2].Key, got[3].Key, got[4].Key})

	require.Empty(t, TopNByValue(model.Breakdown{}, 3))
}
