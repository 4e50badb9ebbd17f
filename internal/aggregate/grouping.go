package aggregate

import (
	"sort"
	"time"

	"github.com/and161185/sitetime/internal/model"
)

// biweekSplitDay is the last day of the month that belongs to the first half.
const biweekSplitDay = 15

// groupingDate returns the calendar date an entry is filed under.
// The stored date wins; otherwise the creation timestamp is used in its own zone.
func groupingDate(e model.TimeEntry) (year int, month time.Month, day int) {
	switch {
	case e.Date != nil:
		return e.Date.Date()
	case !e.CreatedAt.IsZero():
		return e.CreatedAt.Date()
	default:
		return e.StartTime.Date()
	}
}

// BiweekOf returns the biweek period for a day of month.
func BiweekOf(day int) model.BiweekPeriod {
	if day <= biweekSplitDay {
		return model.FirstHalf
	}
	return model.SecondHalf
}

// GroupByYearMonthBiweek partitions entries into year -> month (0-11) -> biweek period.
// Every entry lands in exactly one leaf; input order is kept within a leaf.
func GroupByYearMonthBiweek(entries []model.TimeEntry) model.Grouping {
	g := make(model.Grouping)
	for _, e := range entries {
		y, m, d := groupingDate(e)
		months, ok := g[y]
		if !ok {
			months = make(map[int]map[model.BiweekPeriod][]model.TimeEntry)
			g[y] = months
		}
		mi := int(m) - 1
		periods, ok := months[mi]
		if !ok {
			periods = make(map[model.BiweekPeriod][]model.TimeEntry, 2)
			months[mi] = periods
		}
		p := BiweekOf(d)
		periods[p] = append(periods[p], e)
	}
	return g
}

// Leaf is one populated biweek bucket of a grouping.
type Leaf struct {
	Year    int
	Month   int // 0-11
	Period  model.BiweekPeriod
	Entries []model.TimeEntry
	Stats   model.GroupStats
}

// FlattenGrouping lists the populated leaves, newest year and month first,
// with the second half of a month before the first.
func FlattenGrouping(g model.Grouping) []Leaf {
	years := make([]int, 0, len(g))
	for y := range g {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	var out []Leaf
	for _, y := range years {
		months := make([]int, 0, len(g[y]))
		for m := range g[y] {
			months = append(months, m)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(months)))
		for _, m := range months {
			for _, p := range []model.BiweekPeriod{model.SecondHalf, model.FirstHalf} {
				entries, ok := g[y][m][p]
				if !ok || len(entries) == 0 {
					continue
				}
				out = append(out, Leaf{
					Year:    y,
					Month:   m,
					Period:  p,
					Entries: entries,
					Stats:   ComputeGroupStats(entries),
				})
			}
		}
	}
	return out
}
