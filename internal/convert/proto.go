// Package convert maps domain values to and from google.protobuf.Struct messages
// carried by the reporting API.
package convert

import (
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/and161185/sitetime/internal/aggregate"
	"github.com/and161185/sitetime/internal/model"
)

// --- helpers ---

// FormatTime renders t as an RFC 3339 UTC string, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return timestamppb.New(t).AsTime().Format(time.RFC3339Nano)
}

// ParseTime parses an RFC 3339 string and rejects values outside the protobuf timestamp range.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if err := timestamppb.New(t).CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

const dateLayout = "2006-01-02"

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

func optDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

// Str returns the string field key of s, or "" when absent or not a string.
func Str(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// Has reports whether key is present and not null.
func Has(s *structpb.Struct, key string) bool {
	if s == nil {
		return false
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

// UUID parses the string field key of s as a UUID.
func UUID(s *structpb.Struct, key string) (u.UUID, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(Str(s, key))); err != nil {
		return u.Nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return id, nil
}

// Int returns the numeric field key of s truncated to an integer.
func Int(s *structpb.Struct, key string) int64 {
	if s == nil {
		return 0
	}
	return int64(s.GetFields()[key].GetNumberValue())
}

func optTimeField(s *structpb.Struct, key string) (*time.Time, error) {
	if !Has(s, key) {
		return nil, nil
	}
	t, err := ParseTime(Str(s, key))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optDateField(s *structpb.Struct, key string) (*time.Time, error) {
	if !Has(s, key) {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, Str(s, key))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &t, nil
}

func optString(s *structpb.Struct, key string) *string {
	if !Has(s, key) {
		return nil
	}
	v := Str(s, key)
	return &v
}

// --- domain -> wire ---

// UserMap renders the public fields of a user.
func UserMap(usr model.User) map[string]any {
	return map[string]any{
		"id":          usr.ID.String(),
		"username":    usr.Username,
		"displayName": usr.DisplayName,
		"role":        string(usr.Role),
	}
}

// BreakdownList renders a breakdown as an ordered list of {division, seconds}.
func BreakdownList(b model.Breakdown) []any {
	out := make([]any, 0, b.Len())
	for _, k := range b.Keys() {
		v, _ := b.Get(k)
		out = append(out, map[string]any{"division": k, "seconds": v})
	}
	return out
}

// UserStatsMap renders per-user statistics.
func UserStatsMap(st model.UserStats) map[string]any {
	return map[string]any{
		"totalEntries":      st.TotalEntries,
		"totalHours":        st.TotalHours,
		"divisionBreakdown": BreakdownList(st.DivisionBreakdown),
		"lastEntry":         optTime(st.LastEntry),
		"totalJobAddresses": st.TotalJobAddresses,
	}
}

// AllUsersStruct renders the all-users aggregate keyed by username.
func AllUsersStruct(all map[string]model.UserAggregate) (*structpb.Struct, error) {
	users := make(map[string]any, len(all))
	for name, ua := range all {
		users[name] = map[string]any{
			"user":            UserMap(ua.User),
			"stats":           UserStatsMap(ua.Stats),
			"jobAddressCount": ua.JobAddressCount,
			"entryCount":      ua.EntryCount,
		}
	}
	return structpb.NewStruct(map[string]any{"users": users})
}

// TaskMap renders a catalog task.
func TaskMap(t model.CSITask) map[string]any {
	return map[string]any{
		"id":        t.ID.String(),
		"name":      t.Name,
		"createdAt": FormatTime(t.CreatedAt),
	}
}

// TaskUsageStruct renders the task catalog with usage, keeping its order.
func TaskUsageStruct(tasks []model.TaskUsage) (*structpb.Struct, error) {
	list := make([]any, 0, len(tasks))
	for _, t := range tasks {
		m := TaskMap(t.Task)
		m["usageCount"] = t.UsageCount
		m["totalHours"] = t.TotalHours
		m["uniqueUserCount"] = t.UniqueUserCount
		list = append(list, m)
	}
	return structpb.NewStruct(map[string]any{"tasks": list})
}

// LabelsStruct renders a list of job address labels.
func LabelsStruct(labels []string) (*structpb.Struct, error) {
	list := make([]any, 0, len(labels))
	for _, l := range labels {
		list = append(list, l)
	}
	return structpb.NewStruct(map[string]any{"addresses": list})
}

// JobAddressMap renders a job address.
func JobAddressMap(a model.JobAddress) map[string]any {
	return map[string]any{
		"id":        a.ID.String(),
		"userId":    a.UserID.String(),
		"label":     a.Label,
		"createdAt": FormatTime(a.CreatedAt),
	}
}

// EntryMap renders a time entry.
func EntryMap(e model.TimeEntry) map[string]any {
	var dur any
	if e.Duration != nil {
		dur = *e.Duration
	}
	return map[string]any{
		"id":          e.ID.String(),
		"userId":      e.UserID.String(),
		"startTime":   FormatTime(e.StartTime),
		"endTime":     optTime(e.EndTime),
		"duration":    dur,
		"jobAddress":  e.JobAddress,
		"csiDivision": e.CSIDivision,
		"notes":       e.Notes,
		"date":        optDate(e.Date),
		"manual":      e.Manual,
		"createdAt":   FormatTime(e.CreatedAt),
	}
}

// GroupingStruct renders a year/month/biweek grouping as a flat list of populated periods,
// newest first.
func GroupingStruct(g model.Grouping) (*structpb.Struct, error) {
	leaves := aggregate.FlattenGrouping(g)
	list := make([]any, 0, len(leaves))
	for _, l := range leaves {
		entries := make([]any, 0, len(l.Entries))
		for _, e := range l.Entries {
			entries = append(entries, EntryMap(e))
		}
		list = append(list, map[string]any{
			"year":            l.Year,
			"month":           l.Month,
			"period":          string(l.Period),
			"count":           l.Stats.Count,
			"totalHours":      l.Stats.TotalHours,
			"uniqueUserCount": l.Stats.UniqueUserCount,
			"entries":         entries,
		})
	}
	return structpb.NewStruct(map[string]any{"groups": list})
}

// Struct wraps a single map, the common response shape.
func Struct(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(m)
}

// --- wire -> domain ---

// EntryFromStruct reads a new time entry. userId is left for the caller to fill.
func EntryFromStruct(s *structpb.Struct) (model.TimeEntry, error) {
	var e model.TimeEntry
	start, err := ParseTime(Str(s, "startTime"))
	if err != nil {
		return e, err
	}
	e.StartTime = start
	if e.EndTime, err = optTimeField(s, "endTime"); err != nil {
		return e, err
	}
	if e.Date, err = optDateField(s, "date"); err != nil {
		return e, err
	}
	if Has(s, "duration") {
		d := Int(s, "duration")
		e.Duration = &d
	}
	e.JobAddress = Str(s, "jobAddress")
	e.CSIDivision = Str(s, "csiDivision")
	e.Notes = Str(s, "notes")
	e.Manual = s.GetFields()["manual"].GetBoolValue()
	return e, nil
}

// EntryPatchFromStruct reads the present fields of an entry update.
func EntryPatchFromStruct(s *structpb.Struct) (model.TimeEntryPatch, error) {
	var (
		p   model.TimeEntryPatch
		err error
	)
	if p.StartTime, err = optTimeField(s, "startTime"); err != nil {
		return p, err
	}
	if p.EndTime, err = optTimeField(s, "endTime"); err != nil {
		return p, err
	}
	if p.Date, err = optDateField(s, "date"); err != nil {
		return p, err
	}
	if Has(s, "duration") {
		d := Int(s, "duration")
		p.Duration = &d
	}
	p.JobAddress = optString(s, "jobAddress")
	p.CSIDivision = optString(s, "csiDivision")
	p.Notes = optString(s, "notes")
	return p, nil
}
