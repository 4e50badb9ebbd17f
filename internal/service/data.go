package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/sitetime/internal/aggregate"
	"github.com/and161185/sitetime/internal/cache"
	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/observe"
	"github.com/and161185/sitetime/internal/repository"
)

// ReadOptions tune an aggregate read.
type ReadOptions struct {
	// Refresh bypasses a valid cached value and refetches from the store.
	Refresh bool
}

// DataService is the read/write façade over the remote store.
// Aggregate reads are cached per slot; every successful mutation invalidates the whole cache.
// Values returned from the cache are shared; callers must not modify them.
type DataService struct {
	stores repository.Stores
	cache  *cache.Manager
	obs    observe.Observer
	log    *zap.Logger
}

// NewDataService wires the façade. Nil observer and logger are replaced with no-ops.
func NewDataService(stores repository.Stores, c *cache.Manager, obs observe.Observer, log *zap.Logger) *DataService {
	if obs == nil {
		obs = observe.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = cache.New(cache.DefaultTTL, cache.WithObserver(obs))
	}
	return &DataService{stores: stores, cache: c, obs: obs, log: log}
}

// Initialize warms every cache slot concurrently. Failures are joined and returned;
// the service stays usable and simply misses on the failed slots.
func (s *DataService) Initialize(ctx context.Context) error {
	warm := []func(context.Context, ReadOptions) error{
		func(ctx context.Context, o ReadOptions) error {
			_, err := s.GetAllUsersAggregate(ctx, o)
			return err
		},
		func(ctx context.Context, o ReadOptions) error {
			_, err := s.GetTaskCatalogWithStats(ctx, o)
			return err
		},
		func(ctx context.Context, o ReadOptions) error {
			_, err := s.GetDeduplicatedJobAddresses(ctx, o)
			return err
		},
	}
	errsOut := make([]error, len(warm))
	var g errgroup.Group
	for i, fn := range warm {
		g.Go(func() error {
			errsOut[i] = fn(ctx, ReadOptions{Refresh: true})
			return errsOut[i]
		})
	}
	if g.Wait() == nil {
		return nil
	}

	err := errors.Join(errsOut...)
	s.log.Warn("cache warm-up incomplete", zap.Error(err))
	return err
}

// cachedRead serves slot from the cache or runs load and stores its result.
// When load fails, the last value written to the slot is served instead, if any.
func cachedRead[T any](ctx context.Context, s *DataService, slot cache.Slot, opts ReadOptions, load func(context.Context) (T, error)) (T, error) {
	if !opts.Refresh {
		if v, ok := s.cache.Read(slot); ok {
			if t, ok := v.(T); ok {
				return t, nil
			}
		}
	}

	gen := s.cache.Generation()
	start := time.Now()
	v, err := load(ctx)
	s.obs.Duration(observe.Fetch, string(slot), time.Since(start), err)
	if err != nil {
		if old, ok := s.cache.Stale(slot); ok {
			if t, ok := old.(T); ok {
				s.obs.Count(observe.StaleServed, string(slot))
				s.log.Warn("serving stale aggregate", zap.String("slot", string(slot)), zap.Error(err))
				return t, nil
			}
		}
		var zero T
		return zero, err
	}
	// A mutation that landed during load makes v outdated; return it but do not cache it.
	s.cache.WriteIf(slot, v, gen)
	return v, nil
}

// GetAllUsersAggregate returns per-user statistics keyed by username.
func (s *DataService) GetAllUsersAggregate(ctx context.Context, opts ReadOptions) (map[string]model.UserAggregate, error) {
	return cachedRead(ctx, s, cache.AllUsers, opts, s.loadAllUsers)
}

func (s *DataService) loadAllUsers(ctx context.Context) (map[string]model.UserAggregate, error) {
	var (
		users   []model.User
		entries []model.TimeEntry
		addrs   []model.JobAddress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.stores.Users.List(gctx, repository.Query{}.Sort(repository.ColUsername, false))
		return err
	})
	g.Go(func() (err error) {
		entries, err = s.stores.Entries.List(gctx, repository.Query{})
		return err
	})
	g.Go(func() (err error) {
		addrs, err = s.stores.JobAddresses.List(gctx, repository.Query{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate.ComputeAllUsersAggregate(users, entries, addrs), nil
}

// GetTaskCatalogWithStats returns the task catalog ordered by name, each with its usage.
func (s *DataService) GetTaskCatalogWithStats(ctx context.Context, opts ReadOptions) ([]model.TaskUsage, error) {
	return cachedRead(ctx, s, cache.Tasks, opts, s.loadTasks)
}

func (s *DataService) loadTasks(ctx context.Context) ([]model.TaskUsage, error) {
	var (
		tasks   []model.CSITask
		entries []model.TimeEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = s.stores.Tasks.List(gctx, repository.Query{}.Sort(repository.ColName, false))
		return err
	})
	g.Go(func() (err error) {
		entries, err = s.stores.Entries.List(gctx, repository.Query{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate.ComputeTaskUsageStats(tasks, entries), nil
}

// GetDeduplicatedJobAddresses returns every distinct job address label across users,
// ordered by label. Labels differing only in case or spacing collapse to the first seen.
func (s *DataService) GetDeduplicatedJobAddresses(ctx context.Context, opts ReadOptions) ([]string, error) {
	return cachedRead(ctx, s, cache.JobAddresses, opts, s.loadAddresses)
}

func (s *DataService) loadAddresses(ctx context.Context) ([]string, error) {
	addrs, err := s.stores.JobAddresses.List(ctx, repository.Query{}.Sort(repository.ColLabel, false))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		key := aggregate.NormalizeLabel(a.Label)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(a.Label))
	}
	return out, nil
}

// GetUserStats returns one user's statistics. A valid all-users aggregate is reused;
// otherwise the user's entries and addresses are fetched. The result is not cached.
func (s *DataService) GetUserStats(ctx context.Context, userID uuid.UUID, opts ReadOptions) (model.UserStats, error) {
	if !opts.Refresh {
		if v, ok := s.cache.Read(cache.AllUsers); ok {
			if all, ok := v.(map[string]model.UserAggregate); ok {
				for _, ua := range all {
					if ua.User.ID == userID {
						return ua.Stats, nil
					}
				}
			}
		}
	}

	var (
		entries []model.TimeEntry
		addrs   []model.JobAddress
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entries, err = s.stores.Entries.List(gctx, repository.Query{}.Filter(repository.ColUserID, userID))
		return err
	})
	g.Go(func() (err error) {
		addrs, err = s.stores.JobAddresses.List(gctx, repository.Query{}.Filter(repository.ColUserID, userID))
		return err
	})
	err := g.Wait()
	s.obs.Duration(observe.Fetch, "userStats", time.Since(start), err)
	if err != nil {
		return model.UserStats{}, err
	}
	return aggregate.ComputeUserStats(entries, addrs), nil
}

// TopDivisions returns a user's n largest divisions by logged seconds.
func (s *DataService) TopDivisions(ctx context.Context, userID uuid.UUID, n int, opts ReadOptions) ([]model.KeyValue, error) {
	st, err := s.GetUserStats(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	return aggregate.TopNByValue(st.DivisionBreakdown, n), nil
}

// ListUserEntries returns a user's entries, newest date first. limit <= 0 returns all.
func (s *DataService) ListUserEntries(ctx context.Context, userID uuid.UUID, limit int) ([]model.TimeEntry, error) {
	q := repository.Query{}.
		Filter(repository.ColUserID, userID).
		Sort(repository.ColDate, true).
		Sort(repository.ColStartTime, true)
	if limit > 0 {
		q = q.Take(limit)
	}
	return s.stores.Entries.List(ctx, q)
}

// GetTimeEntry loads one entry by id.
func (s *DataService) GetTimeEntry(ctx context.Context, id uuid.UUID) (*model.TimeEntry, error) {
	rows, err := s.stores.Entries.List(ctx, repository.Query{}.Filter(repository.ColID, id).Take(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.ErrNotFound
	}
	return &rows[0], nil
}

// GetJobAddress loads one address by id.
func (s *DataService) GetJobAddress(ctx context.Context, id uuid.UUID) (*model.JobAddress, error) {
	rows, err := s.stores.JobAddresses.List(ctx, repository.Query{}.Filter(repository.ColID, id).Take(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.ErrNotFound
	}
	return &rows[0], nil
}

// GetUserEntryGroups returns a user's entries grouped by year, month and biweek.
func (s *DataService) GetUserEntryGroups(ctx context.Context, userID uuid.UUID) (model.Grouping, error) {
	entries, err := s.ListUserEntries(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupByYearMonthBiweek(entries), nil
}

// ListJobAddresses returns a user's own addresses ordered by label.
func (s *DataService) ListJobAddresses(ctx context.Context, userID uuid.UUID) ([]model.JobAddress, error) {
	return s.stores.JobAddresses.List(ctx, repository.Query{}.
		Filter(repository.ColUserID, userID).
		Sort(repository.ColLabel, false))
}

// ListTasks returns the task catalog ordered by name.
func (s *DataService) ListTasks(ctx context.Context) ([]model.CSITask, error) {
	return s.stores.Tasks.List(ctx, repository.Query{}.Sort(repository.ColName, false))
}

// afterWrite records a mutation and invalidates the cache when it succeeded.
func (s *DataService) afterWrite(op string, start time.Time, err error) {
	s.obs.Duration(observe.Mutation, op, time.Since(start), err)
	if err != nil {
		return
	}
	s.cache.InvalidateAll()
}

func newID() (uuid.UUID, error) { return uuid.NewV4() }

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func spanSeconds(start, end time.Time) int64 {
	return int64(end.Sub(start) / time.Second)
}

// CreateTimeEntry stores a new entry. Timer entries with an end time get their duration
// computed from the span; manual entries are stored as given. A missing date defaults
// to the start day.
func (s *DataService) CreateTimeEntry(ctx context.Context, e model.TimeEntry) (*model.TimeEntry, error) {
	if e.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: entry without user", errs.ErrInvalid)
	}
	if e.StartTime.IsZero() {
		return nil, fmt.Errorf("%w: entry without start time", errs.ErrInvalid)
	}
	if e.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return nil, err
		}
		e.ID = id
	}
	if !e.Manual && e.EndTime != nil && e.Duration == nil {
		if e.EndTime.Before(e.StartTime) {
			return nil, fmt.Errorf("%w: end before start", errs.ErrInvalid)
		}
		d := spanSeconds(e.StartTime, *e.EndTime)
		e.Duration = &d
	}
	if e.Date == nil {
		d := calendarDay(e.StartTime)
		e.Date = &d
	}

	start := time.Now()
	out, err := s.stores.Entries.Create(ctx, &e)
	s.afterWrite("createTimeEntry", start, err)
	return out, err
}

// UpdateTimeEntry applies p. When both ends of a timer entry's span change and no
// duration is given, the duration is recomputed. Manual entries keep their duration.
func (s *DataService) UpdateTimeEntry(ctx context.Context, id uuid.UUID, p model.TimeEntryPatch) (*model.TimeEntry, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: empty patch", errs.ErrInvalid)
	}
	if p.StartTime != nil && p.EndTime != nil && p.Duration == nil && !p.EndTime.Before(*p.StartTime) {
		cur, err := s.GetTimeEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		if !cur.Manual {
			d := spanSeconds(*p.StartTime, *p.EndTime)
			p.Duration = &d
		}
	}

	start := time.Now()
	out, err := s.stores.Entries.Update(ctx, id, p)
	s.afterWrite("updateTimeEntry", start, err)
	return out, err
}

// DeleteTimeEntry removes an entry.
func (s *DataService) DeleteTimeEntry(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.stores.Entries.Delete(ctx, id)
	s.afterWrite("deleteTimeEntry", start, err)
	return err
}

// CreateJobAddress stores a new address label for a user.
func (s *DataService) CreateJobAddress(ctx context.Context, userID uuid.UUID, label string) (*model.JobAddress, error) {
	label = strings.TrimSpace(label)
	if userID == uuid.Nil || label == "" {
		return nil, fmt.Errorf("%w: address needs user and label", errs.ErrInvalid)
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.stores.JobAddresses.Create(ctx, &model.JobAddress{ID: id, UserID: userID, Label: label})
	s.afterWrite("createJobAddress", start, err)
	return out, err
}

// UpdateJobAddress relabels an address.
func (s *DataService) UpdateJobAddress(ctx context.Context, id uuid.UUID, label string) (*model.JobAddress, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", errs.ErrInvalid)
	}

	start := time.Now()
	out, err := s.stores.JobAddresses.UpdateLabel(ctx, id, label)
	s.afterWrite("updateJobAddress", start, err)
	return out, err
}

// DeleteJobAddress removes an address.
func (s *DataService) DeleteJobAddress(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.stores.JobAddresses.Delete(ctx, id)
	s.afterWrite("deleteJobAddress", start, err)
	return err
}

// CreateTask adds a task to the catalog.
func (s *DataService) CreateTask(ctx context.Context, name string) (*model.CSITask, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty task name", errs.ErrInvalid)
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.stores.Tasks.Create(ctx, &model.CSITask{ID: id, Name: name})
	s.afterWrite("createTask", start, err)
	return out, err
}

// RenameTask renames a catalog row. Entries filed under the old name keep it and
// stop matching the task in usage statistics.
func (s *DataService) RenameTask(ctx context.Context, id uuid.UUID, name string) (*model.CSITask, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty task name", errs.ErrInvalid)
	}

	start := time.Now()
	out, err := s.stores.Tasks.Rename(ctx, id, name)
	s.afterWrite("renameTask", start, err)
	if err == nil {
		s.log.Warn("task renamed without updating entries", zap.String("task", id.String()), zap.String("name", name))
	}
	return out, err
}

// DeleteTask removes a task from the catalog.
func (s *DataService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.stores.Tasks.Delete(ctx, id)
	s.afterWrite("deleteTask", start, err)
	return err
}
