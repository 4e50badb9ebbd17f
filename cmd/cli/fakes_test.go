package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	u "github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sitetime/internal/config"
	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/kv"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/service"
)

// ---- sessions / accounts ----

type fakeSessions struct {
	users    map[string]model.User
	password string
	current  *model.User
}

var _ sessions = (*fakeSessions)(nil)

func (f *fakeSessions) RestoreSession(context.Context) (*model.User, bool) {
	return f.current, f.current != nil
}

func (f *fakeSessions) SignIn(_ context.Context, username, password string) (*model.User, error) {
	usr, ok := f.users[username]
	if !ok || password != f.password {
		return nil, errs.ErrUnauthorized
	}
	f.current = &usr
	return &usr, nil
}

func (f *fakeSessions) SignOut(context.Context) error {
	f.current = nil
	return nil
}

type fakeAccounts struct {
	registered []model.User
}

var _ registrar = (*fakeAccounts)(nil)

func (f *fakeAccounts) Register(_ context.Context, username, displayName, _ string, role model.Role) (model.User, error) {
	if role == "" {
		role = model.RoleUser
	}
	usr := model.User{ID: u.Must(u.NewV4()), Username: username, DisplayName: displayName, Role: role}
	f.registered = append(f.registered, usr)
	return usr, nil
}

// ---- data ----

type fakeData struct {
	all       map[string]model.UserAggregate
	stats     map[u.UUID]model.UserStats
	entries   map[u.UUID]model.TimeEntry
	addresses map[u.UUID]model.JobAddress
	tasks     map[u.UUID]model.CSITask

	lastCreated model.TimeEntry
	lastPatch   model.TimeEntryPatch
	lastOpts    service.ReadOptions
	deleted     []u.UUID
}

var _ dataAPI = (*fakeData)(nil)

func newFakeData() *fakeData {
	return &fakeData{
		all:       map[string]model.UserAggregate{},
		stats:     map[u.UUID]model.UserStats{},
		entries:   map[u.UUID]model.TimeEntry{},
		addresses: map[u.UUID]model.JobAddress{},
		tasks:     map[u.UUID]model.CSITask{},
	}
}

func (f *fakeData) GetAllUsersAggregate(_ context.Context, opts service.ReadOptions) (map[string]model.UserAggregate, error) {
	f.lastOpts = opts
	return f.all, nil
}

func (f *fakeData) GetTaskCatalogWithStats(_ context.Context, opts service.ReadOptions) ([]model.TaskUsage, error) {
	f.lastOpts = opts
	out := make([]model.TaskUsage, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, model.TaskUsage{Task: t})
	}
	return out, nil
}

func (f *fakeData) GetDeduplicatedJobAddresses(_ context.Context, opts service.ReadOptions) ([]string, error) {
	f.lastOpts = opts
	return []string{"12 Main St", "9 Elm Rd"}, nil
}

func (f *fakeData) GetUserStats(_ context.Context, userID u.UUID, opts service.ReadOptions) (model.UserStats, error) {
	f.lastOpts = opts
	return f.stats[userID], nil
}

func (f *fakeData) ListUserEntries(_ context.Context, userID u.UUID, limit int) ([]model.TimeEntry, error) {
	var out []model.TimeEntry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeData) GetTimeEntry(_ context.Context, id u.UUID) (*model.TimeEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &e, nil
}

func (f *fakeData) GetJobAddress(_ context.Context, id u.UUID) (*model.JobAddress, error) {
	a, ok := f.addresses[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (f *fakeData) GetUserEntryGroups(ctx context.Context, userID u.UUID) (model.Grouping, error) {
	entries, _ := f.ListUserEntries(ctx, userID, 0)
	g := model.Grouping{}
	for _, e := range entries {
		y, m := e.StartTime.Year(), int(e.StartTime.Month())-1
		if g[y] == nil {
			g[y] = map[int]map[model.BiweekPeriod][]model.TimeEntry{}
		}
		if g[y][m] == nil {
			g[y][m] = map[model.BiweekPeriod][]model.TimeEntry{}
		}
		g[y][m][model.FirstHalf] = append(g[y][m][model.FirstHalf], e)
	}
	return g, nil
}

func (f *fakeData) ListJobAddresses(_ context.Context, userID u.UUID) ([]model.JobAddress, error) {
	var out []model.JobAddress
	for _, a := range f.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeData) CreateTimeEntry(_ context.Context, e model.TimeEntry) (*model.TimeEntry, error) {
	e.ID = u.Must(u.NewV4())
	f.lastCreated = e
	f.entries[e.ID] = e
	return &e, nil
}

func (f *fakeData) UpdateTimeEntry(_ context.Context, id u.UUID, p model.TimeEntryPatch) (*model.TimeEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if p.Empty() {
		return nil, errs.ErrInvalid
	}
	f.lastPatch = p
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	f.entries[id] = e
	return &e, nil
}

func (f *fakeData) DeleteTimeEntry(_ context.Context, id u.UUID) error {
	f.deleted = append(f.deleted, id)
	delete(f.entries, id)
	return nil
}

func (f *fakeData) CreateJobAddress(_ context.Context, userID u.UUID, label string) (*model.JobAddress, error) {
	a := model.JobAddress{ID: u.Must(u.NewV4()), UserID: userID, Label: label}
	f.addresses[a.ID] = a
	return &a, nil
}

func (f *fakeData) UpdateJobAddress(_ context.Context, id u.UUID, label string) (*model.JobAddress, error) {
	a, ok := f.addresses[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	a.Label = label
	f.addresses[id] = a
	return &a, nil
}

func (f *fakeData) DeleteJobAddress(_ context.Context, id u.UUID) error {
	f.deleted = append(f.deleted, id)
	delete(f.addresses, id)
	return nil
}

func (f *fakeData) CreateTask(_ context.Context, name string) (*model.CSITask, error) {
	t := model.CSITask{ID: u.Must(u.NewV4()), Name: name}
	f.tasks[t.ID] = t
	return &t, nil
}

func (f *fakeData) RenameTask(_ context.Context, id u.UUID, name string) (*model.CSITask, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	t.Name = name
	f.tasks[id] = t
	return &t, nil
}

func (f *fakeData) DeleteTask(_ context.Context, id u.UUID) error {
	f.deleted = append(f.deleted, id)
	delete(f.tasks, id)
	return nil
}

// ---- harness ----

type fixture struct {
	cli      *cli
	out      *bytes.Buffer
	store    *kv.Memory
	sessions *fakeSessions
	accounts *fakeAccounts
	data     *fakeData
	alice    model.User
	bob      model.User
	root     model.User
	migrated string
}

func newFixture(t *testing.T, stdin string) *fixture {
	t.Helper()
	t.Setenv("SITETIME_JWT_KEY", "test-key")
	t.Setenv("SITETIME_DSN", "postgres://test")
	t.Setenv("SITETIME_SESSION_DB", t.TempDir()+"/session.db")

	fx := &fixture{
		out:      &bytes.Buffer{},
		store:    kv.NewMemory(),
		accounts: &fakeAccounts{},
		data:     newFakeData(),
		alice:    model.User{ID: u.Must(u.NewV4()), Username: "alice", Role: model.RoleUser},
		bob:      model.User{ID: u.Must(u.NewV4()), Username: "bob", Role: model.RoleUser},
		root:     model.User{ID: u.Must(u.NewV4()), Username: "root", Role: model.RoleAdmin},
	}
	fx.sessions = &fakeSessions{
		users:    map[string]model.User{"alice": fx.alice, "bob": fx.bob, "root": fx.root},
		password: "pw",
	}
	for _, usr := range []model.User{fx.alice, fx.bob, fx.root} {
		fx.data.all[usr.Username] = model.UserAggregate{User: usr}
	}

	a := &app{sessions: fx.sessions, accounts: fx.accounts, data: fx.data}
	fx.cli = newCLI(deps{
		openStore: func(context.Context, config.Config) (kv.Store, func(), error) {
			return fx.store, func() {}, nil
		},
		openApp: func(context.Context, config.Config, kv.Store) (*app, func(), error) {
			return a, func() {}, nil
		},
		migrate: func(_ context.Context, dsn string) error {
			fx.migrated = dsn
			return nil
		},
	}, strings.NewReader(stdin), fx.out)
	t.Cleanup(fx.cli.close)
	return fx
}

func (fx *fixture) as(usr model.User) *fixture {
	fx.sessions.current = &usr
	return fx
}

// run executes one command line and returns its output.
func (fx *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	fx.out.Reset()
	root := fx.cli.root()
	root.SetArgs(append(args, "--env-file", ""))
	err := root.ExecuteContext(context.Background())
	return fx.out.String(), err
}

func (fx *fixture) addEntry(owner model.User, start time.Time) model.TimeEntry {
	dur := int64(3600)
	e := model.TimeEntry{ID: u.Must(u.NewV4()), UserID: owner.ID, StartTime: start, Duration: &dur, CSIDivision: "Plumbing"}
	fx.data.entries[e.ID] = e
	return e
}

func mustJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), s)
	return m
}
