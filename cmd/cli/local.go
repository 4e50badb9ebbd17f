package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	u "github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/sitetime/internal/cache"
	"github.com/and161185/sitetime/internal/config"
	"github.com/and161185/sitetime/internal/kv"
	"github.com/and161185/sitetime/internal/kv/sqlite"
	"github.com/and161185/sitetime/internal/limiter"
	"github.com/and161185/sitetime/internal/migrate"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/observe"
	"github.com/and161185/sitetime/internal/repository/postgres"
	"github.com/and161185/sitetime/internal/service"
	"github.com/and161185/sitetime/internal/token"
)

type sessions interface {
	RestoreSession(ctx context.Context) (*model.User, bool)
	SignIn(ctx context.Context, username, password string) (*model.User, error)
	SignOut(ctx context.Context) error
}

type registrar interface {
	Register(ctx context.Context, username, displayName, password string, role model.Role) (model.User, error)
}

type dataAPI interface {
	GetAllUsersAggregate(ctx context.Context, opts service.ReadOptions) (map[string]model.UserAggregate, error)
	GetTaskCatalogWithStats(ctx context.Context, opts service.ReadOptions) ([]model.TaskUsage, error)
	GetDeduplicatedJobAddresses(ctx context.Context, opts service.ReadOptions) ([]string, error)
	GetUserStats(ctx context.Context, userID u.UUID, opts service.ReadOptions) (model.UserStats, error)
	ListUserEntries(ctx context.Context, userID u.UUID, limit int) ([]model.TimeEntry, error)
	GetTimeEntry(ctx context.Context, id u.UUID) (*model.TimeEntry, error)
	GetJobAddress(ctx context.Context, id u.UUID) (*model.JobAddress, error)
	GetUserEntryGroups(ctx context.Context, userID u.UUID) (model.Grouping, error)
	ListJobAddresses(ctx context.Context, userID u.UUID) ([]model.JobAddress, error)

	CreateTimeEntry(ctx context.Context, e model.TimeEntry) (*model.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, id u.UUID, p model.TimeEntryPatch) (*model.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id u.UUID) error
	CreateJobAddress(ctx context.Context, userID u.UUID, label string) (*model.JobAddress, error)
	UpdateJobAddress(ctx context.Context, id u.UUID, label string) (*model.JobAddress, error)
	DeleteJobAddress(ctx context.Context, id u.UUID) error
	CreateTask(ctx context.Context, name string) (*model.CSITask, error)
	RenameTask(ctx context.Context, id u.UUID, name string) (*model.CSITask, error)
	DeleteTask(ctx context.Context, id u.UUID) error
}

var (
	_ sessions  = (*service.SessionManager)(nil)
	_ registrar = (*service.AuthServiceImpl)(nil)
	_ dataAPI   = (*service.DataService)(nil)
)

// app is the signed-in view of the remote store.
type app struct {
	sessions sessions
	accounts registrar
	data     dataAPI
}

func defaultDeps() deps {
	return deps{
		openStore: openSQLiteStore,
		openApp:   openPostgresApp,
		dial:      dialRemote,
		migrate:   migrate.Up,
	}
}

func openSQLiteStore(ctx context.Context, cfg config.Config) (kv.Store, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o700); err != nil {
		return nil, nil, fmt.Errorf("session dir: %w", err)
	}
	s, err := sqlite.Open(ctx, cfg.SessionDB)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func openPostgresApp(ctx context.Context, cfg config.Config, store kv.Store) (*app, func(), error) {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	stores := db.Stores()

	issuer := token.NewIssuer([]byte(cfg.JWTKey), cfg.AccessTTL)
	lim := limiter.NewPG(db.Pool, cfg.LimiterWindow, cfg.LimiterMaxFails, cfg.LimiterBlock)
	obs := observe.NewZap(log)

	auth := service.NewAuthService(stores.Users, issuer, lim)
	a := &app{
		sessions: service.NewSessionManager(auth, stores.Users, store, issuer, cfg.Origin, log),
		accounts: auth,
		data:     service.NewDataService(stores, cache.New(cfg.CacheTTL, cache.WithObserver(obs)), obs, log),
	}
	return a, func() {
		db.Close()
		_ = log.Sync()
	}, nil
}
