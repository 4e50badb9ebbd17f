package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/and161185/sitetime/internal/config"
	"github.com/and161185/sitetime/internal/kv"
)

// deps opens the resources a command needs. Tests swap them for in-memory fakes.
type deps struct {
	openStore func(ctx context.Context, cfg config.Config) (kv.Store, func(), error)
	openApp   func(ctx context.Context, cfg config.Config, store kv.Store) (*app, func(), error)
	dial      func(ctx context.Context, o remoteOptions, bearer string) (grpc.ClientConnInterface, func(), error)
	migrate   func(ctx context.Context, dsn string) error
}

type cli struct {
	deps deps
	in   io.Reader
	out  io.Writer
	v    *viper.Viper

	cfgFile string
	envFile string
	cfg     config.Config

	store   kv.Store
	app     *app
	closers []func()
}

func newCLI(d deps, in io.Reader, out io.Writer) *cli {
	return &cli{deps: d, in: in, out: out, v: config.New()}
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitetime",
		Short: "Site time reporting client",
		Long: `sitetime records construction site time entries and reports on them.

CONFIGURATION:
  Settings come from flags, SITETIME_* environment variables, a .env file and an
  optional YAML file, in that order of precedence.

    SITETIME_DSN          PostgreSQL DSN
    SITETIME_JWT_KEY      key signing the saved session
    SITETIME_SESSION_DB   local session database
    SITETIME_CACHE_TTL    aggregate cache lifetime (default 5m)

EXAMPLES:
  sitetime login -u alice
  sitetime entry add --start "2024-03-14 08:00" --end "2024-03-14 12:00" --division Plumbing
  sitetime stats --top 3
  sitetime report`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(c.v, c.cfgFile, c.envFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)

	f := root.PersistentFlags()
	f.StringVar(&c.cfgFile, "config", "", "YAML config file")
	f.StringVar(&c.envFile, "env-file", ".env", "dotenv file")
	f.String("dsn", "", "PostgreSQL DSN (overrides SITETIME_DSN)")
	f.String("jwt-key", "", "session signing key (overrides SITETIME_JWT_KEY)")
	f.String("session-db", "", "local session database (overrides SITETIME_SESSION_DB)")
	f.String("log-level", "", "log level (overrides SITETIME_LOG_LEVEL)")
	for key, name := range map[string]string{
		config.KeyDSN:       "dsn",
		config.KeyJWTKey:    "jwt-key",
		config.KeySessionDB: "session-db",
		config.KeyLogLevel:  "log-level",
	} {
		_ = c.v.BindPFlag(key, f.Lookup(name))
	}

	root.AddCommand(
		c.versionCmd(),
		c.migrateCmd(),
		c.registerCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.statsCmd(),
		c.usersCmd(),
		c.tasksCmd(),
		c.addressesCmd(),
		c.reportCmd(),
		c.entriesCmd(),
		c.entryCmd(),
		c.taskCmd(),
		c.addressCmd(),
		c.remoteCmd(),
	)
	return root
}

func (c *cli) localStore(ctx context.Context) (kv.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	s, closeFn, err := c.deps.openStore(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeFn)
	c.store = s
	return s, nil
}

func (c *cli) local(ctx context.Context) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := c.localStore(ctx)
	if err != nil {
		return nil, err
	}
	a, closeFn, err := c.deps.openApp(ctx, c.cfg, store)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeFn)
	c.app = a
	return a, nil
}

// close releases opened resources in reverse order.
func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
