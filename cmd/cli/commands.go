package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/sitetime/internal/aggregate"
	"github.com/and161185/sitetime/internal/convert"
	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/service"
)

// ---- session helpers ----

func (c *cli) signedIn(ctx context.Context) (*app, *model.User, error) {
	a, err := c.local(ctx)
	if err != nil {
		return nil, nil, err
	}
	me, ok := a.sessions.RestoreSession(ctx)
	if !ok {
		return nil, nil, fmt.Errorf("%w: run sitetime login", errs.ErrNoSession)
	}
	return a, me, nil
}

func (c *cli) admin(ctx context.Context) (*app, *model.User, error) {
	a, me, err := c.signedIn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !me.IsAdmin() {
		return nil, nil, fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	return a, me, nil
}

func parseID(s string) (u.UUID, error) {
	id, err := u.FromString(s)
	if err != nil {
		return u.Nil, fmt.Errorf("%w: bad id %q", errs.ErrInvalid, s)
	}
	return id, nil
}

// resolveUser returns me, or the named user when an admin asks for someone else.
func resolveUser(ctx context.Context, a *app, me *model.User, username string, opts service.ReadOptions) (model.User, error) {
	if username == "" || username == me.Username {
		return *me, nil
	}
	if !me.IsAdmin() {
		return model.User{}, fmt.Errorf("%w: only admins may inspect other users", errs.ErrForbidden)
	}
	all, err := a.data.GetAllUsersAggregate(ctx, opts)
	if err != nil {
		return model.User{}, err
	}
	agg, ok := all[username]
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %q", errs.ErrNotFound, username)
	}
	return agg.User, nil
}

func ownEntry(ctx context.Context, a *app, me *model.User, id u.UUID) error {
	e, err := a.data.GetTimeEntry(ctx, id)
	if err != nil {
		return err
	}
	if e.UserID != me.ID && !me.IsAdmin() {
		return fmt.Errorf("%w: entry belongs to another user", errs.ErrForbidden)
	}
	return nil
}

func ownAddress(ctx context.Context, a *app, me *model.User, id u.UUID) error {
	ja, err := a.data.GetJobAddress(ctx, id)
	if err != nil {
		return err
	}
	if ja.UserID != me.ID && !me.IsAdmin() {
		return fmt.Errorf("%w: job address belongs to another user", errs.ErrForbidden)
	}
	return nil
}

// ---- account ----

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return c.say("sitetime %s (%s)", version, buildDate)
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.DSN == "" {
				return errors.New("dsn is required")
			}
			if err := c.deps.migrate(cmd.Context(), c.cfg.DSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return c.say("schema up to date")
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var username, password, displayName, role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long:  "Create an account. Creating an admin requires an admin session.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.local(ctx)
			if err != nil {
				return err
			}
			r := model.Role(role)
			if r == model.RoleAdmin {
				me, ok := a.sessions.RestoreSession(ctx)
				if !ok || !me.IsAdmin() {
					return fmt.Errorf("%w: only admins may create admins", errs.ErrForbidden)
				}
			}
			pw, err := readSecret(c.in, password, "password")
			if err != nil {
				return err
			}
			usr, err := a.accounts.Register(ctx, username, displayName, pw, r)
			if err != nil {
				return err
			}
			return c.emit(convert.Struct(convert.UserMap(usr)))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&username, "username", "u", "", "username")
	f.StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	f.StringVar(&displayName, "display-name", "", "display name (defaults to username)")
	f.StringVar(&role, "role", string(model.RoleUser), "role: user or admin")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.local(ctx)
			if err != nil {
				return err
			}
			pw, err := readSecret(c.in, password, "password")
			if err != nil {
				return err
			}
			usr, err := a.sessions.SignIn(ctx, username, pw)
			if err != nil {
				return err
			}
			return c.say("signed in as %s (%s)", usr.Username, usr.Role)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.local(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.sessions.SignOut(cmd.Context()); err != nil {
				return err
			}
			return c.say("signed out")
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, me, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			return c.emit(convert.Struct(convert.UserMap(*me)))
		},
	}
}

// ---- reports ----

func (c *cli) statsCmd() *cobra.Command {
	var (
		username string
		top      int
		refresh  bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show hours and division breakdown for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, me, err := c.signedIn(ctx)
			if err != nil {
				return err
			}
			opts := service.ReadOptions{Refresh: refresh}
			target, err := resolveUser(ctx, a, me, username, opts)
			if err != nil {
				return err
			}
			st, err := a.data.GetUserStats(ctx, target.ID, opts)
			if err != nil {
				return err
			}
			ranked := aggregate.TopNByValue(st.DivisionBreakdown, top)
			list := make([]any, 0, len(ranked))
			for _, kv := range ranked {
				list = append(list, map[string]any{"division": kv.Key, "seconds": kv.Value})
			}
			return c.emit(convert.Struct(map[string]any{
				"user":         convert.UserMap(target),
				"stats":        convert.UserStatsMap(st),
				"topDivisions": list,
			}))
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username to inspect (admin only)")
	cmd.Flags().IntVar(&top, "top", aggregate.DefaultTopN, "number of divisions to rank")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the aggregate cache")
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Show the all-users rollup (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := c.admin(cmd.Context())
			if err != nil {
				return err
			}
			all, err := a.data.GetAllUsersAggregate(cmd.Context(), service.ReadOptions{Refresh: refresh})
			if err != nil {
				return err
			}
			return c.emit(convert.AllUsersStruct(all))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the aggregate cache")
	return cmd
}

func (c *cli) tasksCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Show the task catalog with usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := c.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := a.data.GetTaskCatalogWithStats(cmd.Context(), service.ReadOptions{Refresh: refresh})
			if err != nil {
				return err
			}
			return c.emit(convert.TaskUsageStruct(tasks))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the aggregate cache")
	return cmd
}

func (c *cli) addressesCmd() *cobra.Command {
	var mine, refresh bool
	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "Show known job addresses",
		Long:  "Show every distinct job address label, or with --mine your own addresses and their ids.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, me, err := c.signedIn(ctx)
			if err != nil {
				return err
			}
			if !mine {
				labels, err := a.data.GetDeduplicatedJobAddresses(ctx, service.ReadOptions{Refresh: refresh})
				if err != nil {
					return err
				}
				return c.emit(convert.LabelsStruct(labels))
			}
			own, err := a.data.ListJobAddresses(ctx, me.ID)
			if err != nil {
				return err
			}
			list := make([]any, 0, len(own))
			for _, ja := range own {
				list = append(list, convert.JobAddressMap(ja))
			}
			return c.emit(convert.Struct(map[string]any{"addresses": list}))
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "list your own addresses with ids")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the aggregate cache")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Group a user's entries by year, month and half-month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, me, err := c.signedIn(ctx)
			if err != nil {
				return err
			}
			target, err := resolveUser(ctx, a, me, username, service.ReadOptions{})
			if err != nil {
				return err
			}
			g, err := a.data.GetUserEntryGroups(ctx, target.ID)
			if err != nil {
				return err
			}
			return c.emit(convert.GroupingStruct(g))
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username to report on (admin only)")
	return cmd
}

func (c *cli) entriesCmd() *cobra.Command {
	var (
		username string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List recent time entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, me, err := c.signedIn(ctx)
			if err != nil {
				return err
			}
			target, err := resolveUser(ctx, a, me, username, service.ReadOptions{})
			if err != nil {
				return err
			}
			entries, err := a.data.ListUserEntries(ctx, target.ID, limit)
			if err != nil {
				return err
			}
			list := make([]any, 0, len(entries))
			for _, e := range entries {
				list = append(list, convert.EntryMap(e))
			}
			return c.emit(convert.Struct(map[string]any{"entries": list}))
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username to list (admin only)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries, 0 for all")
	return cmd
}

// ---- entries ----

type entryFlags struct {
	start, end, date string
	address          string
	division         string
	notes            string
	duration         time.Duration
	manual           bool
}

func (ef *entryFlags) bind(cmd *cobra.Command, withManual bool) {
	f := cmd.Flags()
	f.StringVar(&ef.start, "start", "", "start time (RFC 3339 or YYYY-MM-DD HH:MM local)")
	f.StringVar(&ef.end, "end", "", "end time")
	f.StringVar(&ef.date, "date", "", "calendar date YYYY-MM-DD (defaults to the start day)")
	f.StringVar(&ef.address, "address", "", "job address")
	f.StringVar(&ef.division, "division", "", "CSI division / task name")
	f.StringVar(&ef.notes, "notes", "", "notes")
	f.DurationVar(&ef.duration, "duration", 0, "worked duration, e.g. 7h30m")
	if withManual {
		f.BoolVar(&ef.manual, "manual", false, "entered by hand rather than timed")
	}
}

func (c *cli) entryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "entry", Short: "Create, edit or delete time entries"}
	cmd.AddCommand(c.entryAddCmd(), c.entryEditCmd(), c.entryRmCmd())
	return cmd
}

func (c *cli) entryAddCmd() *cobra.Command {
	var ef entryFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a time entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, me, err := c.signedIn(ctx)
			if err != nil {
				return err
			}
			e := model.TimeEntry{
				UserID:      me.ID,
				JobAddress:  ef.address,
				CSIDivision: ef.division,
				Notes:       ef.notes,
				Manual:      ef.manual,
			}
			if e.StartTime, err = parseWhen(ef.start, time.Local); err != nil {
				return err
			}
			if ef.end != "" {
				end, err := parseWhen(ef.end, time.Local)
				if err != nil {
					return err
				}
				e.EndTime = &end
			}
			if ef.date != "" {
				d, err := parseDay(ef.date)
				if err != nil {
					return err
				}
				e.Date = &d
			}
			if cmd.Flags().Changed("duration") {
				secs := int64(ef.duration / time.Second)
				e.Duration = &secs
			}
			created, err := a.data.CreateTimeEntry(ctx, e)
			if err != nil {
				return err
			}
			return c.emit(convert.Struct(convert.EntryMap(*created)))
		},
	}
	ef.bind(cmd, true)
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func (c *cli) entryEditCmd() *cobra.Command {
	var ef entryFlags
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of a time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, me, err := c.signedIn(ctx)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := ownEntry(ctx, a, me, id); err != nil {
				return err
			}

			var p model.TimeEntryPatch
			fl := cmd.Flags()
			if fl.Changed("start") {
				t, err := parseWhen(ef.start, time.Local)
				if err != nil {
					return err
				}
				p.StartTime = &t
			}
			if fl.Changed("end") {
				t, err := parseWhen(ef.end, time.Local)
				if err != nil {
					return err
				}
				p.EndTime = &t
			}
			if fl.Changed("date") {
				d, err := parseDay(ef.date)
				if err != nil {
					return err
				}
				p.Date = &d
			}
			if fl.Changed("duration") {
				secs := int64(ef.duration / time.Second)
				p.Duration = &secs
			}
			if fl.Changed("address") {
				p.JobAddress = &ef.address
			}
			if fl.Changed("division") {
				p.CSIDivision = &ef.division
			}
			if fl.Changed("notes") {
				p.Notes = &ef.notes
			}

			updated, err := a.data.UpdateTimeEntry(ctx, id, p)
			if err != nil {
				return err
			}
			return c.emit(convert.Struct(convert.EntryMap(*updated)))
		},
	}
	ef.bind(cmd, false)
	return cmd
}

func (c *cli) entryRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, me, err := c.signedIn(ctx)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := ownEntry(ctx, a, me, id); err != nil {
				return err
			}
			if err := a.data.DeleteTimeEntry(ctx, id); err != nil {
				return err
			}
			return c.say("deleted %s", id)
		},
	}
}

// ---- catalog ----

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Maintain the task catalog (admin)"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add NAME",
			Short: "Add a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, _, err := c.admin(cmd.Context())
				if err != nil {
					return err
				}
				t, err := a.data.CreateTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.emit(convert.Struct(convert.TaskMap(*t)))
			},
		},
		&cobra.Command{
			Use:   "rename ID NAME",
			Short: "Rename a task",
			Long:  "Rename a task. Entries already recorded keep the old division name.",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, _, err := c.admin(cmd.Context())
				if err != nil {
					return err
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				t, err := a.data.RenameTask(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				return c.emit(convert.Struct(convert.TaskMap(*t)))
			},
		},
		&cobra.Command{
			Use:   "rm ID",
			Short: "Delete a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, _, err := c.admin(cmd.Context())
				if err != nil {
					return err
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.data.DeleteTask(cmd.Context(), id); err != nil {
					return err
				}
				return c.say("deleted %s", id)
			},
		},
	)
	return cmd
}

func (c *cli) addressCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "address", Short: "Maintain your job addresses"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add LABEL",
			Short: "Add a job address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, me, err := c.signedIn(cmd.Context())
				if err != nil {
					return err
				}
				ja, err := a.data.CreateJobAddress(cmd.Context(), me.ID, args[0])
				if err != nil {
					return err
				}
				return c.emit(convert.Struct(convert.JobAddressMap(*ja)))
			},
		},
		&cobra.Command{
			Use:   "rename ID LABEL",
			Short: "Change a job address label",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a, me, err := c.signedIn(ctx)
				if err != nil {
					return err
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := ownAddress(ctx, a, me, id); err != nil {
					return err
				}
				ja, err := a.data.UpdateJobAddress(ctx, id, args[1])
				if err != nil {
					return err
				}
				return c.emit(convert.Struct(convert.JobAddressMap(*ja)))
			},
		},
		&cobra.Command{
			Use:   "rm ID",
			Short: "Delete a job address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a, me, err := c.signedIn(ctx)
				if err != nil {
					return err
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := ownAddress(ctx, a, me, id); err != nil {
					return err
				}
				if err := a.data.DeleteJobAddress(ctx, id); err != nil {
					return err
				}
				return c.say("deleted %s", id)
			},
		},
	)
	return cmd
}
