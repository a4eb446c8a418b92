package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kab1why1/habit/internal/application/command"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/internal/infrastructure/persistence/redis"
	"github.com/kab1why1/habit/internal/infrastructure/scheduler/jobs"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/spf13/cobra"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withSchema(cmd.Context(), func(ctx context.Context, s schema) error {
					ran, err := s.Up(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", ran)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the last applied migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withSchema(cmd.Context(), func(ctx context.Context, s schema) error {
					if err := s.Down(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withSchema(cmd.Context(), func(ctx context.Context, s schema) error {
					rows, err := s.Status(ctx)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED\tAT")
					for _, r := range rows {
						at := "-"
						if !r.AppliedAt.IsZero() {
							at = r.AppliedAt.UTC().Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", r.Version, r.Name, r.Applied, at)
					}
					return w.Flush()
				})
			},
		},
	)
	return cmd
}

func (a *app) withSchema(ctx context.Context, fn func(ctx context.Context, s schema) error) error {
	store, s, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, s)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER
// ══════════════════════════════════════════════════════════════════════════════

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var (
		password string
		admin    bool
	)
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account; the only way to create administrators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("HABIT_USER_PASSWORD")
			}
			role := shared.RoleUser
			if admin {
				role = shared.RoleAdmin
			}

			store, _, err := a.openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() { _ = store.Close() }()

			clock := timeutil.SystemClock{Location: a.cfg.App.Location}
			accounts := command.NewAccountHandler(store, clock, a.cfg.Auth.BcryptCost, a.log)
			user, err := accounts.Register(cmd.Context(), command.RegisterUserCommand{
				Username: args[0],
				Password: password,
				Role:     role,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Username, user.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&password, "password", "p", "", "password (default $HABIT_USER_PASSWORD)")
	create.Flags().BoolVar(&admin, "admin", false, "grant the admin role")

	cmd.AddCommand(create)
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func newLeaderboardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Inspect and maintain the leaderboard",
	}

	var limit int
	top := &cobra.Command{
		Use:   "top",
		Short: "Print the leaderboard from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := a.openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Leaderboard().Top(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tUSER\tLEVEL\tXP")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", e.Rank, e.Username, e.Level, e.XP)
			}
			return w.Flush()
		},
	}
	top.Flags().IntVarP(&limit, "limit", "n", 10, "number of users")

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Copy the leaderboard from the database into Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !a.cfg.Redis.Enabled {
				return fmt.Errorf("redis is disabled; set REDIS_ENABLED=true")
			}

			store, _, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() { _ = store.Close() }()

			conn, err := a.openRedis(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			defer func() { _ = conn.Close() }()

			cfg := jobs.DefaultRebuildLeaderboardConfig()
			if a.cfg.Scheduler.JobTimeout > 0 {
				cfg.Timeout = a.cfg.Scheduler.JobTimeout
			}
			job := jobs.NewRebuildLeaderboardJob(store.Leaderboard(), redis.NewLeaderboardCache(conn, a.cfg.Redis.LeaderboardTTL), conn, a.log, cfg)
			if err := job.Run(ctx); err != nil {
				return err
			}

			stats := job.LastStats()
			if stats != nil && stats.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "skipped: another instance holds the rebuild lock")
				return nil
			}
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "cached %d users\n", stats.Users)
			}
			return nil
		},
	}

	cmd.AddCommand(top, rebuild)
	return cmd
}
