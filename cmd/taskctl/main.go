// Command taskctl runs maintenance against the task store: schema
// migrations and user provisioning.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/config"
	"github.com/Mannan1101/Hackathon-II-Phase-2/internal/tasks"
)

type app struct {
	cfg  *config.Config
	open func(ctx context.Context, dsn string) (tasks.Store, error)
	out  io.Writer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	a := &app{cfg: cfg, open: tasks.Open, out: os.Stdout}
	if err := a.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Maintenance commands for the tasks API",
		SilenceUsage:  true,
	}
	root.SetOut(a.out)
	root.AddCommand(a.migrateCmd(), a.userCmd())
	return root
}

// withStore opens the configured store, runs fn and closes the store.
func (a *app) withStore(ctx context.Context, fn func(tasks.Store) error) error {
	store, err := a.open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and tasks tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s tasks.Store) error {
				if err := s.ApplyMigrations(cmd.Context()); err != nil {
					return fmt.Errorf("apply migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func (a *app) userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage task owners"}

	var id, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s tasks.Store) error {
				if err := s.ApplyMigrations(cmd.Context()); err != nil {
					return err
				}
				u, err := s.CreateUser(cmd.Context(), tasks.User{ID: id, Email: email})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user created id=%s email=%s\n", u.ID, u.Email)
				return nil
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "user id (generated when empty)")
	create.Flags().StringVar(&email, "email", "", "unique email address")
	_ = create.MarkFlagRequired("email")

	var delID string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove a user and all of their tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s tasks.Store) error {
				if err := s.DeleteUser(cmd.Context(), delID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user deleted id=%s\n", delID)
				return nil
			})
		},
	}
	del.Flags().StringVar(&delID, "id", "", "user id")
	_ = del.MarkFlagRequired("id")

	user.AddCommand(create, del)
	return user
}
