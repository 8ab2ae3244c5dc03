// Package cli implements forumctl, the operator command line for the forum
// database.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/emilythestrangee/devquery/backend/internal/config"
	"github.com/emilythestrangee/devquery/backend/internal/database"
	"github.com/emilythestrangee/devquery/backend/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DSN     string

	open Opener
}

// Opener connects to the database. The returned release func is called when
// the command finishes.
type Opener func(ctx context.Context, opts *RootOptions) (database.Service, func(), error)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for forumctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openFromConfig)
}

func newRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "forumctl",
		Short: "forumctl - DevQuery operator tool",
		Long:  "Apply schema migrations and reconcile vote counters for the DevQuery forum database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database connection string (defaults to DATABASE_URL / DB_* settings)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))

	return cmd
}

func openFromConfig(ctx context.Context, opts *RootOptions) (database.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	dsn := opts.DSN
	if dsn == "" {
		dsn = cfg.DSN()
	}

	level := cfg.LogLevel
	if !opts.Verbose {
		level = "warn"
	}
	db, err := database.New(ctx, dsn, database.Options{
		MaxOpenConns: 4,
		MaxIdleConns: 1,
		Logger:       logging.New(errWriter, level, "text"),
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "connect to database", err)
	}
	return db, func() { _ = db.Close() }, nil
}
