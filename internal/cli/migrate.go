package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emilythestrangee/devquery/backend/internal/database"
)

type migrateResult struct {
	Action  string `json:"action"`
	Version int64  `json:"version"`
}

// NewMigrateCommand creates the migrate command and its up/down/status
// subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd, "up")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd, "down")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd, "status")
		},
	})

	return cmd
}

func runMigrate(opts *RootOptions, cmd *cobra.Command, action string) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	db, release, err := opts.open(ctx, opts)
	if err != nil {
		return err
	}
	defer release()

	switch action {
	case "up":
		err = database.Migrate(ctx, db.SQL())
	case "down":
		err = database.MigrateDown(ctx, db.SQL())
	case "status":
		if opts.Verbose {
			err = database.MigrationStatus(ctx, db.SQL())
		}
	}
	if err != nil {
		_ = out.Failure(err)
		return WrapExitError(ExitCommandError, "migrate "+action, err)
	}

	version, err := database.SchemaVersion(ctx, db.SQL())
	if err != nil {
		_ = out.Failure(err)
		return WrapExitError(ExitCommandError, "read schema version", err)
	}

	result := migrateResult{Action: action, Version: version}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "migrate %s: schema at version %d\n", action, version)
	})
}
