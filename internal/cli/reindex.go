package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emilythestrangee/devquery/backend/internal/ledger/gormstore"
	"github.com/emilythestrangee/devquery/backend/internal/logging"
)

type reindexResult struct {
	DryRun   bool              `json:"dry_run"`
	Drift    []gormstore.Drift `json:"drift"`
	Repaired []gormstore.Drift `json:"repaired"`
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Recompute stored vote counters from vote rows",
		Long: `Compare every question and answer vote counter with the signed
count of its vote rows and rewrite the counters that disagree.

With --dry-run the drift is reported and nothing is written; the command
exits 1 when drift exists so it can gate scripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(rootOpts, cmd, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without repairing it")

	return cmd
}

func runReindex(opts *RootOptions, cmd *cobra.Command, dryRun bool) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	db, release, err := opts.open(ctx, opts)
	if err != nil {
		return err
	}
	defer release()

	level := "warn"
	if opts.Verbose {
		level = "info"
	}
	store := gormstore.New(db.GetDB(), logging.New(cmd.ErrOrStderr(), level, "text"))

	drift, err := store.FindDrift(ctx)
	if err != nil {
		_ = out.Failure(err)
		return WrapExitError(ExitCommandError, "scan vote counters", err)
	}

	result := reindexResult{DryRun: dryRun, Drift: drift, Repaired: []gormstore.Drift{}}
	if !dryRun && len(drift) > 0 {
		result.Repaired, err = store.Repair(ctx, drift)
		if err != nil {
			_ = out.Failure(err)
			return WrapExitError(ExitCommandError, "repair vote counters", err)
		}
	}

	if err := out.Success(result, func(w io.Writer) { printDrift(w, result) }); err != nil {
		return err
	}
	if dryRun && len(drift) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d vote counters drifted", len(drift)))
	}
	return nil
}

func printDrift(w io.Writer, r reindexResult) {
	if len(r.Drift) == 0 {
		fmt.Fprintln(w, "all vote counters match their vote rows")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBJECT\tID\tSTORED\tACTUAL")
	for _, d := range r.Drift {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", d.SubjectType, d.ID, d.Stored, d.Actual)
	}
	_ = tw.Flush()

	if r.DryRun {
		fmt.Fprintf(w, "%d drifted, dry run: nothing written\n", len(r.Drift))
		return
	}
	fmt.Fprintf(w, "%d drifted, %d repaired\n", len(r.Drift), len(r.Repaired))
}
