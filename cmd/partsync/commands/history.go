package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/partsync/pkg/engine"
	"github.com/openfroyo/partsync/pkg/stores"
)

func newHistoryCommand(opts *options) *cobra.Command {
	var (
		filter     stores.RunFilter
		status     string
		runID      string
		snapshot   bool
		pruneOlder time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, their events and partition snapshots",
		Long: `Show the run history recorded with --db.

Without flags the most recent runs are listed. --events shows the events of
one run, --snapshot the last recorded properties of a partition and --prune
removes runs older than the given age.`,
		Example: `  partsync history --db partsync.db --cpc CPC1 --partition web
  partsync history --db partsync.db --events 3f1c0d4e-...
  partsync history --db partsync.db --cpc CPC1 --partition web --snapshot
  partsync history --db partsync.db --prune 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dbPath == "" {
				return engine.NewParameterError("history requires a run database (--db)")
			}
			ctx := cmd.Context()
			store, err := stores.Open(ctx, opts.dbPath)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case pruneOlder > 0:
				n, err := store.DeleteRunsBefore(ctx, time.Now().Add(-pruneOlder))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d runs\n", n)
				return nil

			case runID != "":
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				events, err := store.GetEvents(ctx, stores.EventFilter{RunID: run.ID})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(out, map[string]interface{}{"run": run, "events": events})
				}
				printRuns(out, []*engine.Run{run})
				fmt.Fprintln(out)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, e := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Type, e.Message)
				}
				return tw.Flush()

			case snapshot:
				if filter.CPCName == "" || filter.PartitionName == "" {
					return engine.NewParameterError("--snapshot requires --cpc and --partition")
				}
				snap, err := store.GetSnapshot(ctx, filter.CPCName, filter.PartitionName)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(out, snap)
				}
				fmt.Fprintf(out, "%s/%s updated %s by run %s (hash %s)\n\n",
					snap.CPCName, snap.PartitionName, snap.UpdatedAt.Format(time.RFC3339), snap.LastRunID, snap.Hash)
				return printProperties(out, snap.Properties, false)
			}

			if status != "" {
				filter.Status = engine.RunStatus(status)
				if err := filter.Status.Validate(); err != nil {
					return err
				}
			}
			runs, err := store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(out, runs)
			}
			printRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.CPCName, "cpc", "", "only runs against this CPC")
	cmd.Flags().StringVar(&filter.PartitionName, "partition", "", "only runs against this partition")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&runID, "events", "", "show the events of a run")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "show the last recorded properties of a partition")
	cmd.Flags().DurationVar(&pruneOlder, "prune", 0, "delete runs older than this age")

	return cmd
}

func printRuns(w io.Writer, runs []*engine.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTARGET\tSTATE\tSTATUS\tCHANGED\tSTARTED\tDURATION")
	for _, r := range runs {
		state := string(r.DesiredState)
		if r.CheckMode {
			state += " (check)"
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%t\t%s\t%s\n",
			r.ID, r.CPCName, r.PartitionName, state, r.Status, r.Changed,
			r.StartedAt.Format(time.RFC3339), r.Duration().Round(time.Millisecond))
	}
	_ = tw.Flush()
}
