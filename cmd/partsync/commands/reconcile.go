package commands

import (
	"github.com/spf13/cobra"
)

func newReconcileCommand(opts *options) *cobra.Command {
	var (
		file      string
		check     bool
		keepGoing bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge partitions to the state declared in a request file",
		Long: `Converge every partition of a request file to its declared state.

For each partition partsync reads the current state, computes the remote
operations needed and executes them in order: create, update, start, stop
or delete. Partitions are processed in file order; processing stops at the
first failure unless --keep-going is set.`,
		Example: `  # Converge the partitions of a request file
  partsync reconcile -f web.yaml --inventory lab.yaml

  # Report what would change without changing anything
  partsync reconcile -f web.yaml --inventory lab.yaml --check

  # Record run history and events
  partsync reconcile -f web.yaml --inventory lab.yaml --db partsync.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			f, err := a.parser.Load(file)
			if err != nil {
				return err
			}
			if check {
				f.CheckMode = true
				for i := range f.Partitions {
					f.Partitions[i].CheckMode = nil
				}
			}

			outcomes, runErr := a.reconcileFile(ctx, f, keepGoing)
			if err := printOutcomes(cmd.OutOrStdout(), outcomes, opts.jsonOutput); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "request file (YAML, JSON, TOML or CUE)")
	cmd.Flags().BoolVar(&check, "check", false, "compute the outcome without changing anything")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue with the next partition after a failure")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
