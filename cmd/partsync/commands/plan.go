package commands

import (
	"github.com/spf13/cobra"
)

func newPlanCommand(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the operations a request file would execute",
		Long: `Show the remote operations and property changes needed to converge the
partitions of a request file. Nothing is changed: every request runs in
check mode, including the policy gate.`,
		Example: `  partsync plan -f web.yaml --inventory lab.yaml
  partsync plan -f web.yaml --inventory lab.yaml --json`,
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
			f.CheckMode = true
			for i := range f.Partitions {
				f.Partitions[i].CheckMode = nil
			}

			outcomes, runErr := a.reconcileFile(ctx, f, true)
			if err := printPlans(cmd.OutOrStdout(), outcomes, opts.jsonOutput); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "request file (YAML, JSON, TOML or CUE)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
