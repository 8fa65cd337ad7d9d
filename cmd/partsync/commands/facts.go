package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/partsync/pkg/config"
	"github.com/openfroyo/partsync/pkg/engine"
)

func newFactsCommand(opts *options) *cobra.Command {
	req := &engine.Request{State: engine.StateFacts}

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Show the current properties of a partition",
		Long: `Show the current properties of a partition without changing it.
Dependents, storage groups and crypto adapters can be expanded inline.`,
		Example: `  partsync facts --cpc CPC1 --name web --inventory lab.yaml
  partsync facts --cpc CPC1 --name web --expand-dependents --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			res, err := a.reconciler(config.Settings{}).Reconcile(ctx, req)
			if err != nil {
				return err
			}
			return printProperties(cmd.OutOrStdout(), res.Properties, opts.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&req.CPCName, "cpc", "", "CPC name")
	cmd.Flags().StringVar(&req.Name, "name", "", "partition name")
	cmd.Flags().BoolVar(&req.ExpandDependents, "expand-dependents", false, "include nics, hbas and virtual functions")
	cmd.Flags().BoolVar(&req.ExpandStorageGroups, "expand-storage-groups", false, "include attached storage groups")
	cmd.Flags().BoolVar(&req.ExpandCryptoAdapters, "expand-crypto-adapters", false, "include crypto adapter details")
	_ = cmd.MarkFlagRequired("cpc")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
