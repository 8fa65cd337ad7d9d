package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/partsync/pkg/telemetry"
)

// options are the global flags shared by every command.
type options struct {
	inventory   string
	stateDir    string
	dbPath      string
	policyPaths []string
	logLevel    string
	jsonOutput  bool
	natsURL     string
	metricsAddr string
	traceExport string
	otlpAddr    string
	version     string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &options{version: version}

	rootCmd := &cobra.Command{
		Use:   "partsync",
		Short: "partsync - declarative partition reconciliation",
		Long: `partsync converges logical partitions of a mainframe CPC to a declared
state: absent, stopped or active with a given set of properties.

Each request names a partition, its desired state and properties. partsync
reads the current partition, computes the minimal set of create, update,
start, stop and delete operations and executes them in order, or only
reports them in check mode.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.logLevel {
			case "trace", "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("invalid log level %q", opts.logLevel)
			}
			zerolog.SetGlobalLevel(telemetry.ParseLevel(opts.logLevel))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.inventory, "inventory", "i", os.Getenv("PARTSYNC_INVENTORY"), "simulated controller inventory file (YAML)")
	flags.StringVar(&opts.stateDir, "state-dir", "", "directory persisting the simulated controller state")
	flags.StringVar(&opts.dbPath, "db", os.Getenv("PARTSYNC_DB"), "SQLite database recording run history")
	flags.StringSliceVar(&opts.policyPaths, "policy", nil, "policy files or directories")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	flags.StringVar(&opts.natsURL, "nats-url", "", "forward events to this NATS server")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&opts.traceExport, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	flags.StringVar(&opts.otlpAddr, "otlp-endpoint", "", "OTLP gRPC collector endpoint")

	rootCmd.AddCommand(newReconcileCommand(opts))
	rootCmd.AddCommand(newPlanCommand(opts))
	rootCmd.AddCommand(newFactsCommand(opts))
	rootCmd.AddCommand(newWatchCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))

	return rootCmd
}
