package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/openfroyo/partsync/pkg/policy"
)

const changeDelay = 300 * time.Millisecond

func newWatchCommand(opts *options) *cobra.Command {
	var (
		file      string
		resync    time.Duration
		keepGoing bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep partitions converged while a request file changes",
		Long: `Reconcile a request file, then again whenever it changes on disk and
every --resync interval to correct drift. Failed passes are retried with an
exponential backoff. Policy files given with --policy are reloaded when they
change. With --metrics-addr the Prometheus endpoint is served for the
lifetime of the command.`,
		Example: `  partsync watch -f web.yaml --inventory lab.yaml --resync 10m --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			a.tel.Metrics.StartMetricsServer(ctx, a.logger)

			if len(opts.policyPaths) > 0 {
				loader := policy.NewLoader(a.tel.Logger.Zerolog())
				err := loader.Watch(ctx, opts.policyPaths, func(p []policy.Policy) error {
					return a.policy.ReplacePolicies(ctx, p)
				})
				if err != nil {
					return err
				}
				defer loader.StopWatching()
			}

			w := &fileWatcher{app: a, out: cmd.OutOrStdout(), resync: resync, keepGoing: keepGoing}
			return w.run(ctx, file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "request file (YAML, JSON, TOML or CUE)")
	cmd.Flags().DurationVar(&resync, "resync", 5*time.Minute, "reconcile at this interval even without changes; 0 disables")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", true, "continue with the next partition after a failure")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// fileWatcher re-runs a request file on change, on a timer and after failures.
type fileWatcher struct {
	app       *app
	out       io.Writer
	resync    time.Duration
	keepGoing bool
}

func (w *fileWatcher) run(ctx context.Context, file string) error {
	path, err := filepath.Abs(file)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	// Editors replace files by rename, so the directory is watched.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", file, err)
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	if w.resync > 0 {
		retry.MaxInterval = w.resync
	}

	logger := w.app.logger.WithField("file", path)
	logger.Info("watching request file")

	timer := time.NewTimer(0)
	defer timer.Stop()
	var changed <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped watching request file")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Has(fsnotify.Chmod) {
				continue
			}
			changed = time.After(changeDelay)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("file watcher error")

		case <-changed:
			changed = nil
			logger.Info("request file changed")
			retry.Reset()
			timer.Stop()
			timer.Reset(0)

		case <-timer.C:
			next := w.resync
			if err := w.pass(ctx, path); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				next = retry.NextBackOff()
				logger.WithError(err).Warnf("reconciliation failed, retrying in %s", next)
			} else {
				retry.Reset()
			}
			if next > 0 {
				timer.Reset(next)
			}
		}
	}
}

// pass loads the request file and reconciles it once.
func (w *fileWatcher) pass(ctx context.Context, path string) error {
	f, err := w.app.parser.Load(path)
	if err != nil {
		return err
	}
	outcomes, runErr := w.app.reconcileFile(ctx, f, w.keepGoing)
	if err := printOutcomes(w.out, outcomes, w.app.opts.jsonOutput); err != nil {
		return err
	}

	changed := 0
	for _, o := range outcomes {
		if o.Err == nil && o.Result.Changed {
			changed++
		}
	}
	w.app.logger.Infof("reconciled %d partitions, %d changed", len(outcomes), changed)
	return runErr
}
