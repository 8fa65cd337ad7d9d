package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/partsync/pkg/config"
	"github.com/openfroyo/partsync/pkg/engine"
	"github.com/openfroyo/partsync/pkg/policy"
	"github.com/openfroyo/partsync/pkg/providers/simulated"
	"github.com/openfroyo/partsync/pkg/stores"
	"github.com/openfroyo/partsync/pkg/telemetry"
)

// app holds the collaborators of one CLI invocation.
type app struct {
	opts   *options
	tel    *telemetry.Telemetry
	logger *telemetry.Logger
	ctrl   *simulated.Controller
	store  *stores.SQLiteStore
	policy *policy.Engine
	parser *config.Parser
}

// newApp builds the controller, run history and policy engine from the
// global flags. Close releases them.
func newApp(ctx context.Context, opts *options) (_ *app, err error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = opts.version
	cfg.Logging.Level = opts.logLevel
	cfg.Metrics.Enabled = opts.metricsAddr != ""
	cfg.Metrics.ListenAddress = opts.metricsAddr
	cfg.Events.NATSURL = opts.natsURL
	if opts.traceExport != "" && opts.traceExport != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = opts.traceExport
		cfg.Tracing.Endpoint = opts.otlpAddr
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	a := &app{opts: opts, tel: tel, logger: tel.Logger.NewComponentLogger("cli")}
	// Partially built apps are closed on failure.
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if a.parser, err = config.NewParser(); err != nil {
		return nil, err
	}

	if opts.inventory == "" && opts.stateDir == "" {
		return nil, engine.NewParameterError("an inventory (--inventory) or a state directory (--state-dir) is required")
	}
	var inv *simulated.Inventory
	if opts.inventory != "" {
		if inv, err = simulated.LoadInventory(opts.inventory); err != nil {
			return nil, engine.NewParameterError("invalid inventory").WithCause(err)
		}
	}
	ctrlOpts := []simulated.Option{simulated.WithLogger(tel.Logger.NewComponentLogger("simulator"))}
	var state *simulated.BadgerStore
	if opts.stateDir != "" {
		if state, err = simulated.NewBadgerStore(opts.stateDir); err != nil {
			return nil, err
		}
		ctrlOpts = append(ctrlOpts, simulated.WithStore(state))
	}
	if a.ctrl, err = simulated.New(ctx, inv, ctrlOpts...); err != nil {
		if state != nil {
			_ = state.Close()
		}
		return nil, err
	}

	if opts.dbPath != "" {
		if a.store, err = stores.Open(ctx, opts.dbPath); err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		tel.Events.Subscribe(a.store.EventSubscriber(ctx, func(err error) {
			a.logger.WithError(err).Warn("failed to record event")
		}), nil)
	}

	if a.policy, err = policy.NewEngine(tel.Logger.Zerolog()); err != nil {
		return nil, err
	}
	if len(opts.policyPaths) > 0 {
		if err := a.policy.LoadPolicies(ctx, opts.policyPaths); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// applySettings publishes request file settings to the policy engine.
func (a *app) applySettings(ctx context.Context, s config.Settings) error {
	ps := policy.DefaultSettings()
	if len(s.ProtectedPrefixes) > 0 {
		ps.ProtectedPrefixes = s.ProtectedPrefixes
	}
	ps.MaxMemoryMB = s.MaxMemoryMB
	if err := a.policy.UpdateSettings(ctx, ps); err != nil {
		return err
	}
	if len(s.PolicyPaths) > 0 {
		paths := append(append([]string{}, a.opts.policyPaths...), s.PolicyPaths...)
		if err := a.policy.ReloadPolicies(ctx, paths); err != nil {
			return err
		}
	}
	return nil
}

// reconciler builds a reconciler honoring the request file settings.
func (a *app) reconciler(s config.Settings) *engine.Reconciler {
	interval := s.PollInterval.Std()
	if interval <= 0 {
		interval = engine.DefaultPollInterval
	}
	opts := []engine.Option{
		engine.WithTelemetry(a.tel),
		engine.WithPolicy(a.policy),
		engine.WithPoller(engine.NewTransportPoller(a.ctrl, interval)),
	}
	if s.WaitTimeout > 0 {
		opts = append(opts, engine.WithWaitTimeout(s.WaitTimeout.Std()))
	}
	if a.store != nil {
		opts = append(opts, engine.WithRecorder(a.store))
	}
	return engine.NewReconciler(a.ctrl, a.ctrl, opts...)
}

// outcome is the result of one request of a file.
type outcome struct {
	Request *engine.Request
	Result  *engine.Result
	Err     error
}

// reconcileFile runs every request of f in order. It stops at the first
// failure unless keepGoing is set.
func (a *app) reconcileFile(ctx context.Context, f *config.RequestFile, keepGoing bool) ([]outcome, error) {
	if err := a.applySettings(ctx, f.Settings); err != nil {
		return nil, err
	}
	rec := a.reconciler(f.Settings)

	var outcomes []outcome
	var errs []error
	for _, req := range f.Requests() {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		res, err := rec.Reconcile(ctx, req)
		if err == nil {
			a.recordSnapshot(ctx, req, res)
		}
		outcomes = append(outcomes, outcome{Request: req, Result: res, Err: err})
		if err != nil {
			errs = append(errs, err)
			if !keepGoing {
				break
			}
		}
	}
	return outcomes, errors.Join(errs...)
}

// recordSnapshot keeps the last known property set of each partition.
func (a *app) recordSnapshot(ctx context.Context, req *engine.Request, res *engine.Result) {
	if a.store == nil || req.CheckMode || req.State == engine.StateFacts {
		return
	}
	if req.State == engine.StateAbsent {
		if err := a.store.DeleteSnapshot(ctx, req.CPCName, req.Name); err != nil {
			a.logger.WithError(err).Warn("failed to delete snapshot")
		}
		return
	}
	prev, err := a.store.GetSnapshot(ctx, req.CPCName, req.Name)
	if err != nil && !errors.Is(err, stores.ErrNotFound) {
		a.logger.WithError(err).Warn("failed to read snapshot")
	}
	snap := &stores.Snapshot{
		CPCName:       req.CPCName,
		PartitionName: req.Name,
		Properties:    res.Properties,
		LastRunID:     res.RunID,
	}
	if _, err := a.store.SaveSnapshot(ctx, snap); err != nil {
		a.logger.WithError(err).Warn("failed to save snapshot")
		return
	}
	if prev != nil && prev.Hash != snap.Hash && !res.Changed {
		a.logger.WithPartition(req.CPCName, req.Name).Warn("partition changed outside of partsync since the last run")
	}
}

// Close flushes telemetry and closes the stores.
func (a *app) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.ctrl != nil {
		if err := a.ctrl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
