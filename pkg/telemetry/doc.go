// Package telemetry provides the observability stack used by partsync.
//
// It bundles structured logging (zerolog), tracing (OpenTelemetry),
// Prometheus metrics and a reconciliation event stream into a single
// Telemetry value:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Logging.Level = "debug"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
// Loggers carry the run and partition being reconciled:
//
//	logger := telemetry.FromContext(ctx).WithRunID(runID).WithPartition("CPC1", "lpar1")
//	logger.Info("reconciling partition")
//
// # Events
//
// Every reconciliation emits run, plan, operation and policy events. The
// history store and the optional NATS sink subscribe to the publisher:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// Events are delivered synchronously unless EventsConfig.EnableAsync is set.
//
// # Metrics
//
// Metrics are registered on a private registry and served by
// Metrics.StartMetricsServer. A disabled Metrics value is a no-op.
package telemetry
