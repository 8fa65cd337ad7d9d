package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/partsync/pkg/schema"
	"github.com/openfroyo/partsync/pkg/telemetry"
)

// Reconciler converges one partition per call to a desired state.
// It holds no state between calls other than its collaborators.
type Reconciler struct {
	dir       Directory
	transport Transport
	poller    StatusPoller
	resolver  *PropertyResolver
	policy    PolicyEngine
	recorder  RunRecorder
	tel       *telemetry.Telemetry

	waitTimeout time.Duration
	now         func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPoller sets the status poller. The default polls through the transport.
func WithPoller(p StatusPoller) Option {
	return func(r *Reconciler) { r.poller = p }
}

// WithPolicy sets the policy engine evaluated on every plan.
func WithPolicy(p PolicyEngine) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithRecorder sets where finished runs are recorded.
func WithRecorder(rec RunRecorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// WithTelemetry sets logging, tracing, metrics and events.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Reconciler) { r.tel = t }
}

// WithWaitTimeout bounds every status wait.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.waitTimeout = d }
}

// WithClock overrides the time source used for plans and runs.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a reconciler on top of a directory and a transport.
func NewReconciler(dir Directory, transport Transport, opts ...Option) *Reconciler {
	r := &Reconciler{
		dir:         dir,
		transport:   transport,
		resolver:    NewPropertyResolver(dir),
		waitTimeout: DefaultWaitTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.poller == nil {
		r.poller = NewTransportPoller(transport, DefaultPollInterval)
	}
	if r.tel == nil {
		r.tel = telemetry.NewNop()
	}
	return r
}

// Reconcile converges the partition named by req and reports whether
// anything changed along with the resulting properties. Every failure is a
// single *EngineError.
func (r *Reconciler) Reconcile(ctx context.Context, req *Request) (result *Result, err error) {
	if req == nil {
		return nil, NewParameterError("request is nil")
	}

	run := &Run{
		ID:            uuid.NewString(),
		CPCName:       req.CPCName,
		PartitionName: req.Name,
		DesiredState:  req.State,
		CheckMode:     req.CheckMode,
		Status:        RunStatusRunning,
		StartedAt:     r.now(),
	}

	logger := r.tel.Logger.NewComponentLogger("reconciler").
		WithRunID(run.ID).
		WithPartition(req.CPCName, req.Name)
	ctx = logger.WithContext(r.tel.WithContext(ctx))
	ctx, span := r.tel.Tracer.StartReconcileSpan(ctx, run.ID, req.CPCName, req.Name, string(req.State))
	span.SetAttributes(telemetry.AttrCheckMode.Bool(req.CheckMode))

	_ = r.tel.Events.PublishRunStarted(run.ID, req.Target(), string(req.State), req.CheckMode)
	logger.Debugf("reconciling partition to %s (check mode %t)", req.State, req.CheckMode)

	defer func() {
		r.finish(ctx, span, run, req, result, err)
	}()

	return r.reconcile(ctx, run, req)
}

func (r *Reconciler) reconcile(ctx context.Context, run *Run, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cpc, err := r.dir.FindCPC(ctx, req.CPCName)
	if err != nil {
		return nil, AsOperationError(fmt.Sprintf("failed to look up CPC %s", req.CPCName), err)
	}
	if cpc == nil {
		return nil, NewNotFoundError("CPC %s does not exist", req.CPCName).WithResource(req.CPCName)
	}

	part, err := r.dir.FindPartition(ctx, cpc, req.Name)
	if err != nil {
		return nil, AsOperationError(fmt.Sprintf("failed to look up partition %s", req.Target()), err)
	}
	part, err = r.settle(ctx, part)
	if err != nil {
		return nil, err
	}

	if req.State == StateFacts {
		if part == nil {
			return nil, NewNotFoundError("partition %s does not exist in CPC %s", req.Name, req.CPCName).
				WithResource(req.Target())
		}
		props, err := r.expand(ctx, part, req, true)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: false, Properties: props}, nil
	}

	plan, err := r.plan(ctx, cpc, part, req)
	if err != nil {
		return nil, err
	}
	run.Operations = plan.Operations()

	if err := r.enforcePolicy(ctx, run, plan, req); err != nil {
		return nil, err
	}

	if req.CheckMode {
		props, err := r.project(ctx, part, plan, req)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: plan.Changed(), Properties: props, Plan: plan}, nil
	}

	uri := ""
	if part != nil {
		uri = part.URI
	}
	for _, step := range plan.Steps {
		uri, err = r.execute(ctx, run, cpc, req, uri, step)
		if err != nil {
			return nil, err
		}
	}

	if req.State == StateAbsent {
		return &Result{Changed: plan.Changed(), Properties: Properties{}, Plan: plan}, nil
	}

	final, err := r.transport.GetPartition(ctx, uri)
	if err != nil {
		return nil, AsOperationError(fmt.Sprintf("failed to read partition %s", req.Target()), err)
	}
	if final == nil {
		return nil, NewOperationError(fmt.Sprintf("partition %s disappeared after reconciliation", req.Target()), nil).
			WithResource(req.Target())
	}
	props, err := r.expand(ctx, final, req, false)
	if err != nil {
		return nil, err
	}
	return &Result{Changed: plan.Changed(), Properties: props, Plan: plan}, nil
}

// settle waits for a starting or stopping partition to reach a settled status.
func (r *Reconciler) settle(ctx context.Context, part *Partition) (*Partition, error) {
	if part == nil || part.Status.Class() != StatusClassTransitional {
		return part, nil
	}
	telemetry.FromContext(ctx).Infof("partition is %s, waiting for it to settle", part.Status)

	timer := telemetry.NewTimer()
	settled, err := r.poller.WaitForStatus(ctx, part.URI, SettledStatuses, r.waitTimeout)
	r.tel.Metrics.RecordStatusWait("settled", timer.Duration())
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// plan resolves the input properties, diffs them against the snapshot and
// orders the remote operations.
func (r *Reconciler) plan(ctx context.Context, cpc *CPC, part *Partition, req *Request) (*Plan, error) {
	class := StatusClassOf(part)
	if class == StatusClassUnsupported {
		return nil, NewOperationError(
			fmt.Sprintf("partition %s has status %s, which cannot be reconciled", req.Target(), part.Status), nil).
			WithResource(req.Target()).
			WithCode(ErrCodeUnknownStatus)
	}

	var diff *PropertyDiff
	if req.State != StateAbsent && len(req.Properties) > 0 {
		resolved, err := r.resolver.Resolve(ctx, cpc, part, req.Properties)
		if err != nil {
			return nil, err
		}
		diff, err = ComputeDiff(resolved, part)
		if err != nil {
			return nil, err
		}
	}

	steps, err := PlanSteps(req.Name, class, req.State, diff)
	if err != nil {
		return nil, AsOperationError("failed to plan partition lifecycle", err).WithResource(req.Target())
	}

	plan := &Plan{
		ID:            uuid.NewString(),
		CPCName:       req.CPCName,
		PartitionName: req.Name,
		CurrentClass:  class,
		DesiredState:  req.State,
		Steps:         steps,
		CreatedAt:     r.now(),
	}
	if diff != nil {
		plan.Changes = diff.Changes
	}

	ops := make([]string, 0, len(steps))
	for _, op := range plan.Operations() {
		ops = append(ops, string(op))
	}
	logger := telemetry.FromContext(ctx)
	if len(ops) == 0 {
		logger.Debug("partition is already in the desired state")
	} else {
		logger.Infof("planned operations: %s", strings.Join(ops, ", "))
	}
	trace.SpanFromContext(ctx).AddEvent("plan.computed")
	return plan, nil
}

// enforcePolicy evaluates the plan and fails on error-severity violations.
func (r *Reconciler) enforcePolicy(ctx context.Context, run *Run, plan *Plan, req *Request) error {
	ops := make([]string, 0, len(plan.Steps))
	for _, op := range plan.Operations() {
		ops = append(ops, string(op))
	}
	_ = r.tel.Events.PublishPlanComputed(run.ID, req.Target(), ops)

	if r.policy == nil || !plan.Changed() {
		return nil
	}

	res, err := r.policy.EvaluatePlan(ctx, plan, req)
	if err != nil {
		return AsOperationError("policy evaluation failed", err).WithResource(req.Target())
	}

	logger := telemetry.FromContext(ctx)
	for _, w := range res.Warnings {
		logger.Warnf("policy warning: %s", w)
	}

	var denied []string
	for _, v := range res.Violations {
		r.tel.Metrics.RecordPolicyViolation(v.Policy, v.Severity)
		_ = r.tel.Events.PublishPolicyViolation(run.ID, req.Target(), v.Policy, v.Severity, v.Message)
		if v.Severity == "error" || v.Severity == "critical" {
			denied = append(denied, fmt.Sprintf("%s: %s", v.Policy, v.Message))
		} else {
			logger.Warnf("policy %s: %s", v.Policy, v.Message)
		}
	}
	if len(denied) > 0 || !res.Allowed {
		if len(denied) == 0 {
			denied = append(denied, "plan not allowed")
		}
		return NewParameterError("plan for partition %s denied by policy: %s", req.Target(), strings.Join(denied, "; ")).
			WithResource(req.Target()).
			WithCode(ErrCodePolicyDenied)
	}
	return nil
}

// project synthesizes the result of a plan without executing it.
func (r *Reconciler) project(ctx context.Context, part *Partition, plan *Plan, req *Request) (Properties, error) {
	if req.State == StateAbsent {
		return Properties{}, nil
	}

	var props Properties
	if part != nil {
		expanded, err := r.expand(ctx, part, req, false)
		if err != nil {
			return nil, err
		}
		props = expanded
	} else {
		props = Properties{schema.PropName.Name(): req.Name}
		if req.ExpandDependents {
			for _, key := range dependentKeys {
				props[key.property] = []interface{}{}
			}
		}
		if req.ExpandStorageGroups {
			props[propStorageGroups] = []interface{}{}
		}
	}

	cryptoChanged := false
	for _, step := range plan.Steps {
		if step.Operation == OperationCreate || step.Operation == OperationUpdate {
			props = MergeProperties(props, step.Properties)
			if _, ok := step.Properties[schema.PropCryptoConfiguration.Name()]; ok {
				cryptoChanged = true
			}
		}
	}
	// The planned configuration replaced the expanded one.
	if cryptoChanged && req.ExpandCryptoAdapters {
		if err := r.expandCryptoAdapters(ctx, req.Name, props); err != nil {
			return nil, err
		}
	}
	if status := ProjectedStatus(part, req.State); status != "" {
		props[schema.PropStatus.Name()] = string(status)
	}
	return props, nil
}

// execute performs one step and returns the partition URI afterwards.
func (r *Reconciler) execute(ctx context.Context, run *Run, cpc *CPC, req *Request, uri string, step Step) (string, error) {
	op := string(step.Operation)
	ctx, span := r.tel.Tracer.StartOperationSpan(ctx, req.Name, op)
	logger := telemetry.FromContext(ctx).WithOperation(op)
	_ = r.tel.Events.PublishOperation(telemetry.EventTypeOperationStarted, run.ID, req.Target(), op, nil)

	timer := telemetry.NewTimer()
	var err error
	switch step.Operation {
	case OperationCreate:
		var created *Partition
		created, err = r.transport.CreatePartition(ctx, cpc, step.Properties)
		if err == nil {
			if created == nil {
				err = fmt.Errorf("controller returned no partition")
			} else {
				uri = created.URI
			}
		}
	case OperationUpdate:
		err = r.transport.UpdatePartition(ctx, uri, step.Properties)
	case OperationStart:
		err = r.transport.StartPartition(ctx, uri)
	case OperationStop:
		err = r.transport.StopPartition(ctx, uri)
	case OperationDelete:
		err = r.transport.DeletePartition(ctx, uri)
	default:
		err = fmt.Errorf("unsupported operation %s", op)
	}

	if err == nil && len(step.WaitFor) > 0 {
		waitTimer := telemetry.NewTimer()
		_, err = r.poller.WaitForStatus(ctx, uri, step.WaitFor, r.waitTimeout)
		r.tel.Metrics.RecordStatusWait(string(step.WaitFor[0]), waitTimer.Duration())
	}

	if err != nil {
		r.tel.Metrics.RecordOperation(op, "failure", timer.Duration())
		ee := AsOperationError(fmt.Sprintf("%s of partition %s failed", op, req.Target()), err).
			WithOperation(op)
		if ee.Resource == "" {
			ee.WithResource(req.Target())
		}
		_ = r.tel.Events.PublishOperation(telemetry.EventTypeOperationFailed, run.ID, req.Target(), op, ee)
		telemetry.EndSpan(span, ee)
		logger.WithError(ee).Error("operation failed")
		return uri, ee
	}

	r.tel.Metrics.RecordOperation(op, "success", timer.Duration())
	_ = r.tel.Events.PublishOperation(telemetry.EventTypeOperationCompleted, run.ID, req.Target(), op, nil)
	telemetry.EndSpan(span, nil)
	logger.Infof("%s completed in %s", op, timer.Duration().Round(time.Millisecond))
	return uri, nil
}

// finish records the outcome of a run in metrics, events, the span and the
// run history.
func (r *Reconciler) finish(ctx context.Context, span trace.Span, run *Run, req *Request, result *Result, err error) {
	run.CompletedAt = r.now()
	logger := telemetry.FromContext(ctx)

	outcome := "unchanged"
	switch {
	case err != nil:
		outcome = "failed"
		run.Status = RunStatusFailed
		run.Error = err.Error()
		run.ErrorClass = ClassOf(err)
		class := string(run.ErrorClass)
		if class == "" {
			class = "unclassified"
		}
		r.tel.Metrics.RecordError(class)
		_ = r.tel.Events.PublishRunFailed(run.ID, req.Target(), err)
		span.SetAttributes(telemetry.AttrErrorClass.String(class))
		logger.WithError(err).Warn("reconciliation failed")
	default:
		run.Status = RunStatusSucceeded
		if req.CheckMode {
			run.Status = RunStatusChecked
		}
		result.RunID = run.ID
		run.Changed = result.Changed
		run.Snapshot = result.Properties
		if result.Changed {
			outcome = "changed"
		}
		_ = r.tel.Events.PublishRunCompleted(run.ID, req.Target(), result.Changed, run.Duration())
		span.SetAttributes(telemetry.AttrChanged.Bool(result.Changed))
		logger.Infof("reconciliation finished (changed %t)", result.Changed)
	}

	r.tel.Metrics.RecordReconciliation(string(req.State), outcome, run.Duration())
	telemetry.EndSpan(span, err)

	if r.recorder != nil {
		if rerr := r.recorder.SaveRun(ctx, run); rerr != nil {
			logger.WithError(rerr).Warn("failed to record run")
		}
	}
}
