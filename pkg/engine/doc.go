// Package engine reconciles one partition of a CPC towards a desired state.
//
// # Overview
//
// A reconciliation runs in a fixed sequence of phases:
//
//  1. Lookup - find the parent CPC and the partition by name (Directory)
//  2. Settle - wait for a starting or stopping partition to settle (StatusPoller)
//  3. Resolve - validate the input properties against the schema (PropertyResolver)
//  4. Diff - compare resolved properties with the snapshot (ComputeDiff)
//  5. Plan - choose the remote operations from the status class (PlanSteps)
//  6. Execute - issue the operations in order and wait for each (Transport)
//  7. Result - read back the final snapshot and report a change verdict
//
// In check mode the sequence stops after Plan and the result is projected
// from the plan instead of read back.
//
// # Core Types
//
//   - Request: the desired state, properties and expansion flags
//   - Partition: a snapshot of a partition, nil when it does not exist
//   - Step: one remote operation with its payload and the statuses to wait for
//   - Plan: the ordered steps and the property changes they carry
//   - Result: the change verdict and the resulting properties
//   - Run: the recorded history entry of one invocation
//
// # Remote Interfaces
//
// The engine talks to the controller only through Directory, Transport and
// StatusPoller. The simulated provider implements all three for tests and
// offline use:
//
//	ctrl, err := simulated.New(ctx, inventory)
//	rec := engine.NewReconciler(ctrl, ctrl, engine.WithTelemetry(tel))
//	res, err := rec.Reconcile(ctx, &engine.Request{
//	    CPCName: "CPC1",
//	    Name:    "web",
//	    State:   engine.StateActive,
//	    Properties: map[string]interface{}{
//	        "ifl_processors": 2,
//	    },
//	})
//
// # Error Classification
//
// Every error returned by Reconcile is an *EngineError whose rendered message
// starts with its class:
//
//   - ParameterError: invalid input, raised before any remote mutation
//   - NotFoundError: the CPC, or the partition whose facts were requested, is missing
//   - OperationError: a remote call failed; the remote message is kept verbatim
//   - TimeoutError: a status wait elapsed
//
// Use the helpers to inspect them:
//
//	if engine.IsParameterError(err) {
//	    // fix the request
//	}
//
// A failed run is never rolled back. Operations completed before the failure
// stay in effect and the next run continues from the new status.
//
// # Concurrency
//
// A Reconciler holds no per-run state and may be shared. Two runs against the
// same partition are not serialized by the engine; the controller rejects
// conflicting calls while a partition is locked.
package engine
