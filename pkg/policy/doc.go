// Package policy evaluates Open Policy Agent (OPA) Rego policies against
// partition plans before they are executed.
//
// An Engine implements engine.PolicyEngine. Every enabled policy is a Rego
// module defining a deny set; each element is either a message string or an
// object with message, severity and resource fields. Violations of error or
// critical severity deny the plan, anything else is reported only.
//
// # Input
//
// Policies see the following input document:
//
//	{
//	  "partition":  {"cpc": "CPC1", "name": "web", "state": "active", "properties": {...}},
//	  "plan":       {"steps": [{"operation": "update", "properties": {...}}], "changes": [...]},
//	  "operations": ["stop", "update", "start"],
//	  "context":    {"timestamp": "...", "check_mode": false}
//	}
//
// Settings are published as data.partsync.settings and can be replaced at
// runtime with UpdateSettings.
//
// # Built-in Policies
//
//   - protected-partitions: denies deleting partitions with a protected name prefix
//   - memory-limits: checks initial and maximum memory of create and update payloads
//   - disruptive-update: warns when an update restarts an active partition
//
// # Custom Policies
//
// LoadPolicies reads .rego files, and .json or .yaml manifests embedding
// Rego code. A Loader can watch the same paths and hand reloaded policies
// to ReplacePolicies:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, paths); err != nil {
//	    return err
//	}
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(p []policy.Policy) error {
//	    return eng.ReplacePolicies(ctx, p)
//	})
package policy
