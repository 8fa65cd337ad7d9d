package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedPartitionsPolicy(),
		memoryLimitsPolicy(),
		disruptiveUpdatePolicy(),
	}
}

// protectedPartitionsPolicy denies stopping or deleting protected partitions.
func protectedPartitionsPolicy() Policy {
	return Policy{
		Name:        "protected-partitions",
		Description: "Denies deleting partitions whose name starts with a protected prefix",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety"},
		Rego: `package partsync.policies.protected

import rego.v1

protected if {
	some prefix in data.partsync.settings.protected_prefixes
	startswith(input.partition.name, prefix)
}

deny contains violation if {
	protected
	"delete" in input.operations
	violation := {
		"message": sprintf("partition %s is protected and cannot be deleted", [input.partition.name]),
		"severity": "error",
		"resource": sprintf("%s/%s", [input.partition.cpc, input.partition.name]),
	}
}
`,
	}
}

// memoryLimitsPolicy checks the memory requested by create and update steps.
func memoryLimitsPolicy() Policy {
	return Policy{
		Name:        "memory-limits",
		Description: "Checks initial and maximum memory of create and update payloads",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"capacity"},
		Rego: `package partsync.policies.memory

import rego.v1

payloads contains step.properties if {
	some step in input.plan.steps
	step.operation in {"create", "update"}
	step.properties
}

deny contains violation if {
	some props in payloads
	props["initial-memory"] > props["maximum-memory"]
	violation := {
		"message": sprintf("initial-memory %v exceeds maximum-memory %v", [props["initial-memory"], props["maximum-memory"]]),
		"severity": "warning",
	}
}

deny contains violation if {
	limit := data.partsync.settings.max_memory_mb
	limit > 0
	some props in payloads
	props["maximum-memory"] > limit
	violation := {
		"message": sprintf("maximum-memory %v exceeds the limit of %v MB", [props["maximum-memory"], limit]),
		"severity": "error",
	}
}
`,
	}
}

// disruptiveUpdatePolicy warns when an update has to stop an active partition.
func disruptiveUpdatePolicy() Policy {
	return Policy{
		Name:        "disruptive-update",
		Description: "Warns when a property change requires stopping an active partition",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"availability"},
		Rego: `package partsync.policies.disruptive

import rego.v1

deny contains msg if {
	input.partition.state == "active"
	input.operations == ["stop", "update", "start"]
	msg := sprintf("partition %s will be restarted to apply the update", [input.partition.name])
}
`,
	}
}
