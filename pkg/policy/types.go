package policy

import (
	"time"

	"github.com/openfroyo/partsync/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is reported but does not block the plan.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the plan.
	SeverityError Severity = "error"

	// SeverityCritical blocks the plan.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies a plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The Rego module must
// define a deny set in its package; each element is either a message string
// or an object with message, severity and resource fields.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// PolicyInput is the input document of every evaluation.
type PolicyInput struct {
	// Partition describes the request the plan was computed from.
	Partition PartitionInput `json:"partition"`

	// Plan is the computed plan.
	Plan *engine.Plan `json:"plan"`

	// Operations is the operation sequence of the plan.
	Operations []string `json:"operations"`

	// Context provides additional evaluation context.
	Context PolicyContext `json:"context"`
}

// PartitionInput is the request part of the input document.
type PartitionInput struct {
	CPC        string                 `json:"cpc"`
	Name       string                 `json:"name"`
	State      string                 `json:"state"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// CheckMode indicates a dry run.
	CheckMode bool `json:"check_mode"`
}

// Settings is published to policies as data.partsync.settings.
type Settings struct {
	// ProtectedPrefixes are partition name prefixes that must not be deleted.
	ProtectedPrefixes []string `json:"protected_prefixes"`

	// MaxMemoryMB is the largest maximum-memory a plan may request; zero
	// disables the check.
	MaxMemoryMB int `json:"max_memory_mb"`
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{ProtectedPrefixes: []string{"prod-"}}
}
