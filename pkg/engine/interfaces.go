package engine

import (
	"context"
	"time"
)

// Directory looks up resources by name.
type Directory interface {
	// FindCPC returns the CPC with the given name, or nil when it does not exist.
	FindCPC(ctx context.Context, name string) (*CPC, error)

	// FindPartition returns the partition with the given name in the CPC,
	// or nil when it does not exist.
	FindPartition(ctx context.Context, cpc *CPC, name string) (*Partition, error)

	// FindDependents returns every dependent of the given kind and name in
	// scope. The scope is the partition URI for NICs and HBAs and the CPC
	// URI for adapters. Callers treat zero or several matches as a lookup
	// failure.
	FindDependents(ctx context.Context, scopeURI string, kind DependentKind, name string) ([]Dependent, error)
}

// Transport performs the remote operations on partitions.
type Transport interface {
	// GetPartition reads the current snapshot of a partition.
	GetPartition(ctx context.Context, uri string) (*Partition, error)

	// CreatePartition creates a partition with its initial properties.
	// The properties include "name".
	CreatePartition(ctx context.Context, cpc *CPC, props Properties) (*Partition, error)

	// UpdatePartition updates the given properties in a single call.
	UpdatePartition(ctx context.Context, uri string, props Properties) error

	// StartPartition starts a partition. Completion is observed by polling.
	StartPartition(ctx context.Context, uri string) error

	// StopPartition stops a partition. Completion is observed by polling.
	StopPartition(ctx context.Context, uri string) error

	// DeletePartition deletes a partition.
	DeletePartition(ctx context.Context, uri string) error

	// ListDependents lists the dependents of a partition of the given kind,
	// with their full properties.
	ListDependents(ctx context.Context, partitionURI string, kind DependentKind) ([]Dependent, error)

	// GetDependent reads one dependent by URI.
	GetDependent(ctx context.Context, kind DependentKind, uri string) (*Dependent, error)
}

// StatusPoller waits for asynchronous status transitions.
type StatusPoller interface {
	// WaitForStatus polls the partition until its status is one of want or
	// the timeout elapses. It returns the last snapshot read.
	WaitForStatus(ctx context.Context, uri string, want []PartitionStatus, timeout time.Duration) (*Partition, error)
}

// PolicyEngine enforces policies on computed plans.
type PolicyEngine interface {
	// EvaluatePlan evaluates policies against a plan and the request it was
	// computed from.
	EvaluatePlan(ctx context.Context, plan *Plan, req *Request) (*PolicyResult, error)
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed indicates if the plan may be executed.
	Allowed bool `json:"allowed"`

	// Violations lists policy violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policy warnings.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the policy name that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity (error, warning).
	Severity string `json:"severity"`

	// Resource is the partition that violated the policy, if applicable.
	Resource string `json:"resource,omitempty"`
}

// RunRecorder persists the history of reconciliation runs.
type RunRecorder interface {
	// SaveRun persists a completed run.
	SaveRun(ctx context.Context, run *Run) error
}
