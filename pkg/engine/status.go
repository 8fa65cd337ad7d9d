package engine

import (
	"encoding/json"
	"fmt"
)

// PartitionStatus is the status reported by the controller for a partition.
type PartitionStatus string

const (
	PartitionStatusStopped          PartitionStatus = "stopped"
	PartitionStatusActive           PartitionStatus = "active"
	PartitionStatusDegraded         PartitionStatus = "degraded"
	PartitionStatusReservationError PartitionStatus = "reservation-error"
	PartitionStatusStarting         PartitionStatus = "starting"
	PartitionStatusStopping         PartitionStatus = "stopping"
	PartitionStatusPaused           PartitionStatus = "paused"
	PartitionStatusTerminated       PartitionStatus = "terminated"
	PartitionStatusNotActive        PartitionStatus = "communications-not-active"
	PartitionStatusStatusCheck      PartitionStatus = "status-check"
)

// StatusClass is the coarse classification the lifecycle decisions are made on.
type StatusClass string

const (
	// StatusClassAbsent indicates the partition does not exist.
	StatusClassAbsent StatusClass = "absent"

	// StatusClassStopped covers stopped, paused and terminated partitions.
	StatusClassStopped StatusClass = "stopped-like"

	// StatusClassActive covers active, degraded and reservation-error partitions.
	StatusClassActive StatusClass = "active-like"

	// StatusClassTransitional covers starting and stopping partitions.
	// These are waited on until they settle.
	StatusClassTransitional StatusClass = "transitional"

	// StatusClassUnsupported covers statuses that cannot be reconciled.
	StatusClassUnsupported StatusClass = "unsupported"
)

// Class collapses a partition status into its status class.
func (s PartitionStatus) Class() StatusClass {
	switch s {
	case PartitionStatusStopped, PartitionStatusPaused, PartitionStatusTerminated:
		return StatusClassStopped
	case PartitionStatusActive, PartitionStatusDegraded, PartitionStatusReservationError:
		return StatusClassActive
	case PartitionStatusStarting, PartitionStatusStopping:
		return StatusClassTransitional
	default:
		return StatusClassUnsupported
	}
}

// ActiveStatuses are the statuses a started partition is expected to reach.
var ActiveStatuses = []PartitionStatus{PartitionStatusActive, PartitionStatusDegraded, PartitionStatusReservationError}

// StoppedStatuses are the statuses a stopped partition is expected to reach.
var StoppedStatuses = []PartitionStatus{PartitionStatusStopped}

// SettledStatuses are all non-transitional statuses.
var SettledStatuses = []PartitionStatus{
	PartitionStatusStopped, PartitionStatusActive, PartitionStatusDegraded,
	PartitionStatusReservationError, PartitionStatusPaused, PartitionStatusTerminated,
	PartitionStatusNotActive, PartitionStatusStatusCheck,
}

// DesiredState is the requested lifecycle state of a partition.
type DesiredState string

const (
	// StateAbsent requests that the partition does not exist.
	StateAbsent DesiredState = "absent"

	// StateStopped requests that the partition exists and is stopped.
	StateStopped DesiredState = "stopped"

	// StateActive requests that the partition exists and is active.
	StateActive DesiredState = "active"

	// StateFacts requests a read-only report of the partition.
	StateFacts DesiredState = "facts"
)

// IsMutating returns true if reconciling to the state may change the partition.
func (s DesiredState) IsMutating() bool {
	return s != StateFacts
}

// Validate checks if the desired state is valid.
func (s DesiredState) Validate() error {
	switch s {
	case StateAbsent, StateStopped, StateActive, StateFacts:
		return nil
	default:
		return fmt.Errorf("invalid desired state: %q", string(s))
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s DesiredState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *DesiredState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = DesiredState(str)
	return s.Validate()
}

// OperationType represents a remote operation on a partition.
type OperationType string

const (
	// OperationCreate creates the partition with its initial properties.
	OperationCreate OperationType = "create"

	// OperationUpdate updates changed properties in a single call.
	OperationUpdate OperationType = "update"

	// OperationStart starts the partition.
	OperationStart OperationType = "start"

	// OperationStop stops the partition.
	OperationStop OperationType = "stop"

	// OperationDelete deletes the partition.
	OperationDelete OperationType = "delete"
)

// IsDestructive returns true if the operation destroys the partition.
func (o OperationType) IsDestructive() bool {
	return o == OperationDelete
}

// Validate checks if the operation type is valid.
func (o OperationType) Validate() error {
	switch o {
	case OperationCreate, OperationUpdate, OperationStart, OperationStop, OperationDelete:
		return nil
	default:
		return fmt.Errorf("invalid operation type: %s", o)
	}
}

// RunStatus represents the overall status of a reconciliation run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates the run completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusChecked indicates a check-mode run that issued no mutation.
	RunStatusChecked RunStatus = "checked"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusChecked
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusChecked:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}
