package engine

import (
	"fmt"

	"github.com/openfroyo/partsync/pkg/schema"
)

// PlanSteps returns the ordered remote operations that converge a partition
// of the given status class to the desired state. diff may be nil when no
// properties were requested. The create step carries the partition name
// along with the diff payload.
//
// Property updates that are not settable while active are never issued on
// an active partition: they go before a start, after a stop, or between a
// stop and a start.
func PlanSteps(name string, class StatusClass, desired DesiredState, diff *PropertyDiff) ([]Step, error) {
	if err := desired.Validate(); err != nil {
		return nil, NewParameterError("%v", err)
	}
	if desired == StateFacts {
		return nil, nil
	}

	var payload Properties
	requiresStop := false
	if diff != nil && diff.HasChanges() {
		payload = diff.Payload
		requiresStop = diff.RequiresStop
	}

	create := func() Step {
		props := make(Properties, len(payload)+1)
		for k, v := range payload {
			props[k] = v
		}
		props[schema.PropName.Name()] = name
		return Step{Operation: OperationCreate, Properties: props}
	}
	update := func() []Step {
		if len(payload) == 0 {
			return nil
		}
		return []Step{{Operation: OperationUpdate, Properties: payload.Clone()}}
	}
	start := Step{Operation: OperationStart, WaitFor: ActiveStatuses}
	stop := Step{Operation: OperationStop, WaitFor: StoppedStatuses}
	del := Step{Operation: OperationDelete}

	switch class {
	case StatusClassAbsent:
		switch desired {
		case StateAbsent:
			return nil, nil
		case StateStopped:
			return []Step{create()}, nil
		case StateActive:
			return []Step{create(), start}, nil
		}

	case StatusClassStopped:
		switch desired {
		case StateAbsent:
			return []Step{del}, nil
		case StateStopped:
			return update(), nil
		case StateActive:
			return append(update(), start), nil
		}

	case StatusClassActive:
		switch desired {
		case StateAbsent:
			return []Step{stop, del}, nil
		case StateStopped:
			return append([]Step{stop}, update()...), nil
		case StateActive:
			steps := update()
			if len(steps) > 0 && requiresStop {
				return []Step{stop, steps[0], start}, nil
			}
			return steps, nil
		}
	}

	return nil, fmt.Errorf("no lifecycle transition from %s to %s", class, desired)
}

// ProjectedStatus returns the status a partition is expected to have after
// reaching the desired state, or the current status when nothing changes.
func ProjectedStatus(current *Partition, desired DesiredState) PartitionStatus {
	switch desired {
	case StateActive:
		if current != nil && current.Status.Class() == StatusClassActive {
			return current.Status
		}
		return PartitionStatusActive
	case StateStopped:
		if current != nil && current.Status.Class() == StatusClassStopped {
			return current.Status
		}
		return PartitionStatusStopped
	}
	if current != nil {
		return current.Status
	}
	return ""
}
