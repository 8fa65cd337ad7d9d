package engine

import (
	"reflect"
	"testing"
)

func ops(steps []Step) []OperationType {
	out := make([]OperationType, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Operation)
	}
	return out
}

func TestPlanSteps(t *testing.T) {
	withChanges := &PropertyDiff{Payload: Properties{"description": "x"}}
	stopOnly := &PropertyDiff{Payload: Properties{"processor-mode": "dedicated"}, RequiresStop: true}

	tests := []struct {
		name    string
		class   StatusClass
		desired DesiredState
		diff    *PropertyDiff
		want    []OperationType
	}{
		{"absent to absent", StatusClassAbsent, StateAbsent, nil, []OperationType{}},
		{"absent to stopped", StatusClassAbsent, StateStopped, nil, []OperationType{OperationCreate}},
		{"absent to active", StatusClassAbsent, StateActive, withChanges, []OperationType{OperationCreate, OperationStart}},
		{"stopped to absent", StatusClassStopped, StateAbsent, withChanges, []OperationType{OperationDelete}},
		{"stopped unchanged", StatusClassStopped, StateStopped, nil, []OperationType{}},
		{"stopped updated", StatusClassStopped, StateStopped, withChanges, []OperationType{OperationUpdate}},
		{"stopped to active", StatusClassStopped, StateActive, nil, []OperationType{OperationStart}},
		{"stopped to active updated", StatusClassStopped, StateActive, stopOnly, []OperationType{OperationUpdate, OperationStart}},
		{"active to absent", StatusClassActive, StateAbsent, nil, []OperationType{OperationStop, OperationDelete}},
		{"active to stopped", StatusClassActive, StateStopped, nil, []OperationType{OperationStop}},
		{"active to stopped updated", StatusClassActive, StateStopped, withChanges, []OperationType{OperationStop, OperationUpdate}},
		{"active unchanged", StatusClassActive, StateActive, nil, []OperationType{}},
		{"active updated", StatusClassActive, StateActive, withChanges, []OperationType{OperationUpdate}},
		{"active stopped-only update", StatusClassActive, StateActive, stopOnly, []OperationType{OperationStop, OperationUpdate, OperationStart}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := PlanSteps("p1", tt.class, tt.desired, tt.diff)
			if err != nil {
				t.Fatalf("PlanSteps() error = %v", err)
			}
			if got := ops(steps); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PlanSteps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanStepsCreatePayload(t *testing.T) {
	diff := &PropertyDiff{Payload: Properties{"ifl-processors": 2}}
	steps, err := PlanSteps("p1", StatusClassAbsent, StateActive, diff)
	if err != nil {
		t.Fatalf("PlanSteps() error = %v", err)
	}
	create := steps[0]
	if create.Properties["name"] != "p1" || create.Properties["ifl-processors"] != 2 {
		t.Errorf("create payload = %v", create.Properties)
	}
	if _, ok := diff.Payload["name"]; ok {
		t.Error("create step must not modify the diff payload")
	}
	if !reflect.DeepEqual(steps[1].WaitFor, ActiveStatuses) {
		t.Errorf("start waits for %v, want %v", steps[1].WaitFor, ActiveStatuses)
	}
}

func TestPlanStepsNeverUpdatesActiveWithStoppedOnly(t *testing.T) {
	diff := &PropertyDiff{Payload: Properties{"maximum-memory": 4096}, RequiresStop: true}
	for _, desired := range []DesiredState{StateStopped, StateActive} {
		steps, err := PlanSteps("p1", StatusClassActive, desired, diff)
		if err != nil {
			t.Fatalf("PlanSteps(%s) error = %v", desired, err)
		}
		active := true
		for _, s := range steps {
			switch s.Operation {
			case OperationStop:
				active = false
			case OperationStart:
				active = true
			case OperationUpdate:
				if active {
					t.Errorf("PlanSteps(%s) = %v updates an active partition", desired, ops(steps))
				}
			}
		}
	}
}

func TestPlanStepsRejectsUnsupported(t *testing.T) {
	if _, err := PlanSteps("p1", StatusClassAbsent, "running", nil); !IsParameterError(err) {
		t.Errorf("expected parameter error for unknown state, got %v", err)
	}
	if _, err := PlanSteps("p1", StatusClassTransitional, StateActive, nil); err == nil {
		t.Error("expected error for transitional class")
	}
	steps, err := PlanSteps("p1", StatusClassActive, StateFacts, nil)
	if err != nil || steps != nil {
		t.Errorf("facts must plan nothing, got %v, %v", steps, err)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[PartitionStatus]StatusClass{
		PartitionStatusStopped:          StatusClassStopped,
		PartitionStatusPaused:           StatusClassStopped,
		PartitionStatusTerminated:       StatusClassStopped,
		PartitionStatusActive:           StatusClassActive,
		PartitionStatusDegraded:         StatusClassActive,
		PartitionStatusReservationError: StatusClassActive,
		PartitionStatusStarting:         StatusClassTransitional,
		PartitionStatusStopping:         StatusClassTransitional,
		PartitionStatusNotActive:        StatusClassUnsupported,
		PartitionStatusStatusCheck:      StatusClassUnsupported,
		"bogus":                         StatusClassUnsupported,
	}
	for status, want := range tests {
		if got := status.Class(); got != want {
			t.Errorf("%s.Class() = %s, want %s", status, got, want)
		}
	}
	if got := StatusClassOf(nil); got != StatusClassAbsent {
		t.Errorf("StatusClassOf(nil) = %s", got)
	}
}

func TestProjectedStatus(t *testing.T) {
	degraded := &Partition{Status: PartitionStatusDegraded}
	paused := &Partition{Status: PartitionStatusPaused}

	tests := []struct {
		name    string
		current *Partition
		desired DesiredState
		want    PartitionStatus
	}{
		{"create active", nil, StateActive, PartitionStatusActive},
		{"create stopped", nil, StateStopped, PartitionStatusStopped},
		{"keep degraded", degraded, StateActive, PartitionStatusDegraded},
		{"stop degraded", degraded, StateStopped, PartitionStatusStopped},
		{"keep paused", paused, StateStopped, PartitionStatusPaused},
		{"start paused", paused, StateActive, PartitionStatusActive},
		{"absent", nil, StateAbsent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProjectedStatus(tt.current, tt.desired); got != tt.want {
				t.Errorf("ProjectedStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"valid", Request{CPCName: "c", Name: "p", State: StateActive}, ""},
		{"missing cpc", Request{Name: "p", State: StateActive}, "ParameterError: invalid request: cpc_name is required"},
		{"missing state", Request{CPCName: "c", Name: "p"}, "ParameterError: invalid request: state is required"},
		{"bad state", Request{CPCName: "c", Name: "p", State: "on"},
			`ParameterError: invalid request: state must be one of [absent stopped active facts], got "on"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %v, want %s", err, tt.wantErr)
			}
		})
	}
}
