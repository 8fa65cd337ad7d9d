package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/partsync/pkg/schema"
)

var requestValidator = newRequestValidator()

// newRequestValidator reports fields by their JSON names.
func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Properties maps controller property names (e.g. "ifl-processors") to values.
type Properties map[string]interface{}

// Clone returns a shallow copy of the property map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// CPC is the compute complex that scopes partitions and adapters.
type CPC struct {
	// Name is the CPC name.
	Name string `json:"name"`

	// URI is the canonical object URI.
	URI string `json:"uri"`

	// DPMEnabled reports whether the CPC is in partition (DPM) mode.
	DPMEnabled bool `json:"dpm_enabled"`
}

// Partition is a snapshot of a partition on the controller. A partition that
// does not exist is represented by a nil *Partition.
type Partition struct {
	// Name is the partition name, unique within its CPC.
	Name string `json:"name"`

	// URI is the canonical object URI.
	URI string `json:"uri"`

	// CPCURI is the URI of the parent CPC.
	CPCURI string `json:"cpc_uri"`

	// Status is the status reported by the controller.
	Status PartitionStatus `json:"status"`

	// Properties are all properties keyed by controller name.
	Properties Properties `json:"properties"`
}

// StatusClassOf returns the status class of a possibly absent partition.
func StatusClassOf(p *Partition) StatusClass {
	if p == nil {
		return StatusClassAbsent
	}
	return p.Status.Class()
}

// DependentKind identifies a kind of dependent resource.
type DependentKind = schema.DependentKind

// Dependent is a resource attached to a partition or its CPC: a NIC, an HBA,
// a virtual function, a storage group or an adapter. Dependents are only
// looked up, never mutated.
type Dependent struct {
	Kind       DependentKind `json:"kind"`
	Name       string        `json:"name"`
	URI        string        `json:"uri"`
	Properties Properties    `json:"properties,omitempty"`
}

// DomainConfig assigns one crypto domain to a partition.
type DomainConfig struct {
	DomainIndex int    `json:"domain-index"`
	AccessMode  string `json:"access-mode"`
}

// Crypto access modes accepted by the controller.
const (
	AccessModeControl      = "control"
	AccessModeControlUsage = "control-usage"
)

// CryptoConfiguration is the crypto adapter and domain assignment of a
// partition. A nil *CryptoConfiguration means the partition has no crypto
// configuration, which is different from an empty one.
type CryptoConfiguration struct {
	AdapterURIs          []string       `json:"crypto-adapter-uris"`
	DomainConfigurations []DomainConfig `json:"crypto-domain-configurations"`
}

// Request is one reconciliation request.
type Request struct {
	// CPCName is the name of the parent CPC.
	CPCName string `json:"cpc_name" validate:"required"`

	// Name is the partition name.
	Name string `json:"name" validate:"required"`

	// State is the desired lifecycle state.
	State DesiredState `json:"state" validate:"required,oneof=absent stopped active facts"`

	// Properties are the desired properties keyed by input name
	// (underscores or hyphens).
	Properties map[string]interface{} `json:"properties,omitempty"`

	// ExpandDependents adds nics, hbas and virtual-functions to the result.
	ExpandDependents bool `json:"expand_dependents,omitempty"`

	// ExpandStorageGroups adds the attached storage-groups to the result.
	ExpandStorageGroups bool `json:"expand_storage_groups,omitempty"`

	// ExpandCryptoAdapters adds crypto-adapters to the crypto configuration
	// in the result.
	ExpandCryptoAdapters bool `json:"expand_crypto_adapters,omitempty"`

	// CheckMode computes the outcome without issuing mutating calls.
	CheckMode bool `json:"check_mode,omitempty"`
}

// Target returns a readable identity for logs and errors.
func (r *Request) Target() string {
	return r.CPCName + "/" + r.Name
}

// Validate checks the request envelope. Properties are validated later
// against the schema.
func (r *Request) Validate() error {
	err := requestValidator.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewParameterError("invalid request: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return NewParameterError("invalid request: %s", strings.Join(msgs, "; "))
}

// Change represents a single property change.
type Change struct {
	// Path is the controller property name being changed.
	Path string `json:"path"`

	// Before is the value before the change.
	Before interface{} `json:"before,omitempty"`

	// After is the value after the change.
	After interface{} `json:"after,omitempty"`

	// Action describes the change action (add, modify).
	Action ChangeAction `json:"action"`
}

// ChangeAction represents the type of change being made.
type ChangeAction string

const (
	// ChangeActionAdd indicates a property that has no current value.
	ChangeActionAdd ChangeAction = "add"

	// ChangeActionModify indicates a property value is being changed.
	ChangeActionModify ChangeAction = "modify"
)

// Step is one remote operation of a plan.
type Step struct {
	// Operation is the remote operation.
	Operation OperationType `json:"operation"`

	// Properties is the payload of create and update steps.
	Properties Properties `json:"properties,omitempty"`

	// WaitFor lists the statuses to wait for after the operation, if any.
	WaitFor []PartitionStatus `json:"wait_for,omitempty"`
}

// Plan is the ordered set of remote operations converging one partition.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// CPCName and PartitionName identify the target.
	CPCName       string `json:"cpc_name"`
	PartitionName string `json:"partition_name"`

	// CurrentClass is the status class the plan was computed from.
	CurrentClass StatusClass `json:"current_class"`

	// DesiredState is the requested state.
	DesiredState DesiredState `json:"desired_state"`

	// Steps are executed strictly in order.
	Steps []Step `json:"steps"`

	// Changes lists the property changes carried by the create or update step.
	Changes []Change `json:"changes,omitempty"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`
}

// Changed reports whether executing the plan changes anything.
func (p *Plan) Changed() bool {
	return len(p.Steps) > 0
}

// Operations returns the operation sequence of the plan.
func (p *Plan) Operations() []OperationType {
	ops := make([]OperationType, 0, len(p.Steps))
	for _, s := range p.Steps {
		ops = append(ops, s.Operation)
	}
	return ops
}

// Result is the outcome of a reconciliation.
type Result struct {
	// Changed reports whether the partition was (or in check mode would be)
	// changed.
	Changed bool `json:"changed"`

	// Properties is the resulting full property set. It is empty when the
	// partition ends up absent.
	Properties Properties `json:"properties"`

	// Plan is the plan that was computed, nil for facts.
	Plan *Plan `json:"plan,omitempty"`

	// RunID identifies the run that produced the result.
	RunID string `json:"-"`
}

// Run records one reconciliation invocation.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// CPCName and PartitionName identify the target.
	CPCName       string `json:"cpc_name"`
	PartitionName string `json:"partition_name"`

	// DesiredState is the requested state.
	DesiredState DesiredState `json:"desired_state"`

	// CheckMode reports whether the run was a dry run.
	CheckMode bool `json:"check_mode"`

	// Status is the final status of the run.
	Status RunStatus `json:"status"`

	// Changed is the reported change verdict.
	Changed bool `json:"changed"`

	// Operations are the operations that were executed (or planned in check mode).
	Operations []OperationType `json:"operations,omitempty"`

	// Error is the rendered error, if the run failed.
	Error string `json:"error,omitempty"`

	// ErrorClass is the class of the error, if the run failed.
	ErrorClass ErrorClass `json:"error_class,omitempty"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt time.Time `json:"completed_at"`

	// Snapshot is the final property set, if any.
	Snapshot Properties `json:"snapshot,omitempty"`
}

// Duration returns the run duration.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
