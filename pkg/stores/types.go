package stores

import (
	"context"
	"time"

	"github.com/openfroyo/partsync/pkg/engine"
	"github.com/openfroyo/partsync/pkg/telemetry"
)

// Event is a persisted telemetry event.
type Event struct {
	ID        int64                  `json:"id"`
	EventID   string                 `json:"event_id"`
	RunID     string                 `json:"run_id,omitempty"`
	Type      string                 `json:"type"`
	Level     string                 `json:"level"`
	Resource  string                 `json:"resource,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventFromTelemetry converts a published event for storage.
func EventFromTelemetry(e telemetry.Event) *Event {
	return &Event{
		EventID:   e.ID,
		RunID:     e.RunID,
		Type:      e.Type,
		Level:     e.Level,
		Resource:  e.Resource,
		Operation: e.Operation,
		Message:   e.Message,
		Data:      e.Data,
		Timestamp: e.Timestamp,
	}
}

// Snapshot is the last known property set of a partition.
type Snapshot struct {
	CPCName       string            `json:"cpc_name"`
	PartitionName string            `json:"partition_name"`
	Properties    engine.Properties `json:"properties"`
	Hash          string            `json:"hash"` // BLAKE2b-256 of the canonical JSON
	LastRunID     string            `json:"last_run_id"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RunFilter selects runs for ListRuns. Empty fields match everything.
type RunFilter struct {
	CPCName       string
	PartitionName string
	Status        engine.RunStatus
	Limit         int
	Offset        int
}

// EventFilter selects events for GetEvents. Empty fields match everything.
type EventFilter struct {
	RunID  string
	Type   string
	Level  string
	Limit  int
	Offset int
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run history
	SaveRun(ctx context.Context, run *engine.Run) error
	GetRun(ctx context.Context, id string) (*engine.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*engine.Run, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)

	// Event log
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// Partition snapshots
	SaveSnapshot(ctx context.Context, snap *Snapshot) (bool, error)
	GetSnapshot(ctx context.Context, cpcName, partitionName string) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, cpcName, partitionName string) error

	// Utility
	HealthCheck(ctx context.Context) error
}

var _ engine.RunRecorder = (*SQLiteStore)(nil)
