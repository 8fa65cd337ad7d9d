package stores

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/openfroyo/partsync/pkg/engine"
	"github.com/openfroyo/partsync/pkg/telemetry"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testRun(id, partition string, started time.Time) *engine.Run {
	return &engine.Run{
		ID:            id,
		CPCName:       "CPC1",
		PartitionName: partition,
		DesiredState:  engine.StateActive,
		Status:        engine.RunStatusSucceeded,
		Changed:       true,
		Operations:    []engine.OperationType{engine.OperationCreate, engine.OperationStart},
		StartedAt:     started,
		CompletedAt:   started.Add(2 * time.Second),
		Snapshot:      engine.Properties{"name": partition, "status": "active"},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}

	path := filepath.Join(t.TempDir(), "partsync.db")
	ctx := context.Background()
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// migrating an up-to-date database is a no-op
	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "run_operations", "events", "resource_state"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestRunRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := testRun("run-001", "web", started)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.PartitionName != "web" || got.Status != engine.RunStatusSucceeded || !got.Changed {
		t.Errorf("GetRun() = %+v", got)
	}
	if !reflect.DeepEqual(got.Operations, run.Operations) {
		t.Errorf("operations = %v, want %v", got.Operations, run.Operations)
	}
	if !got.StartedAt.Equal(started) || got.Duration() != 2*time.Second {
		t.Errorf("times = %s .. %s", got.StartedAt, got.CompletedAt)
	}
	if got.Snapshot["status"] != "active" {
		t.Errorf("snapshot = %v", got.Snapshot)
	}

	// saving again replaces the outcome and the operations
	run.Status = engine.RunStatusFailed
	run.Error = "OperationError: failed to start partition: HTTP 409"
	run.ErrorClass = engine.ErrorClassOperation
	run.Operations = []engine.OperationType{engine.OperationCreate}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() again error = %v", err)
	}
	got, err = store.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != engine.RunStatusFailed || got.ErrorClass != engine.ErrorClassOperation || got.Error != run.Error {
		t.Errorf("GetRun() after update = %+v", got)
	}
	if len(got.Operations) != 1 {
		t.Errorf("operations = %v, want [create]", got.Operations)
	}

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	runs := []*engine.Run{
		testRun("r1", "web", base),
		testRun("r2", "db", base.Add(time.Minute)),
		testRun("r3", "web", base.Add(2*time.Minute)),
	}
	runs[1].Status = engine.RunStatusFailed
	for _, r := range runs {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", r.ID, err)
		}
	}

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{"all newest first", RunFilter{}, []string{"r3", "r2", "r1"}},
		{"by partition", RunFilter{PartitionName: "web"}, []string{"r3", "r1"}},
		{"by status", RunFilter{Status: engine.RunStatusFailed}, []string{"r2"}},
		{"paged", RunFilter{Limit: 1, Offset: 1}, []string{"r2"}},
		{"other cpc", RunFilter{CPCName: "CPC2"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			ids := []string{}
			for _, r := range got {
				ids = append(ids, r.ID)
				if len(r.Operations) != 2 {
					t.Errorf("run %s operations = %v", r.ID, r.Operations)
				}
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("ListRuns() = %v, want %v", ids, tt.want)
			}
		})
	}

	n, err := store.DeleteRunsBefore(ctx, base.Add(90*time.Second))
	if err != nil || n != 2 {
		t.Fatalf("DeleteRunsBefore() = %d, %v", n, err)
	}
	var ops int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_operations").Scan(&ops); err != nil {
		t.Fatal(err)
	}
	if ops != 2 {
		t.Errorf("operations of deleted runs must cascade, %d left", ops)
	}
}

func TestEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	publisher := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	var failures []error
	publisher.Subscribe(store.EventSubscriber(ctx, func(err error) { failures = append(failures, err) }), nil)

	if err := publisher.PublishRunStarted("run-1", "CPC1/web", "active", false); err != nil {
		t.Fatal(err)
	}
	if err := publisher.PublishOperation(telemetry.EventTypeOperationFailed, "run-1", "CPC1/web", "start",
		errors.New("HTTP 409")); err != nil {
		t.Fatal(err)
	}
	if err := publisher.PublishRunStarted("run-2", "CPC1/db", "stopped", true); err != nil {
		t.Fatal(err)
	}
	if len(failures) > 0 {
		t.Fatalf("subscriber failures: %v", failures)
	}

	events, err := store.GetEvents(ctx, EventFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("GetEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != telemetry.EventTypeRunStarted || events[1].Type != telemetry.EventTypeOperationFailed {
		t.Errorf("event order = %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].Operation != "start" || events[1].Level != telemetry.EventLevelError {
		t.Errorf("operation event = %+v", events[1])
	}

	failed, err := store.GetEvents(ctx, EventFilter{Level: telemetry.EventLevelError})
	if err != nil || len(failed) != 1 {
		t.Errorf("error events = %d, %v", len(failed), err)
	}

	// a redelivered event is stored once
	dup := *events[0]
	if err := store.AppendEvent(ctx, &dup); err != nil {
		t.Fatalf("AppendEvent() duplicate error = %v", err)
	}
	all, err := store.GetEvents(ctx, EventFilter{})
	if err != nil || len(all) != 3 {
		t.Errorf("all events = %d, %v", len(all), err)
	}
}

func TestSnapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snap := &Snapshot{
		CPCName:       "CPC1",
		PartitionName: "web",
		Properties:    engine.Properties{"name": "web", "ifl-processors": 2},
		LastRunID:     "run-1",
	}
	changed, err := store.SaveSnapshot(ctx, snap)
	if err != nil || !changed {
		t.Fatalf("first SaveSnapshot() = %v, %v", changed, err)
	}
	if len(snap.Hash) != 64 {
		t.Errorf("hash = %q", snap.Hash)
	}

	same := &Snapshot{
		CPCName:       "CPC1",
		PartitionName: "web",
		Properties:    engine.Properties{"ifl-processors": 2, "name": "web"},
		LastRunID:     "run-2",
	}
	changed, err = store.SaveSnapshot(ctx, same)
	if err != nil || changed {
		t.Errorf("identical SaveSnapshot() = %v, %v", changed, err)
	}

	got, err := store.GetSnapshot(ctx, "CPC1", "web")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if got.LastRunID != "run-2" || got.Hash != snap.Hash {
		t.Errorf("GetSnapshot() = %+v", got)
	}
	if got.Properties["ifl-processors"] != float64(2) {
		t.Errorf("properties = %v", got.Properties)
	}

	if err := store.DeleteSnapshot(ctx, "CPC1", "web"); err != nil {
		t.Fatalf("DeleteSnapshot() error = %v", err)
	}
	if _, err := store.GetSnapshot(ctx, "CPC1", "web"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteSnapshot(ctx, "CPC1", "web"); err != nil {
		t.Errorf("deleting a missing snapshot: %v", err)
	}
}

func TestHashProperties(t *testing.T) {
	a := HashProperties([]byte(`{"a":1}`))
	b := HashProperties([]byte(`{"a":2}`))
	if a == b {
		t.Error("different inputs must hash differently")
	}
	if a != HashProperties([]byte(`{"a":1}`)) {
		t.Error("hash must be deterministic")
	}
}
