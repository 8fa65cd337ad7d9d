package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"golang.org/x/crypto/blake2b"

	"github.com/openfroyo/partsync/pkg/engine"
	"github.com/openfroyo/partsync/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// every connection to :memory: opens a separate database
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if s.cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveRun inserts or replaces a run together with its operations. It
// implements engine.RunRecorder.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.Run) error {
	snapshot, err := marshalNullable(run.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode run snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO runs (
			id, cpc_name, partition_name, desired_state, check_mode, status, changed,
			error, error_class, snapshot, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			changed = excluded.changed,
			error = excluded.error,
			error_class = excluded.error_class,
			snapshot = excluded.snapshot,
			completed_at = excluded.completed_at
	`
	_, err = tx.ExecContext(ctx, query,
		run.ID,
		run.CPCName,
		run.PartitionName,
		string(run.DesiredState),
		run.CheckMode,
		string(run.Status),
		run.Changed,
		nullString(run.Error),
		nullString(string(run.ErrorClass)),
		snapshot,
		run.StartedAt.UTC(),
		run.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_operations WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to reset run operations: %w", err)
	}
	for i, op := range run.Operations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_operations (run_id, seq, operation) VALUES (?, ?, ?)`,
			run.ID, i, string(op)); err != nil {
			return fmt.Errorf("failed to save run operation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, cpc_name, partition_name, desired_state, check_mode, status, changed,
	error, error_class, snapshot, started_at, completed_at`

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := s.loadOperations(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*engine.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE (? = '' OR cpc_name = ?)
		  AND (? = '' OR partition_name = ?)
		  AND (? = '' OR status = ?)
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?
	`
	status := string(filter.Status)
	rows, err := s.db.QueryContext(ctx, query,
		filter.CPCName, filter.CPCName,
		filter.PartitionName, filter.PartitionName,
		status, status,
		filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	// rows must be closed before the next query on a single connection
	rows.Close()

	for _, run := range runs {
		if err := s.loadOperations(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// DeleteRunsBefore removes runs started before the given time and returns
// how many were removed.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) loadOperations(ctx context.Context, run *engine.Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT operation FROM run_operations WHERE run_id = ? ORDER BY seq`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return fmt.Errorf("failed to scan run operation: %w", err)
		}
		run.Operations = append(run.Operations, engine.OperationType(op))
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*engine.Run, error) {
	var (
		run                           engine.Run
		state, status                 string
		errMsg, errClass, snapshotRaw sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.CPCName,
		&run.PartitionName,
		&state,
		&run.CheckMode,
		&status,
		&run.Changed,
		&errMsg,
		&errClass,
		&snapshotRaw,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.DesiredState = engine.DesiredState(state)
	run.Status = engine.RunStatus(status)
	run.Error = errMsg.String
	run.ErrorClass = engine.ErrorClass(errClass.String)
	if snapshotRaw.Valid {
		if err := json.Unmarshal([]byte(snapshotRaw.String), &run.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode run snapshot: %w", err)
		}
	}
	return &run, nil
}

// AppendEvent appends a new event to the log. Events with an event ID that
// was already stored are ignored.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	data, err := marshalNullable(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query := `
		INSERT INTO events (event_id, run_id, type, level, resource, operation, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		event.EventID,
		nullString(event.RunID),
		event.Type,
		event.Level,
		nullString(event.Resource),
		nullString(event.Operation),
		event.Message,
		data,
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}
	event.ID = id
	return nil
}

// GetEvents retrieves events in the order they were appended.
func (s *SQLiteStore) GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = 1000
	}
	query := `
		SELECT id, event_id, run_id, type, level, resource, operation, message, data, timestamp
		FROM events
		WHERE (? = '' OR run_id = ?)
		  AND (? = '' OR type = ?)
		  AND (? = '' OR level = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		filter.RunID, filter.RunID,
		filter.Type, filter.Type,
		filter.Level, filter.Level,
		filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		var (
			e                             Event
			runID, resource, op, dataJSON sql.NullString
		)
		err := rows.Scan(&e.ID, &e.EventID, &runID, &e.Type, &e.Level, &resource, &op, &e.Message, &dataJSON, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.RunID = runID.String
		e.Resource = resource.String
		e.Operation = op.String
		if dataJSON.Valid {
			if err := json.Unmarshal([]byte(dataJSON.String), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// EventSubscriber returns a telemetry subscriber that appends every event to
// the log. Failures are passed to onErr when it is not nil.
func (s *SQLiteStore) EventSubscriber(ctx context.Context, onErr func(error)) telemetry.EventSubscriber {
	return func(e telemetry.Event) {
		if err := s.AppendEvent(ctx, EventFromTelemetry(e)); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// SaveSnapshot stores the snapshot of a partition and reports whether its
// hash differs from the stored one. The hash is computed here.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) (bool, error) {
	state, err := json.Marshal(snap.Properties)
	if err != nil {
		return false, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	snap.Hash = HashProperties(state)
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}

	var previous string
	err = s.db.QueryRowContext(ctx,
		`SELECT hash FROM resource_state WHERE cpc_name = ? AND partition_name = ?`,
		snap.CPCName, snap.PartitionName).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to read snapshot hash: %w", err)
	}

	query := `
		INSERT INTO resource_state (cpc_name, partition_name, state, hash, last_run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cpc_name, partition_name) DO UPDATE SET
			state = excluded.state,
			hash = excluded.hash,
			last_run_id = excluded.last_run_id,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		snap.CPCName, snap.PartitionName, string(state), snap.Hash, snap.LastRunID, snap.UpdatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return previous != snap.Hash, nil
}

// GetSnapshot retrieves the stored snapshot of a partition.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, cpcName, partitionName string) (*Snapshot, error) {
	query := `
		SELECT cpc_name, partition_name, state, hash, last_run_id, updated_at
		FROM resource_state
		WHERE cpc_name = ? AND partition_name = ?
	`
	snap := &Snapshot{}
	var state string
	err := s.db.QueryRowContext(ctx, query, cpcName, partitionName).Scan(
		&snap.CPCName,
		&snap.PartitionName,
		&state,
		&snap.Hash,
		&snap.LastRunID,
		&snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", cpcName, partitionName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &snap.Properties); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// DeleteSnapshot removes the snapshot of a partition. Deleting a missing
// snapshot is not an error.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, cpcName, partitionName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM resource_state WHERE cpc_name = ? AND partition_name = ?`, cpcName, partitionName)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// HashProperties returns the hex BLAKE2b-256 digest of an encoded property set.
func HashProperties(state []byte) string {
	sum := blake2b.Sum256(state)
	return hex.EncodeToString(sum[:])
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalNullable[T ~map[string]interface{}](v T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
