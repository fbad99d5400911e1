// Package sqlite provides a SQLite-backed event log.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ddd "github.com/paulvitic/ddd-projector"
	"github.com/paulvitic/ddd-projector/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrDuplicateEvent is returned when an appended event id is already stored.
var ErrDuplicateEvent = errors.New("event already appended")

// queryChunk bounds the number of ids bound into one IN clause.
const queryChunk = 500

// EventLog persists events in SQLite.
type EventLog struct {
	sqlDB *sql.DB
	log   *ddd.Logger
}

// Open opens a SQLite event log at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*EventLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &EventLog{sqlDB: sqlDB, log: ddd.NewLogger().Named("sqlite event log")}, nil
}

// Close closes the SQLite handle.
func (l *EventLog) Close() error {
	if l == nil || l.sqlDB == nil {
		return nil
	}
	return l.sqlDB.Close()
}

// Append stores events in one transaction. Nothing is stored if any event
// id already exists.
func (l *EventLog) Append(ctx context.Context, events ...ddd.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := l.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (
		   id, aggregate_root_id, command_name, command_is_new,
		   payload, occurred_at, partition_key, user_id
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		var payload sql.NullString
		if p := e.Payload(); p != nil {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode payload of event %s: %w", e.ID(), err)
			}
			payload = sql.NullString{String: string(data), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			e.ID(),
			e.AggregateRootID(),
			e.Command().Name(),
			e.Command().IsNew(),
			payload,
			e.TimeStamp().UnixNano(),
			e.PartitionKey(),
			e.UserID(),
		)
		if isConstraintError(err) {
			return fmt.Errorf("event %s: %w", e.ID(), ErrDuplicateEvent)
		}
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	l.log.Debug("appended %d events", len(events))
	return nil
}

// EventsOf returns the events of the given aggregates ordered by timestamp.
func (l *EventLog) EventsOf(ctx context.Context, aggregateRootIDs []string, asOf *time.Time) ([]ddd.Event, error) {
	var events []ddd.Event
	for start := 0; start < len(aggregateRootIDs); start += queryChunk {
		end := min(start+queryChunk, len(aggregateRootIDs))
		chunk, err := l.eventsOf(ctx, aggregateRootIDs[start:end], asOf)
		if err != nil {
			return nil, err
		}
		events = append(events, chunk...)
	}
	ddd.SortEvents(events)
	return events, nil
}

func (l *EventLog) eventsOf(ctx context.Context, ids []string, asOf *time.Time) ([]ddd.Event, error) {
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT id, aggregate_root_id, command_name, command_is_new,
		        payload, occurred_at, partition_key, user_id
		   FROM events
		  WHERE aggregate_root_id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	if asOf != nil {
		query += ` AND occurred_at <= ?`
		args = append(args, asOf.UnixNano())
	}
	query += ` ORDER BY occurred_at, id`

	rows, err := l.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []ddd.Event
	for rows.Next() {
		var (
			id, aggregateRootID, commandName string
			isNew                            bool
			payload                          sql.NullString
			occurredAt                       int64
			partitionKey, userID             string
		)
		if err := rows.Scan(&id, &aggregateRootID, &commandName, &isNew, &payload, &occurredAt, &partitionKey, &userID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		var p *ddd.Payload
		if payload.Valid {
			p = ddd.NewPayload()
			if err := json.Unmarshal([]byte(payload.String), p); err != nil {
				return nil, fmt.Errorf("decode payload of event %s: %w", id, err)
			}
		}
		events = append(events, ddd.NewEvent(
			id,
			aggregateRootID,
			ddd.NewCommand(commandName, isNew),
			p,
			time.Unix(0, occurredAt),
		).WithRouting(partitionKey, userID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
}
