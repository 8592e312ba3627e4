// Package sqlite persists audit events in a SQLite database so they can be
// queried after the process exits.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pocketledger/fieldcrypt/audit"
)

// DefaultPath is used by Open when path is empty.
const DefaultPath = ".fieldcrypt/audit.db"

const schema = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		record_id TEXT NOT NULL DEFAULT '',
		fields TEXT,
		count INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		severity INTEGER NOT NULL,
		auth_event TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_audit_events_record ON audit_events(model, record_id);
`

// Store is an audit.Handler writing to the audit_events table.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and its schema. The parent
// directory is created with 0700 permissions.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory for '%s': %w", path, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at '%s': %w", path, err)
	}
	// one connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection test failed for '%s': %w", path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create database schema in '%s': %w", s.path, err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Handle stores e. Storing an id twice is an error.
func (s *Store) Handle(ctx context.Context, e audit.Event) error {
	fields, err := marshalNullable(e.Fields, len(e.Fields) > 0)
	if err != nil {
		return fmt.Errorf("marshal fields of event %s: %w", e.ID, err)
	}
	metadata, err := marshalNullable(e.Metadata, len(e.Metadata) > 0)
	if err != nil {
		return fmt.Errorf("marshal metadata of event %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, ts, user_id, action, model, record_id, fields, count,
			metadata, severity, auth_event, ip_address, user_agent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Timestamp.UnixNano(), e.UserID, string(e.Action), e.Model, e.RecordID, fields, e.Count,
		metadata, int(e.Severity), string(e.AuthEvent), e.IPAddress, e.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to insert audit event %s: %w", e.ID, err)
	}
	return nil
}

// Events returns the stored events matching f, oldest first.
func (s *Store) Events(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	where, args := whereClause(f)
	query := `
		SELECT id, ts, user_id, action, model, record_id, fields, count,
			metadata, severity, auth_event, ip_address, user_agent
		FROM audit_events` + where + ` ORDER BY ts, rowid`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching f. f.Limit is ignored.
func (s *Store) Count(ctx context.Context, f audit.Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}

// Purge deletes events older than before and returns how many were removed.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE ts < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func whereClause(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		add("action = ?", string(f.Action))
	}
	if f.Model != "" {
		add("model = ?", f.Model)
	}
	if f.RecordID != "" {
		add("record_id = ?", f.RecordID)
	}
	if f.MinSeverity > audit.SeverityUnset {
		add("severity >= ?", int(f.MinSeverity))
	}
	if f.StartTime != nil {
		add("ts >= ?", f.StartTime.UnixNano())
	}
	if f.EndTime != nil {
		add("ts <= ?", f.EndTime.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (audit.Event, error) {
	var (
		e                audit.Event
		ts               int64
		action, authEvt  string
		severity         int
		fields, metadata sql.NullString
	)
	err := row.Scan(&e.ID, &ts, &e.UserID, &action, &e.Model, &e.RecordID, &fields, &e.Count,
		&metadata, &severity, &authEvt, &e.IPAddress, &e.UserAgent)
	if err != nil {
		return audit.Event{}, fmt.Errorf("failed to scan audit event: %w", err)
	}

	e.Timestamp = time.Unix(0, ts).UTC()
	e.Action = audit.Action(action)
	e.AuthEvent = audit.AuthEvent(authEvt)
	e.Severity = audit.Severity(severity)
	if fields.Valid {
		if err := json.Unmarshal([]byte(fields.String), &e.Fields); err != nil {
			return audit.Event{}, fmt.Errorf("decode fields of event %s: %w", e.ID, err)
		}
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return audit.Event{}, fmt.Errorf("decode metadata of event %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func marshalNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
