// Package eventlog provides read-only access to the assignment event log in
// the proz state database.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// sqliteTime is the layout of SQLite's datetime('now').
const sqliteTime = "2006-01-02 15:04:05"

// Event represents a single event from the orchestrator log.
type Event struct {
	ID          int64
	Type        string
	Source      string
	RequestID   string
	CandidateID string
	Payload     string
	CreatedAt   time.Time
}

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// RequestID filters events to a single work request
	RequestID string

	// CandidateID filters events to a single professional
	CandidateID string

	// EventType filters to a specific event type (e.g., "submit", "queued_offline")
	EventType string

	// After filters events created after this time (inclusive)
	After *time.Time

	// Before filters events created before this time (inclusive)
	Before *time.Time

	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Reader provides read-only access to the event log.
type Reader struct {
	db    *sql.DB
	owned bool
}

// NewReader opens the state database in read-only mode with WAL so it never
// blocks a running orchestrator.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Reader{db: db, owned: true}, nil
}

// FromDB wraps an already open handle. Close leaves it open.
func FromDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Close releases the database connection if the Reader opened it.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db == nil || !r.owned {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Query retrieves events matching opts, newest first. Returns an empty slice
// if no events match.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []Event{}
	for rows.Next() {
		var (
			e                      Event
			requestID, candidateID sql.NullString
			payload                sql.NullString
			createdAt              string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &requestID, &candidateID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.RequestID = requestID.String
		e.CandidateID = candidateID.String
		e.Payload = payload.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountByType returns the number of events per type.
func (r *Reader) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]int{}
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[t] = n
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(sqliteTime, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at: %w", err)
	}
	return t, nil
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, type, source, request_id, candidate_id, payload, created_at FROM events WHERE 1=1"

	if opts.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, opts.RequestID)
	}
	if opts.CandidateID != "" {
		conditions = append(conditions, "candidate_id = ?")
		args = append(args, opts.CandidateID)
	}
	if opts.EventType != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, opts.EventType)
	}
	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(sqliteTime))
	}
	if opts.Before != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.Before.UTC().Format(sqliteTime))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	return query, args
}
