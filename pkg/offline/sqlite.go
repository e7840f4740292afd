package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"proz/pkg/protocol"
)

// SQLiteStore keeps entries in the pending_assignments table. The schema
// (protocol.SchemaDDL) must already be applied.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

// NewSQLiteStore creates a store for namespace on db. An empty namespace
// uses protocol.DefaultNamespace.
func NewSQLiteStore(db *sql.DB, namespace string) *SQLiteStore {
	if namespace == "" {
		namespace = protocol.DefaultNamespace
	}
	return &SQLiteStore{db: db, namespace: namespace}
}

// Namespace returns the namespace this store is scoped to.
func (s *SQLiteStore) Namespace() string { return s.namespace }

func (s *SQLiteStore) Append(ctx context.Context, a protocol.AssignmentAttempt) (int64, error) {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return 0, fmt.Errorf("offline append: encode details: %w", err)
	}
	status := a.Status
	if status == "" {
		status = protocol.AttemptQueuedOffline
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_assignments
		 (namespace, attempt_id, request_id, candidate_id, details, status, queued_at, attempts, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.namespace, a.ID, a.RequestID, a.CandidateID, string(details), string(status),
		a.QueuedAt.UTC().Format(time.RFC3339Nano), a.Attempts, a.LastError,
	)
	if err != nil {
		return 0, fmt.Errorf("offline append: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("offline append last insert id: %w", err)
	}
	return seq, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]protocol.AssignmentAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, attempt_id, request_id, candidate_id, details, status, queued_at, attempts, last_error
		 FROM pending_assignments
		 WHERE namespace = ?
		 ORDER BY seq ASC`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("offline list: %w", err)
	}
	defer rows.Close()

	var out []protocol.AssignmentAttempt
	for rows.Next() {
		var (
			a        protocol.AssignmentAttempt
			details  string
			status   string
			queuedAt string
		)
		if err := rows.Scan(&a.Seq, &a.ID, &a.RequestID, &a.CandidateID,
			&details, &status, &queuedAt, &a.Attempts, &a.LastError); err != nil {
			return nil, fmt.Errorf("offline list scan: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, fmt.Errorf("offline list: decode details for seq %d: %w", a.Seq, err)
		}
		a.Status = protocol.AttemptStatus(status)
		if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
			a.QueuedAt = t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("offline list rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) RemoveByKey(ctx context.Context, seq int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_assignments WHERE namespace = ? AND seq = ?`, s.namespace, seq)
	if err != nil {
		return fmt.Errorf("offline remove: %w", err)
	}
	return requireOneRow(res, seq)
}

func (s *SQLiteStore) Update(ctx context.Context, seq int64, status protocol.AttemptStatus, attempts int, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_assignments SET status = ?, attempts = ?, last_error = ?
		 WHERE namespace = ? AND seq = ?`,
		string(status), attempts, lastErr, s.namespace, seq)
	if err != nil {
		return fmt.Errorf("offline update: %w", err)
	}
	return requireOneRow(res, seq)
}

func requireOneRow(res sql.Result, seq int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("offline rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("seq %d: %w", seq, ErrNotFound)
	}
	return nil
}
