package protocol_test

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"proz/pkg/protocol"
)

func TestSchemaExecsCleanly(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(protocol.SchemaDDL)
	if err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}

	// Applying twice must be a no-op.
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("re-exec schema DDL: %v", err)
	}
}

func TestSchemaCreatesExpectedTables(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(protocol.SchemaDDL)
	if err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}

	expected := []string{"events", "assignments", "pending_assignments"}
	for _, table := range expected {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = ?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q not found: %v", table, err)
		}
	}
}

func TestSchemaPendingSeqIsMonotonic(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("exec schema DDL: %v", err)
	}

	insert := `INSERT INTO pending_assignments (namespace, attempt_id, request_id, candidate_id, queued_at)
		VALUES ('ns', ?, 'req-1', 'p1', '2026-01-01T00:00:00Z')`
	res, err := db.Exec(insert, "a1")
	if err != nil {
		t.Fatalf("insert a1: %v", err)
	}
	first, _ := res.LastInsertId()

	if _, err := db.Exec(`DELETE FROM pending_assignments WHERE seq = ?`, first); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res, err = db.Exec(insert, "a2")
	if err != nil {
		t.Fatalf("insert a2: %v", err)
	}
	second, _ := res.LastInsertId()

	// AUTOINCREMENT never reuses a removed sequence number.
	if second <= first {
		t.Errorf("expected seq after %d, got %d", first, second)
	}
}
