package protocol

// SchemaDDL defines the SQLite schema for the proz client state database.
// Tables: events, assignments, pending_assignments.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Orchestrator event log: every assignment state transition
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    request_id TEXT,
    candidate_id TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Requests the remote authority has confirmed as assigned
CREATE TABLE IF NOT EXISTS assignments (
    id INTEGER PRIMARY KEY,
    request_id TEXT NOT NULL UNIQUE,
    candidate_id TEXT NOT NULL,
    attempt_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'confirmed',
    assigned_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Durable offline queue; seq is the local monotonic sequence
CREATE TABLE IF NOT EXISTS pending_assignments (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    namespace TEXT NOT NULL,
    attempt_id TEXT NOT NULL UNIQUE,
    request_id TEXT NOT NULL,
    candidate_id TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'queued_offline',
    queued_at TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_pending_namespace_request
    ON pending_assignments(namespace, request_id);
`
