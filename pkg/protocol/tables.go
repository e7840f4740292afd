package protocol

// Assignment represents a row in the assignments SQLite table.
// A row exists once the remote authority confirmed the request as assigned,
// either by accepting our submission or by reporting a conflict.
type Assignment struct {
	ID          int64  `json:"id"`
	RequestID   string `json:"request_id"`
	CandidateID string `json:"candidate_id"`
	AttemptID   string `json:"attempt_id"`
	Status      string `json:"status"`
	AssignedAt  string `json:"assigned_at"`
}

// Event type constants written by the orchestrator.
const (
	EventRank          = "rank"
	EventSubmit        = "submit"
	EventConfirmed     = "confirmed"
	EventConflict      = "conflict"
	EventLocalConflict = "local_conflict"
	EventQueued        = "queued_offline"
	EventAborted       = "aborted"
	EventAuthAbort     = "auth_abort"
	EventReconciled    = "reconciled"
	EventStillOffline  = "still_offline"
	EventDropped       = "dropped"
	EventWatcherError  = "watcher_error"
)
