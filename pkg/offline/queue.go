package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"proz/pkg/protocol"
)

// Queue is the offline queue component. It owns its store handle and is
// passed by reference to the orchestrator.
type Queue struct {
	store Store

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewQueue creates a Queue over store.
func NewQueue(store Store) *Queue {
	return &Queue{store: store, nowFunc: time.Now}
}

// Enqueue persists a as queued_offline with a client-generated timestamp and
// returns it with its sequence number filled in.
func (q *Queue) Enqueue(ctx context.Context, a protocol.AssignmentAttempt) (protocol.AssignmentAttempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.QueuedAt.IsZero() {
		a.QueuedAt = q.nowFunc().UTC()
	}
	a.Status = protocol.AttemptQueuedOffline

	seq, err := q.store.Append(ctx, a)
	if err != nil {
		return protocol.AssignmentAttempt{}, fmt.Errorf("enqueue %s: %w", a.RequestID, err)
	}
	a.Seq = seq
	return a, nil
}

// ListPending returns queued_offline entries in sequence order. A non-empty
// ownerID restricts the list to attempts for that candidate.
func (q *Queue) ListPending(ctx context.Context, ownerID string) ([]protocol.AssignmentAttempt, error) {
	return q.list(ctx, func(a protocol.AssignmentAttempt) bool {
		return a.Status == protocol.AttemptQueuedOffline && (ownerID == "" || a.CandidateID == ownerID)
	})
}

// ListFailed returns entries whose replay hit a hard failure. They no longer
// block new assignments and wait for an operator to drop them.
func (q *Queue) ListFailed(ctx context.Context) ([]protocol.AssignmentAttempt, error) {
	return q.list(ctx, func(a protocol.AssignmentAttempt) bool {
		return a.Status == protocol.AttemptFailed
	})
}

// PendingFor returns the queued_offline entry for requestID, if any.
func (q *Queue) PendingFor(ctx context.Context, requestID string) (protocol.AssignmentAttempt, bool, error) {
	pending, err := q.ListPending(ctx, "")
	if err != nil {
		return protocol.AssignmentAttempt{}, false, err
	}
	for _, a := range pending {
		if a.RequestID == requestID {
			return a, true, nil
		}
	}
	return protocol.AssignmentAttempt{}, false, nil
}

// HasPending reports whether requestID has a queued_offline entry.
func (q *Queue) HasPending(ctx context.Context, requestID string) (bool, error) {
	_, ok, err := q.PendingFor(ctx, requestID)
	return ok, err
}

// Remove deletes entry seq. Only reconciliation removes queued entries.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	if err := q.store.RemoveByKey(ctx, seq); err != nil {
		return fmt.Errorf("remove seq %d: %w", seq, err)
	}
	return nil
}

// RecordRetry notes a replay that is still offline.
func (q *Queue) RecordRetry(ctx context.Context, a protocol.AssignmentAttempt, lastErr string) error {
	return q.store.Update(ctx, a.Seq, protocol.AttemptQueuedOffline, a.Attempts+1, lastErr)
}

// MarkFailed moves entry a out of the replay set after a hard failure.
func (q *Queue) MarkFailed(ctx context.Context, a protocol.AssignmentAttempt, lastErr string) error {
	return q.store.Update(ctx, a.Seq, protocol.AttemptFailed, a.Attempts+1, lastErr)
}

// DropFailed removes entry seq if it is in the failed state.
func (q *Queue) DropFailed(ctx context.Context, seq int64) error {
	failed, err := q.ListFailed(ctx)
	if err != nil {
		return err
	}
	for _, a := range failed {
		if a.Seq == seq {
			return q.Remove(ctx, seq)
		}
	}
	return fmt.Errorf("seq %d is not a failed entry: %w", seq, ErrNotFound)
}

func (q *Queue) list(ctx context.Context, keep func(protocol.AssignmentAttempt) bool) ([]protocol.AssignmentAttempt, error) {
	all, err := q.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	out := make([]protocol.AssignmentAttempt, 0, len(all))
	for _, a := range all {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}
