// Package offline is the durable staging area for assignment attempts that
// could not reach the backend. Entries are keyed by a local monotonic
// sequence and survive process restarts; only reconciliation removes a
// queued entry.
package offline

import (
	"context"
	"errors"

	"proz/pkg/protocol"
)

// ErrNotFound is returned when no entry has the given sequence number.
var ErrNotFound = errors.New("offline entry not found")

// Store is the persistence capability behind the queue. Implementations
// scope entries to one namespace and return them in sequence order.
type Store interface {
	// Append persists a and returns its assigned sequence number.
	Append(ctx context.Context, a protocol.AssignmentAttempt) (int64, error)

	// ListAll returns every entry in the namespace, ordered by sequence.
	ListAll(ctx context.Context) ([]protocol.AssignmentAttempt, error)

	// RemoveByKey deletes the entry with sequence seq.
	RemoveByKey(ctx context.Context, seq int64) error

	// Update records a replay outcome for entry seq.
	Update(ctx context.Context, seq int64, status protocol.AttemptStatus, attempts int, lastErr string) error
}
