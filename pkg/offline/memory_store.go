package offline

import (
	"context"
	"fmt"
	"sync"

	"proz/pkg/protocol"
)

// MemoryStore is a non-durable Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	nextSeq int64
	entries []protocol.AssignmentAttempt
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, a protocol.AssignmentAttempt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	a.Seq = m.nextSeq
	if a.Status == "" {
		a.Status = protocol.AttemptQueuedOffline
	}
	m.entries = append(m.entries, a)
	return a.Seq, nil
}

func (m *MemoryStore) ListAll(_ context.Context) ([]protocol.AssignmentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.AssignmentAttempt, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *MemoryStore) RemoveByKey(_ context.Context, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.Seq == seq {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("seq %d: %w", seq, ErrNotFound)
}

func (m *MemoryStore) Update(_ context.Context, seq int64, status protocol.AttemptStatus, attempts int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].Seq == seq {
			m.entries[i].Status = status
			m.entries[i].Attempts = attempts
			m.entries[i].LastError = lastErr
			return nil
		}
	}
	return fmt.Errorf("seq %d: %w", seq, ErrNotFound)
}
