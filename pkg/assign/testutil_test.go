package assign //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"proz/pkg/classify"
	"proz/pkg/notify"
	"proz/pkg/offline"
	"proz/pkg/protocol"
	"proz/pkg/ranker"

	_ "modernc.org/sqlite"
)

// waitFor polls condition every tick until it returns true or timeout expires.
func waitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("waitFor: condition not met within %v", timeout)
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("exec schema: %v", err)
	}
	return db
}

// openFileDB opens a file-backed database with the full schema. One
// connection keeps writers from different components from racing.
func openFileDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(protocol.SchemaDDL); err != nil {
		t.Fatalf("exec schema: %v", err)
	}
	return db
}

// fakeSubmitter records submissions and answers with respond, or with
// respondCtx when the answer depends on the caller's context.
type fakeSubmitter struct {
	mu         sync.Mutex
	calls      []protocol.AssignmentAttempt
	respond    func(a protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord]
	respondCtx func(ctx context.Context, a protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord]
}

func (f *fakeSubmitter) SubmitAssignment(ctx context.Context, a protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord] {
	f.mu.Lock()
	f.calls = append(f.calls, a)
	fn, fnCtx := f.respond, f.respondCtx
	f.mu.Unlock()
	switch {
	case fnCtx != nil:
		return fnCtx(ctx, a)
	case fn != nil:
		return fn(a)
	default:
		return accept(a)
	}
}

func (f *fakeSubmitter) setCtx(fn func(ctx context.Context, a protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respondCtx = fn
}

// hangUntilDone blocks until the caller's context ends, the way a stalled
// HTTP call does, and reports it as a transport failure.
func hangUntilDone(ctx context.Context, _ protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord] {
	<-ctx.Done()
	return classify.FromTransport[protocol.AssignmentRecord](ctx.Err())
}

func (f *fakeSubmitter) set(fn func(a protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

func (f *fakeSubmitter) Calls() []protocol.AssignmentAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.AssignmentAttempt, len(f.calls))
	copy(out, f.calls)
	return out
}

func accept(a protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord] {
	return classify.Success(protocol.AssignmentRecord{
		ServiceRequestID: a.RequestID,
		ProzID:           a.CandidateID,
		Status:           "assigned",
	})
}

func respondWith(r classify.Result[protocol.AssignmentRecord]) func(protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord] {
	return func(protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord] { return r }
}

// fakeRanker returns a fixed ranking.
type fakeRanker struct {
	ranking ranker.Ranking
	calls   atomic.Int32
}

func (f *fakeRanker) Rank(_ context.Context, requestID string, _ int) (ranker.Ranking, error) {
	f.calls.Add(1)
	r := f.ranking
	r.RequestID = requestID
	return r, nil
}

// fakeSession counts invalidations.
type fakeSession struct {
	n atomic.Int32
}

func (f *fakeSession) Invalidate() error {
	f.n.Add(1)
	return nil
}

type fixture struct {
	orch    *Orchestrator
	db      *sql.DB
	queue   *offline.Queue
	sub     *fakeSubmitter
	rank    *fakeRanker
	session *fakeSession
	notices *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:      db,
		queue:   offline.NewQueue(offline.NewSQLiteStore(db, "")),
		sub:     &fakeSubmitter{},
		rank:    &fakeRanker{},
		session: &fakeSession{},
		notices: &notify.Recorder{},
	}
	f.orch = New(Config{}, db, f.sub, f.rank, f.queue, f.session, f.notices)
	return f
}

func (f *fixture) pending(t *testing.T) []protocol.AssignmentAttempt {
	t.Helper()
	p, err := f.queue.ListPending(context.Background(), "")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	return p
}

func (f *fixture) eventCount(t *testing.T, evType string) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM events WHERE type = ?`, evType).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func (f *fixture) isAssigned(t *testing.T, requestID string) bool {
	t.Helper()
	ok, err := f.orch.IsAssigned(context.Background(), requestID)
	if err != nil {
		t.Fatalf("IsAssigned(%s): %v", requestID, err)
	}
	return ok
}
