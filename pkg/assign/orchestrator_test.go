package assign //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"proz/pkg/classify"
	"proz/pkg/notify"
	"proz/pkg/offline"
	"proz/pkg/protocol"
	"proz/pkg/ranker"
)

type record = protocol.AssignmentRecord

func TestAssign_Confirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.orch.Assign(ctx, " req-1 ", "p1", protocol.AssignmentDetails{Notes: "gate code 42"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if out.State != StateConfirmed || out.RequestStatus != protocol.RequestAssigned {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Record == nil || out.Record.ProzID != "p1" {
		t.Errorf("record = %+v", out.Record)
	}

	calls := f.sub.Calls()
	if len(calls) != 1 || calls[0].RequestID != "req-1" || calls[0].Details.Notes != "gate code 42" {
		t.Fatalf("submitted %+v", calls)
	}
	if calls[0].ID == "" {
		t.Error("attempt id must be generated before submission")
	}
	if !f.isAssigned(t, "req-1") {
		t.Error("confirmed request must display as assigned")
	}
	if f.notices.Count(notify.LevelSuccess) != 1 {
		t.Errorf("expected one success notice, got %+v", f.notices.Notices())
	}
	if f.eventCount(t, protocol.EventSubmit) != 1 || f.eventCount(t, protocol.EventConfirmed) != 1 {
		t.Error("submit and confirmed events must be logged")
	}
}

func TestAssign_ConcurrentCallsSubmitOnce(t *testing.T) {
	f := newFixture(t)
	f.sub.set(func(a protocol.AssignmentAttempt) classify.Result[record] {
		time.Sleep(20 * time.Millisecond)
		return accept(a)
	})

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []Outcome
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.orch.Assign(context.Background(), "req-1", "p1", protocol.AssignmentDetails{})
			if err != nil {
				t.Errorf("assign: %v", err)
				return
			}
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if got := len(f.sub.Calls()); got != 1 {
		t.Fatalf("expected exactly one submission, got %d", got)
	}
	confirmed, local := 0, 0
	for _, o := range outcomes {
		switch {
		case o.State == StateConfirmed:
			confirmed++
		case o.State == StateConflict && o.Local:
			local++
		}
	}
	if confirmed != 1 || local != n-1 {
		t.Errorf("confirmed=%d local conflicts=%d", confirmed, local)
	}
}

func TestAssign_AuthFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.sub.set(respondWith(classify.Auth[record](401, "Invalid token")))
	ctx := context.Background()

	out, err := f.orch.Assign(ctx, "req-1", "p1", protocol.AssignmentDetails{})
	var authErr *protocol.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *protocol.AuthError, got %v", err)
	}
	if out.State != StateAborted {
		t.Errorf("state = %s", out.State)
	}
	if f.session.n.Load() != 1 {
		t.Errorf("session invalidations = %d, want 1", f.session.n.Load())
	}
	if len(f.pending(t)) != 0 {
		t.Error("auth failures must never be queued")
	}
	if f.notices.Count(notify.LevelError) != 0 {
		t.Error("auth failures must not raise an error toast")
	}
	if f.isAssigned(t, "req-1") {
		t.Error("aborted request must not display as assigned")
	}

	// The in-flight mark was released: a retry after re-login reaches the backend.
	f.sub.set(nil)
	if out, err := f.orch.Assign(ctx, "req-1", "p1", protocol.AssignmentDetails{}); err != nil || out.State != StateConfirmed {
		t.Fatalf("retry: %+v, %v", out, err)
	}
	if len(f.sub.Calls()) != 2 {
		t.Errorf("expected 2 submissions, got %d", len(f.sub.Calls()))
	}
}

func TestAssign_NetworkFailureQueues(t *testing.T) {
	f := newFixture(t)
	f.sub.set(respondWith(classify.Network[record](context.DeadlineExceeded)))
	ctx := context.Background()

	out, err := f.orch.Assign(ctx, "req-1", "p1", protocol.AssignmentDetails{Notes: "n"})
	if err != nil {
		t.Fatalf("network failures must not surface as errors: %v", err)
	}
	if out.State != StateQueuedOffline || out.Attempt.Seq == 0 {
		t.Fatalf("outcome = %+v", out)
	}

	pending := f.pending(t)
	if len(pending) != 1 || pending[0].ID != out.Attempt.ID || pending[0].Details.Notes != "n" {
		t.Fatalf("pending = %+v", pending)
	}
	if pending[0].QueuedAt.IsZero() {
		t.Error("queued entry needs a client timestamp")
	}
	if !f.isAssigned(t, "req-1") {
		t.Error("queued request must display as assigned")
	}
	if f.notices.Count(notify.LevelWarning) != 1 {
		t.Error("expected a provisional notice")
	}

	// A second attempt is blocked locally while the first is queued.
	again, err := f.orch.Assign(ctx, "req-1", "p2", protocol.AssignmentDetails{})
	if err != nil || again.State != StateConflict || !again.Local {
		t.Fatalf("second assign = %+v, %v", again, err)
	}
	if len(f.sub.Calls()) != 1 {
		t.Errorf("blocked attempt reached the backend")
	}
}

func TestAssign_CallerDeadlineStillQueues(t *testing.T) {
	f := newFixture(t)
	f.sub.setCtx(hangUntilDone)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := f.orch.Assign(ctx, "req-1", "p1", protocol.AssignmentDetails{})
	if err != nil {
		t.Fatalf("a deadline during submit must queue, not fail: %v", err)
	}
	if out.State != StateQueuedOffline || out.Attempt.Seq == 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if pending := f.pending(t); len(pending) != 1 || pending[0].ID != out.Attempt.ID {
		t.Fatalf("pending = %+v", pending)
	}
	if f.eventCount(t, protocol.EventQueued) != 1 {
		t.Error("queued event must be logged after the caller's deadline")
	}
	if !f.isAssigned(t, "req-1") {
		t.Error("queued request must display as assigned")
	}
}

func TestAssignRequest_AppliesSettledStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := &protocol.WorkRequest{ID: "req-1", Status: protocol.RequestPending}
	out, err := f.orch.AssignRequest(ctx, req, "p1", protocol.AssignmentDetails{})
	if err != nil || out.State != StateConfirmed {
		t.Fatalf("outcome = %+v, %v", out, err)
	}
	if req.Status != protocol.RequestAssigned {
		t.Errorf("request status = %s, want assigned", req.Status)
	}

	// Queued attempts leave the request pending until the backend settles it.
	f.sub.set(respondWith(classify.Network[record](errors.New("connection refused"))))
	queued := &protocol.WorkRequest{ID: "req-2", Status: protocol.RequestPending}
	out, err = f.orch.AssignRequest(ctx, queued, "p1", protocol.AssignmentDetails{})
	if err != nil || out.State != StateQueuedOffline {
		t.Fatalf("outcome = %+v, %v", out, err)
	}
	if queued.Status != protocol.RequestPending {
		t.Errorf("queued request status = %s", queued.Status)
	}

	bad := &protocol.WorkRequest{ID: "req-3", Status: "archived"}
	if _, err := f.orch.AssignRequest(ctx, bad, "p1", protocol.AssignmentDetails{}); !errors.Is(err, protocol.ErrInvalidRequest) {
		t.Errorf("invalid request: got %v", err)
	}
	if len(f.sub.Calls()) != 2 {
		t.Errorf("invalid request reached the backend: %d calls", len(f.sub.Calls()))
	}

	other := Outcome{RequestID: "req-9", RequestStatus: protocol.RequestAssigned}
	if other.Apply(req) {
		t.Error("outcome for another request must not apply")
	}
}

func TestAssign_BusinessConflictIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.sub.set(respondWith(classify.Conflict[record](400, protocol.PhraseAlreadyAssigned)))

	out, err := f.orch.Assign(context.Background(), "req-1", "p1", protocol.AssignmentDetails{})
	if err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
	if out.State != StateConflict || out.Local || out.RequestStatus != protocol.RequestAssigned {
		t.Fatalf("outcome = %+v", out)
	}
	if !f.isAssigned(t, "req-1") {
		t.Error("conflicting request must display as assigned")
	}
	if len(f.pending(t)) != 0 {
		t.Error("conflicts must not be queued")
	}
	if f.notices.Count(notify.LevelError) != 0 || f.notices.Count(notify.LevelInfo) != 1 {
		t.Errorf("notices = %+v", f.notices.Notices())
	}
}

func TestAssign_MalformedAborts(t *testing.T) {
	f := newFixture(t)
	f.sub.set(respondWith(classify.Failure[record](500, "Internal Server Error")))

	out, err := f.orch.Assign(context.Background(), "req-1", "p1", protocol.AssignmentDetails{})
	var malformed *protocol.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *protocol.MalformedResponseError, got %v", err)
	}
	if out.State != StateAborted || malformed.StatusCode != 500 {
		t.Errorf("outcome = %+v, err = %+v", out, malformed)
	}
	if len(f.pending(t)) != 0 {
		t.Error("malformed responses must not be queued")
	}
	if f.isAssigned(t, "req-1") {
		t.Error("request state must be unchanged")
	}
	if f.notices.Count(notify.LevelError) != 1 {
		t.Error("expected an error notice")
	}
	if f.session.n.Load() != 0 {
		t.Error("session must survive a malformed response")
	}
}

func TestAssign_InputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neg := -1.0

	tests := []struct {
		name      string
		requestID string
		candidate string
		details   protocol.AssignmentDetails
		want      error
	}{
		{"empty request", "  ", "p1", protocol.AssignmentDetails{}, protocol.ErrEmptyRequestID},
		{"empty candidate", "req-1", "", protocol.AssignmentDetails{}, protocol.ErrEmptyCandidateID},
		{"negative hours", "req-1", "p1", protocol.AssignmentDetails{EstimatedHours: &neg}, protocol.ErrInvalidDetails},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.orch.Assign(ctx, tt.requestID, tt.candidate, tt.details)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if out.State != StateAborted {
				t.Errorf("state = %s", out.State)
			}
		})
	}
	if len(f.sub.Calls()) != 0 {
		t.Error("invalid input must not reach the backend")
	}
}

func TestAssign_ConfirmedIndexSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.Assign(ctx, "req-1", "p1", protocol.AssignmentDetails{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	row, ok, err := f.orch.Settled(ctx, "req-1")
	if err != nil || !ok {
		t.Fatalf("settled row: ok=%v err=%v", ok, err)
	}
	if row.AttemptID != first.Attempt.ID || row.Status != string(protocol.AttemptConfirmed) || row.AssignedAt == "" {
		t.Errorf("settled row = %+v", row)
	}

	// A fresh orchestrator over the same database.
	q := offline.NewQueue(offline.NewSQLiteStore(f.db, ""))
	sub := &fakeSubmitter{}
	o2 := New(Config{}, f.db, sub, f.rank, q, f.session, nil)

	out, err := o2.Assign(ctx, "req-1", "p2", protocol.AssignmentDetails{})
	if err != nil || out.State != StateConflict || !out.Local {
		t.Fatalf("outcome after restart = %+v, %v", out, err)
	}
	if out.Attempt.CandidateID != "p1" {
		t.Errorf("existing attempt candidate = %s", out.Attempt.CandidateID)
	}
	if len(sub.Calls()) != 0 {
		t.Error("restarted orchestrator resubmitted a confirmed request")
	}
}

func TestAssignTopMatch_SubmitsFirstCandidate(t *testing.T) {
	f := newFixture(t)
	f.rank.ranking = ranker.Ranking{
		Outcome: classify.KindSuccess,
		Candidates: []protocol.Candidate{
			{ProzID: "p1", Score: 0.92},
			{ProzID: "p2", Score: 0.95},
		},
	}

	out, err := f.orch.AssignTopMatch(context.Background(), "req-1", protocol.AssignmentDetails{})
	if err != nil {
		t.Fatalf("assign top: %v", err)
	}
	if out.Candidate == nil || out.Candidate.ProzID != "p1" {
		t.Fatalf("candidate = %+v", out.Candidate)
	}
	calls := f.sub.Calls()
	if len(calls) != 1 || calls[0].CandidateID != "p1" {
		t.Fatalf("submitted %+v; backend order must be kept", calls)
	}
	if f.eventCount(t, protocol.EventRank) != 1 {
		t.Error("rank event missing")
	}
}

func TestAssignTopMatch_NoCandidates(t *testing.T) {
	f := newFixture(t)
	f.rank.ranking = ranker.Ranking{Outcome: classify.KindSuccess}

	out, err := f.orch.AssignTopMatch(context.Background(), "req-1", protocol.AssignmentDetails{})
	if !errors.Is(err, protocol.ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if out.State != StateAborted {
		t.Errorf("state = %s", out.State)
	}
	if len(f.sub.Calls()) != 0 {
		t.Error("no assignment call expected")
	}
}

func TestAssignTopMatch_RankingAuthInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	f.rank.ranking = ranker.Ranking{
		Outcome: classify.KindAuth,
		Err:     &protocol.AuthError{StatusCode: 401, Detail: "Token expired"},
	}

	_, err := f.orch.AssignTopMatch(context.Background(), "req-1", protocol.AssignmentDetails{})
	var authErr *protocol.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if f.session.n.Load() != 1 {
		t.Error("session must be invalidated")
	}
}

func TestLookup_EmptyRequestID(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.orch.Lookup(context.Background(), ""); !errors.Is(err, protocol.ErrEmptyRequestID) {
		t.Errorf("err = %v", err)
	}
}
