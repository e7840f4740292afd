// Package assign drives an assignment from a chosen candidate to a confirmed,
// conflicting, queued or aborted outcome, and replays queued attempts once
// the backend is reachable again.
//
// The orchestrator keeps a local idempotency guard: a request with an attempt
// that is in flight, queued offline or already confirmed is never submitted
// twice from this process.
package assign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"proz/pkg/classify"
	"proz/pkg/notify"
	"proz/pkg/offline"
	"proz/pkg/protocol"
	"proz/pkg/ranker"
)

// State represents the orchestrator state for a single Assign call.
type State string

// State constants.
//
//	idle -> checking -> submitting -> confirmed | conflict | queued_offline | aborted
const (
	StateIdle          State = "idle"
	StateChecking      State = "checking"
	StateSubmitting    State = "submitting"
	StateConfirmed     State = "confirmed"
	StateConflict      State = "conflict"
	StateQueuedOffline State = "queued_offline"
	StateAborted       State = "aborted"
)

// Submitter posts an assignment attempt. *remote.Client implements it.
type Submitter interface {
	SubmitAssignment(ctx context.Context, attempt protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord]
}

// Ranker returns ranked candidates. *ranker.Ranker implements it.
type Ranker interface {
	Rank(ctx context.Context, requestID string, limit int) (ranker.Ranking, error)
}

// SessionInvalidator discards the current session after an auth failure.
// *remote.TokenFile implements it.
type SessionInvalidator interface {
	Invalidate() error
}

// --- Config ---

// Config holds Orchestrator configuration.
type Config struct {
	RankLimit            int           // Candidates requested by AssignTopMatch (default 5).
	Source               string        // Source column for logged events (default "orchestrator").
	WatchDir             string        // Directory holding the queue database; "" disables fsnotify.
	PollInterval         time.Duration // Reconcile interval when fsnotify is unavailable (default 30s).
	FallbackPollInterval time.Duration // Safety-net reconcile interval next to fsnotify (default 2m).
	Logger               *slog.Logger  // Structured logger (default slog.Default()).
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RankLimit == 0 {
		out.RankLimit = ranker.DefaultLimit
	}
	if out.Source == "" {
		out.Source = "orchestrator"
	}
	if out.PollInterval == 0 {
		out.PollInterval = 30 * time.Second
	}
	if out.FallbackPollInterval == 0 {
		out.FallbackPollInterval = 2 * time.Minute
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Outcome is the result of one Assign call.
type Outcome struct {
	RequestID     string
	State         State
	RequestStatus protocol.RequestStatus // assigned once the backend settled the request
	Attempt       protocol.AssignmentAttempt
	Candidate     *protocol.Candidate        // set by AssignTopMatch
	Record        *protocol.AssignmentRecord // backend record on confirmation
	Local         bool                       // conflict detected without a remote call
	Message       string
}

// Apply moves req to the status the backend settled for it. It reports
// false and leaves req alone when the outcome is for another request or did
// not settle it.
func (o Outcome) Apply(req *protocol.WorkRequest) bool {
	if req == nil || req.ID != o.RequestID || o.RequestStatus == "" {
		return false
	}
	req.Status = o.RequestStatus
	return true
}

// --- Orchestrator ---

// Orchestrator runs assignment attempts and reconciles the offline queue.
// It is safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	db        *sql.DB
	submitter Submitter
	ranker    Ranker
	queue     *offline.Queue
	session   SessionInvalidator
	notifier  notify.Notifier
	logger    *slog.Logger

	mu    sync.Mutex
	index map[string]protocol.AssignmentAttempt // request id -> latest attempt

	// reconcileMu serializes replay passes.
	reconcileMu sync.Mutex
	lastSeenSeq int64

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an Orchestrator. db must hold protocol.SchemaDDL; it receives
// the event log and the confirmed-assignment index.
func New(cfg Config, db *sql.DB, sub Submitter, rk Ranker, q *offline.Queue, session SessionInvalidator, n notify.Notifier) *Orchestrator {
	resolved := cfg.withDefaults()
	if n == nil {
		n = notify.Discard{}
	}
	return &Orchestrator{
		cfg:       resolved,
		db:        db,
		submitter: sub,
		ranker:    rk,
		queue:     q,
		session:   session,
		notifier:  n,
		logger:    resolved.Logger,
		index:     make(map[string]protocol.AssignmentAttempt),
		nowFunc:   time.Now,
	}
}

// Assign submits candidateID for requestID. Conflicts and offline queueing
// are outcomes, not errors. The returned error is non-nil only for invalid
// input, a local storage failure, *protocol.AuthError or
// *protocol.MalformedResponseError.
func (o *Orchestrator) Assign(ctx context.Context, requestID, candidateID string, details protocol.AssignmentDetails) (Outcome, error) {
	requestID = strings.TrimSpace(requestID)
	candidateID = strings.TrimSpace(candidateID)
	out := Outcome{RequestID: requestID, State: StateIdle}

	switch {
	case requestID == "":
		out.State = StateAborted
		return out, protocol.ErrEmptyRequestID
	case candidateID == "":
		out.State = StateAborted
		return out, protocol.ErrEmptyCandidateID
	}
	if err := details.Validate(); err != nil {
		out.State = StateAborted
		return out, err
	}

	out.State = StateChecking
	attempt, existing, err := o.claim(ctx, requestID, candidateID, details)
	if err != nil {
		out.State = StateAborted
		return out, err
	}
	out.Attempt = attempt
	if existing {
		out.State = StateConflict
		out.Local = true
		out.Message = fmt.Sprintf("request %s already has a %s assignment to %s", requestID, attempt.Status, attempt.CandidateID)
		if attempt.Status == protocol.AttemptConfirmed {
			out.RequestStatus = protocol.RequestAssigned
		}
		_ = o.logEvent(ctx, protocol.EventLocalConflict, requestID, candidateID, map[string]any{
			"attempt_id": attempt.ID,
			"status":     attempt.Status,
		})
		return out, nil
	}

	out.State = StateSubmitting
	_ = o.logEvent(ctx, protocol.EventSubmit, requestID, candidateID, map[string]any{"attempt_id": attempt.ID})
	res := o.submitter.SubmitAssignment(ctx, attempt)
	// The result is recorded even when ctx ended the call: a cancelled or
	// timed-out submit is a network outcome and still gets queued.
	return o.settle(context.WithoutCancel(ctx), out, res)
}

// AssignRequest validates req, assigns candidateID to it and applies the
// settled status to req.
func (o *Orchestrator) AssignRequest(ctx context.Context, req *protocol.WorkRequest, candidateID string, details protocol.AssignmentDetails) (Outcome, error) {
	if req == nil {
		return Outcome{State: StateAborted}, protocol.ErrEmptyRequestID
	}
	if err := req.Validate(); err != nil {
		return Outcome{RequestID: req.ID, State: StateAborted}, err
	}
	out, err := o.Assign(ctx, req.ID, candidateID, details)
	out.Apply(req)
	return out, err
}

// AssignTopMatch ranks candidates for requestID and assigns the first one.
func (o *Orchestrator) AssignTopMatch(ctx context.Context, requestID string, details protocol.AssignmentDetails) (Outcome, error) {
	out := Outcome{RequestID: strings.TrimSpace(requestID), State: StateAborted}

	ranking, err := o.ranker.Rank(ctx, requestID, o.cfg.RankLimit)
	if err != nil {
		return out, err
	}
	_ = o.logEvent(ctx, protocol.EventRank, ranking.RequestID, "", map[string]any{
		"outcome":    ranking.Outcome,
		"candidates": len(ranking.Candidates),
	})

	if ranking.Outcome == classify.KindAuth {
		o.invalidateSession(ctx, ranking.RequestID, "", ranking.Err)
		return out, ranking.Err
	}
	top, ok := ranking.Top()
	if !ok {
		out.Message = "no candidates returned for request " + ranking.RequestID
		if ranking.Err != nil {
			return out, fmt.Errorf("%w: %w", protocol.ErrNoCandidates, ranking.Err)
		}
		return out, protocol.ErrNoCandidates
	}

	res, err := o.Assign(ctx, ranking.RequestID, top.ProzID, details)
	res.Candidate = &top
	return res, err
}

// claim performs the check-and-mark step under the lock. It returns the
// existing blocking attempt, or a fresh submitted attempt now held in the
// index.
func (o *Orchestrator) claim(ctx context.Context, requestID, candidateID string, details protocol.AssignmentDetails) (protocol.AssignmentAttempt, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, ok, err := o.lookupLocked(ctx, requestID)
	if err != nil {
		return protocol.AssignmentAttempt{}, false, err
	}
	if ok && prev.Status.Blocking() {
		return prev, true, nil
	}

	a := protocol.AssignmentAttempt{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		CandidateID: candidateID,
		Details:     details,
		Status:      protocol.AttemptSubmitted,
	}
	o.index[requestID] = a
	return a, false, nil
}

// lookupLocked finds the latest known attempt for requestID: in memory, then
// the offline queue, then the persisted assignments. Caller holds o.mu.
func (o *Orchestrator) lookupLocked(ctx context.Context, requestID string) (protocol.AssignmentAttempt, bool, error) {
	if a, ok := o.index[requestID]; ok {
		return a, true, nil
	}

	a, ok, err := o.queue.PendingFor(ctx, requestID)
	if err != nil {
		return protocol.AssignmentAttempt{}, false, fmt.Errorf("check offline queue: %w", err)
	}
	if ok {
		o.index[requestID] = a
		return a, true, nil
	}

	a, ok, err = o.loadAssignment(ctx, requestID)
	if err != nil {
		return protocol.AssignmentAttempt{}, false, err
	}
	if ok {
		o.index[requestID] = a
	}
	return a, ok, nil
}

// settle dispatches on the classified submission result. ctx must not be
// cancellable.
func (o *Orchestrator) settle(ctx context.Context, out Outcome, res classify.Result[protocol.AssignmentRecord]) (Outcome, error) {
	a := out.Attempt

	switch res.Kind {
	case classify.KindSuccess:
		a.Status = protocol.AttemptConfirmed
		o.recordSettled(ctx, a)
		rec := res.Value
		out.State = StateConfirmed
		out.RequestStatus = protocol.RequestAssigned
		out.Attempt = a
		out.Record = &rec
		out.Message = fmt.Sprintf("request %s assigned to %s", a.RequestID, a.CandidateID)
		_ = o.logEvent(ctx, protocol.EventConfirmed, a.RequestID, a.CandidateID, map[string]any{"attempt_id": a.ID})
		o.notifier.Notify(ctx, notify.Notice{Level: notify.LevelSuccess, Title: "Assigned", Message: out.Message, RequestID: a.RequestID})
		return out, nil

	case classify.KindConflict:
		a.Status = protocol.AttemptConflict
		o.recordSettled(ctx, a)
		out.State = StateConflict
		out.RequestStatus = protocol.RequestAssigned
		out.Attempt = a
		out.Message = "request " + a.RequestID + " is already assigned"
		_ = o.logEvent(ctx, protocol.EventConflict, a.RequestID, a.CandidateID, map[string]any{
			"attempt_id": a.ID,
			"detail":     res.Message,
		})
		o.notifier.Notify(ctx, notify.Notice{Level: notify.LevelInfo, Title: "Already assigned", Message: res.Message, RequestID: a.RequestID})
		return out, nil

	case classify.KindNetwork:
		queued, err := o.enqueue(ctx, a)
		if err != nil {
			out.State = StateAborted
			return out, err
		}
		out.State = StateQueuedOffline
		out.Attempt = queued
		out.Message = fmt.Sprintf("backend unreachable; request %s will sync when connectivity returns", a.RequestID)
		_ = o.logEvent(ctx, protocol.EventQueued, a.RequestID, a.CandidateID, map[string]any{
			"attempt_id": a.ID,
			"seq":        queued.Seq,
			"cause":      errText(res.Cause),
		})
		o.notifier.Notify(ctx, notify.Notice{Level: notify.LevelWarning, Title: "Assignment queued", Message: "will sync when connectivity returns", RequestID: a.RequestID})
		return out, nil

	case classify.KindAuth:
		o.release(a)
		out.State = StateAborted
		err := res.Err()
		o.invalidateSession(ctx, a.RequestID, a.CandidateID, err)
		return out, err

	default:
		o.release(a)
		out.State = StateAborted
		err := res.Err()
		out.Message = err.Error()
		_ = o.logEvent(ctx, protocol.EventAborted, a.RequestID, a.CandidateID, map[string]any{
			"attempt_id": a.ID,
			"error":      err.Error(),
		})
		o.notifier.Notify(ctx, notify.Notice{Level: notify.LevelError, Title: "Assignment failed", Message: err.Error(), RequestID: a.RequestID})
		return out, err
	}
}

// enqueue persists a in the offline queue and records it in the index while
// holding the lock. On failure the in-flight mark is released.
func (o *Orchestrator) enqueue(ctx context.Context, a protocol.AssignmentAttempt) (protocol.AssignmentAttempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	queued, err := o.queue.Enqueue(ctx, a)
	if err != nil {
		o.releaseLocked(a)
		return protocol.AssignmentAttempt{}, err
	}
	o.index[a.RequestID] = queued
	return queued, nil
}

// recordSettled stores a confirmed or conflicting attempt in the index and
// the assignments table.
func (o *Orchestrator) recordSettled(ctx context.Context, a protocol.AssignmentAttempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recordSettledLocked(ctx, a)
}

func (o *Orchestrator) recordSettledLocked(ctx context.Context, a protocol.AssignmentAttempt) {
	o.index[a.RequestID] = a
	if err := o.saveAssignment(ctx, a); err != nil {
		o.logger.WarnContext(ctx, "persist assignment", "request_id", a.RequestID, "error", err)
	}
}

// release drops the in-flight mark for a, leaving any newer attempt alone.
func (o *Orchestrator) release(a protocol.AssignmentAttempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseLocked(a)
}

func (o *Orchestrator) releaseLocked(a protocol.AssignmentAttempt) {
	if cur, ok := o.index[a.RequestID]; ok && cur.ID == a.ID {
		delete(o.index, a.RequestID)
	}
}

func (o *Orchestrator) invalidateSession(ctx context.Context, requestID, candidateID string, cause error) {
	_ = o.logEvent(ctx, protocol.EventAuthAbort, requestID, candidateID, map[string]any{"error": errText(cause)})
	if o.session == nil {
		return
	}
	if err := o.session.Invalidate(); err != nil {
		o.logger.WarnContext(ctx, "invalidate session", "error", err)
	}
}

// --- Lookup ---

// IsAssigned applies the dedup display rule: a request counts as assigned
// when the backend settled it or an attempt is waiting in the offline queue.
func (o *Orchestrator) IsAssigned(ctx context.Context, requestID string) (bool, error) {
	a, ok, err := o.Lookup(ctx, requestID)
	if err != nil || !ok {
		return false, err
	}
	switch a.Status {
	case protocol.AttemptConfirmed, protocol.AttemptConflict, protocol.AttemptQueuedOffline:
		return true, nil
	default:
		return false, nil
	}
}

// Lookup returns the latest known attempt for requestID.
func (o *Orchestrator) Lookup(ctx context.Context, requestID string) (protocol.AssignmentAttempt, bool, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return protocol.AssignmentAttempt{}, false, protocol.ErrEmptyRequestID
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lookupLocked(ctx, requestID)
}

// --- SQLite helpers ---

func (o *Orchestrator) logEvent(ctx context.Context, evType, requestID, candidateID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT INTO events (type, source, request_id, candidate_id, payload) VALUES (?, ?, ?, ?, ?)`,
		evType, o.cfg.Source, requestID, candidateID, string(body))
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// saveAssignment records the first settlement for a request; later ones are
// ignored.
func (o *Orchestrator) saveAssignment(ctx context.Context, a protocol.AssignmentAttempt) error {
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO assignments (request_id, candidate_id, attempt_id, status, assigned_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(request_id) DO NOTHING`,
		a.RequestID, a.CandidateID, a.ID, string(a.Status), o.nowFunc().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

func (o *Orchestrator) loadAssignment(ctx context.Context, requestID string) (protocol.AssignmentAttempt, bool, error) {
	row, ok, err := o.settledRow(ctx, requestID)
	if err != nil || !ok {
		return protocol.AssignmentAttempt{}, false, err
	}
	return protocol.AssignmentAttempt{
		ID:          row.AttemptID,
		RequestID:   row.RequestID,
		CandidateID: row.CandidateID,
		Status:      protocol.AttemptStatus(row.Status),
	}, true, nil
}

// Settled returns the persisted settlement for requestID, if any.
func (o *Orchestrator) Settled(ctx context.Context, requestID string) (protocol.Assignment, bool, error) {
	return o.settledRow(ctx, strings.TrimSpace(requestID))
}

func (o *Orchestrator) settledRow(ctx context.Context, requestID string) (protocol.Assignment, bool, error) {
	var row protocol.Assignment
	err := o.db.QueryRowContext(ctx,
		`SELECT id, request_id, candidate_id, attempt_id, status, assigned_at
		 FROM assignments WHERE request_id = ?`,
		requestID).Scan(&row.ID, &row.RequestID, &row.CandidateID, &row.AttemptID, &row.Status, &row.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Assignment{}, false, nil
	}
	if err != nil {
		return protocol.Assignment{}, false, fmt.Errorf("load assignment: %w", err)
	}
	return row, true, nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
