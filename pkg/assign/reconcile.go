package assign

import (
	"context"
	"fmt"

	"proz/pkg/classify"
	"proz/pkg/notify"
	"proz/pkg/protocol"
)

// ReplayResult is the outcome of replaying one queued attempt.
type ReplayResult struct {
	Seq         int64
	RequestID   string
	CandidateID string
	Kind        classify.Kind
	Err         error
}

// ReconcileReport summarizes one replay pass.
type ReconcileReport struct {
	Confirmed    int
	Conflicts    int
	StillOffline int
	Failed       int
	AuthAborted  bool
	Results      []ReplayResult
}

// Settled returns how many entries left the queue because the backend
// settled them.
func (r ReconcileReport) Settled() int { return r.Confirmed + r.Conflicts }

// Reconcile replays queued attempts in sequence order through the submit
// path.
//
//   - success or conflict: the entry is removed and the index updated together.
//   - network failure: the entry stays queued with its retry count bumped, and
//     the pass stops; later entries are counted as still offline untouched.
//   - auth failure: the pass stops, the session is invalidated and the
//     *protocol.AuthError is returned. Nothing is removed.
//   - anything else: the entry is marked failed and waits for an operator.
func (o *Orchestrator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	o.reconcileMu.Lock()
	defer o.reconcileMu.Unlock()

	var report ReconcileReport
	pending, err := o.queue.ListPending(ctx, "")
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}

	for i, a := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if a.Seq > o.lastSeenSeq {
			o.lastSeenSeq = a.Seq
		}

		res := o.submitter.SubmitAssignment(ctx, a)
		// Bookkeeping for an answered replay must land even if ctx is done.
		sctx := context.WithoutCancel(ctx)
		r := ReplayResult{Seq: a.Seq, RequestID: a.RequestID, CandidateID: a.CandidateID, Kind: res.Kind}

		switch res.Kind {
		case classify.KindSuccess, classify.KindConflict:
			status := protocol.AttemptConfirmed
			if res.Kind == classify.KindConflict {
				status = protocol.AttemptConflict
			}
			if err := o.settleReplay(sctx, a, status); err != nil {
				return report, err
			}
			if status == protocol.AttemptConfirmed {
				report.Confirmed++
			} else {
				report.Conflicts++
			}
			_ = o.logEvent(sctx, protocol.EventReconciled, a.RequestID, a.CandidateID, map[string]any{
				"attempt_id": a.ID,
				"seq":        a.Seq,
				"outcome":    status,
			})
			o.notifier.Notify(sctx, notify.Notice{
				Level:     notify.LevelSuccess,
				Title:     "Assignment synced",
				Message:   fmt.Sprintf("request %s %s", a.RequestID, status),
				RequestID: a.RequestID,
			})

		case classify.KindNetwork:
			r.Err = res.Err()
			if err := o.queue.RecordRetry(sctx, a, errText(res.Cause)); err != nil {
				return report, fmt.Errorf("reconcile: %w", err)
			}
			_ = o.logEvent(sctx, protocol.EventStillOffline, a.RequestID, a.CandidateID, map[string]any{
				"seq":   a.Seq,
				"cause": errText(res.Cause),
			})
			report.StillOffline += len(pending) - i
			report.Results = append(report.Results, r)
			return report, nil

		case classify.KindAuth:
			r.Err = res.Err()
			report.AuthAborted = true
			report.Results = append(report.Results, r)
			o.invalidateSession(sctx, a.RequestID, a.CandidateID, r.Err)
			return report, r.Err

		default:
			r.Err = res.Err()
			if err := o.failReplay(sctx, a, r.Err); err != nil {
				return report, err
			}
			report.Failed++
			_ = o.logEvent(sctx, protocol.EventAborted, a.RequestID, a.CandidateID, map[string]any{
				"seq":   a.Seq,
				"error": r.Err.Error(),
			})
			o.notifier.Notify(sctx, notify.Notice{
				Level:     notify.LevelError,
				Title:     "Queued assignment failed",
				Message:   r.Err.Error(),
				RequestID: a.RequestID,
			})
		}
		report.Results = append(report.Results, r)
	}
	return report, nil
}

// settleReplay removes a from the queue and records the settlement while
// holding the lock.
func (o *Orchestrator) settleReplay(ctx context.Context, a protocol.AssignmentAttempt, status protocol.AttemptStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.queue.Remove(ctx, a.Seq); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	a.Status = status
	o.recordSettledLocked(ctx, a)
	return nil
}

func (o *Orchestrator) failReplay(ctx context.Context, a protocol.AssignmentAttempt, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.queue.MarkFailed(ctx, a, cause.Error()); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	o.releaseLocked(a)
	return nil
}

// DropFailed removes a failed queue entry on operator request.
func (o *Orchestrator) DropFailed(ctx context.Context, seq int64) error {
	if err := o.queue.DropFailed(ctx, seq); err != nil {
		return err
	}
	_ = o.logEvent(ctx, protocol.EventDropped, "", "", map[string]any{"seq": seq})
	return nil
}
