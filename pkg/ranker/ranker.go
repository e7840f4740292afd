// Package ranker fetches AI-ranked candidates for a work request. Scores and
// reasons are computed by the backend; the ranker only consumes them and
// never reorders.
package ranker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"proz/pkg/classify"
	"proz/pkg/protocol"
)

// Limits for the number of candidates requested.
const (
	DefaultLimit = 5
	MaxLimit     = 50
)

// Source is the remote ranking endpoint. *remote.Client implements it.
type Source interface {
	FetchCandidates(ctx context.Context, requestID string, limit int) classify.Result[json.RawMessage]
}

// Ranking is the outcome of one ranking call. Candidates is empty whenever
// Outcome is not KindSuccess.
type Ranking struct {
	RequestID  string
	Candidates []protocol.Candidate
	Outcome    classify.Kind
	Shape      string // envelope that matched, "" if none
	Err        error  // typed protocol error for non-success outcomes
}

// Top returns the first candidate, if any.
func (r Ranking) Top() (protocol.Candidate, bool) {
	if len(r.Candidates) == 0 {
		return protocol.Candidate{}, false
	}
	return r.Candidates[0], true
}

// Ranker requests ranked candidates.
type Ranker struct {
	src    Source
	shapes []Shape
	logger *slog.Logger
}

// New creates a Ranker using DefaultShapes.
func New(src Source, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{src: src, shapes: DefaultShapes, logger: logger}
}

// WithShapes returns a copy of r that tries shapes in the given order.
func (r *Ranker) WithShapes(shapes ...Shape) *Ranker {
	cp := *r
	cp.shapes = shapes
	return &cp
}

// Rank returns up to limit candidates for requestID, in backend order. The
// only error is protocol.ErrEmptyRequestID; business, auth and network
// outcomes are reported through Ranking.Outcome with an empty list.
func (r *Ranker) Rank(ctx context.Context, requestID string, limit int) (Ranking, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return Ranking{}, protocol.ErrEmptyRequestID
	}
	limit = clampLimit(limit)

	res := r.src.FetchCandidates(ctx, requestID, limit)
	out := Ranking{RequestID: requestID, Outcome: res.Kind}
	if !res.OK() {
		out.Err = res.Err()
		var conflict *protocol.ConflictError
		if errors.As(out.Err, &conflict) {
			conflict.RequestID = requestID
		}
		return out, nil
	}

	cands, shape := Normalize(res.Value, r.shapes)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	out.Candidates = cands
	out.Shape = shape

	r.logger.DebugContext(ctx, "ranked candidates",
		"request_id", requestID, "count", len(cands), "shape", shape)
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
