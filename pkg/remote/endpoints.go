package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"proz/pkg/classify"
	"proz/pkg/protocol"
)

// Backend paths.
const (
	matchPath       = "/ai/match/"
	assignmentsPath = "/assignments"
)

// IdempotencyHeader carries the local attempt id so the backend can
// recognise replays.
const IdempotencyHeader = "Idempotency-Key"

// FetchCandidates asks the ranking endpoint for up to limit candidates. The
// payload is returned undecoded because the backend wraps it inconsistently.
func (c *Client) FetchCandidates(ctx context.Context, requestID string, limit int) classify.Result[json.RawMessage] {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	return Call[json.RawMessage](ctx, c, "rank", Request{
		Method: http.MethodGet,
		Path:   matchPath + url.PathEscape(requestID),
		Query:  q,
	})
}

// SubmitAssignment posts one assignment attempt.
func (c *Client) SubmitAssignment(ctx context.Context, attempt protocol.AssignmentAttempt) classify.Result[protocol.AssignmentRecord] {
	headers := map[string]string{}
	if attempt.ID != "" {
		headers[IdempotencyHeader] = attempt.ID
	}
	return Call[protocol.AssignmentRecord](ctx, c, "assign", Request{
		Method:  http.MethodPost,
		Path:    assignmentsPath,
		Body:    attempt.Payload(),
		Headers: headers,
	})
}
