package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"proz/pkg/classify"
	"proz/pkg/protocol"
	"proz/pkg/remote"
)

// captured records what the fake backend saw.
type captured struct {
	mu      sync.Mutex
	auth    string
	idem    string
	limit   string
	reqID   string
	payload protocol.AssignPayload
}

func newBackend(t *testing.T, c *captured) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ai/match/{requestID}", func(w http.ResponseWriter, req *http.Request) {
		c.mu.Lock()
		c.auth = req.Header.Get("Authorization")
		c.limit = req.URL.Query().Get("limit")
		c.reqID = chi.URLParam(req, "requestID")
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"proz_id":"p1","score":0.9}]`))
	})
	r.Post("/assignments", func(w http.ResponseWriter, req *http.Request) {
		c.mu.Lock()
		c.auth = req.Header.Get("Authorization")
		c.idem = req.Header.Get(remote.IdempotencyHeader)
		_ = json.NewDecoder(req.Body).Decode(&c.payload)
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"service_request_id":"req-1","proz_id":"p1","status":"assigned"}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCandidates_SendsAuthAndLimit(t *testing.T) {
	var seen captured
	srv := newBackend(t, &seen)

	c := remote.NewClient(srv.URL+"/", remote.WithAuth(&remote.BearerToken{Token: "tok-1"}))
	r := c.FetchCandidates(context.Background(), "req-1", 7)
	if !r.OK() {
		t.Fatalf("expected success, got %s: %v", r.Kind, r.Err())
	}

	seen.mu.Lock()
	defer seen.mu.Unlock()
	if seen.auth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", seen.auth)
	}
	if seen.limit != "7" {
		t.Errorf("limit = %q, want 7", seen.limit)
	}
	if seen.reqID != "req-1" {
		t.Errorf("request id = %q", seen.reqID)
	}
}

func TestSubmitAssignment_SendsPayloadAndIdempotencyKey(t *testing.T) {
	var seen captured
	srv := newBackend(t, &seen)

	c := remote.NewClient(srv.URL, remote.WithAuth(&remote.BearerToken{Token: "tok-2"}))
	hours := 3.0
	r := c.SubmitAssignment(context.Background(), protocol.AssignmentAttempt{
		ID:          "attempt-1",
		RequestID:   "req-1",
		CandidateID: "p1",
		Details:     protocol.AssignmentDetails{Notes: "gate code 1234", EstimatedHours: &hours},
	})
	if !r.OK() {
		t.Fatalf("expected success, got %s: %v", r.Kind, r.Err())
	}
	if r.Value.ProzID != "p1" || r.Value.Status != "assigned" {
		t.Errorf("unexpected record %+v", r.Value)
	}

	seen.mu.Lock()
	defer seen.mu.Unlock()
	if seen.idem != "attempt-1" {
		t.Errorf("Idempotency-Key = %q", seen.idem)
	}
	if seen.payload.ServiceRequestID != "req-1" || seen.payload.ProzID != "p1" {
		t.Errorf("payload ids = %+v", seen.payload)
	}
	if seen.payload.Notes != "gate code 1234" {
		t.Errorf("notes = %q", seen.payload.Notes)
	}
	if seen.payload.EstimatedHours == nil || *seen.payload.EstimatedHours != 3 {
		t.Errorf("estimated hours = %v", seen.payload.EstimatedHours)
	}
}

func TestCall_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := remote.NewClient(url, remote.WithAuth(&remote.BearerToken{Token: "t"}))
	r := c.FetchCandidates(context.Background(), "req-1", 5)
	if r.Kind != classify.KindNetwork {
		t.Fatalf("expected network error, got %s", r.Kind)
	}
}

func TestCall_TimeoutIsNetwork(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := remote.NewClient(srv.URL,
		remote.WithAuth(&remote.BearerToken{Token: "t"}),
		remote.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	r := c.SubmitAssignment(context.Background(), protocol.AssignmentAttempt{RequestID: "req-1", CandidateID: "p1"})
	if r.Kind != classify.KindNetwork {
		t.Fatalf("expected network error on timeout, got %s", r.Kind)
	}
}

func TestCall_MissingTokenIsAuth(t *testing.T) {
	var seen captured
	srv := newBackend(t, &seen)

	c := remote.NewClient(srv.URL, remote.WithAuth(&remote.TokenFile{Path: filepath.Join(t.TempDir(), "token")}))
	r := c.FetchCandidates(context.Background(), "req-1", 5)
	if r.Kind != classify.KindAuth {
		t.Fatalf("expected auth error without a token, got %s", r.Kind)
	}

	seen.mu.Lock()
	defer seen.mu.Unlock()
	if seen.reqID != "" {
		t.Error("request must not be sent without credentials")
	}
}

func TestTokenFile_Lifecycle(t *testing.T) {
	tf := &remote.TokenFile{Path: filepath.Join(t.TempDir(), "token")}

	if err := tf.Write("  abc  "); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := tf.Read()
	if err != nil || got != "abc" {
		t.Fatalf("read = %q, %v", got, err)
	}

	if err := tf.Invalidate(); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := tf.Read(); err != remote.ErrNoToken { //nolint:errorlint // sentinel returned directly
		t.Errorf("expected ErrNoToken after invalidate, got %v", err)
	}
	if err := tf.Invalidate(); err != nil {
		t.Errorf("second invalidate should be a no-op, got %v", err)
	}
}
