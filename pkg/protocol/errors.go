package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmer-visible input problems.
var (
	ErrEmptyRequestID   = errors.New("request id is required")
	ErrEmptyCandidateID = errors.New("candidate id is required")
	ErrInvalidDetails   = errors.New("invalid assignment details")
	ErrInvalidRequest   = errors.New("invalid work request")
	ErrNoCandidates     = errors.New("no candidates")
)

// ConflictError reports that the remote authority already holds an
// assignment for the request. Callers treat it as an idempotent success.
type ConflictError struct {
	RequestID string
	Detail    string
}

func (e *ConflictError) Error() string {
	if e.RequestID == "" {
		return "request already assigned: " + e.Detail
	}
	return fmt.Sprintf("request %s already assigned: %s", e.RequestID, e.Detail)
}

// AuthError represents a rejected or expired session. It is never retried
// with the same credentials.
type AuthError struct {
	StatusCode int
	Detail     string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (HTTP %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("authentication failed: %s", e.Detail)
}

// NetworkError represents a transport failure before any response was read.
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// MalformedResponseError represents a response that violates the backend
// contract: markup instead of JSON, an undecodable body, or an unrecognised
// error status. It is surfaced immediately and never queued.
type MalformedResponseError struct {
	StatusCode int
	Detail     string
	Cause      error
}

func (e *MalformedResponseError) Error() string {
	switch {
	case e.Cause != nil && e.StatusCode != 0:
		return fmt.Sprintf("malformed response (HTTP %d): %v", e.StatusCode, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("malformed response: %v", e.Cause)
	default:
		return fmt.Sprintf("request failed (HTTP %d): %s", e.StatusCode, e.Detail)
	}
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}
