// Package classify turns raw backend outcomes into a finite set of typed
// results. It is the single place where status codes, error envelopes and
// known backend phrases are interpreted; every remote call in proz passes
// through it.
//
// Precedence for non-2xx responses: business-conflict phrase, then
// authentication phrase or 401/403, then generic failure. The backend reuses
// generic 4xx codes for conflict signalling, so the phrase wins over the code.
package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"proz/pkg/protocol"
)

// Kind is the outcome class of a backend interaction.
type Kind string

// Outcome kinds.
const (
	KindSuccess   Kind = "success"
	KindConflict  Kind = "business_conflict"
	KindAuth      Kind = "auth_error"
	KindNetwork   Kind = "network_error"
	KindMalformed Kind = "malformed_response"
)

// Response is the raw material handed to the classifier.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Result is a discriminated union over the five outcome kinds. Only the
// fields relevant to Kind are populated.
type Result[T any] struct {
	Kind       Kind
	Value      T      // KindSuccess
	Message    string // KindConflict, KindAuth, generic failures
	StatusCode int    // 0 for network errors
	Cause      error  // KindNetwork, KindMalformed
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool { return r.Kind == KindSuccess }

// Terminal reports whether the remote authority has settled the outcome:
// either it accepted the call or it already holds the desired state.
func (r Result[T]) Terminal() bool {
	return r.Kind == KindSuccess || r.Kind == KindConflict
}

// Err converts a non-success result into a typed protocol error. It returns
// nil for KindSuccess.
func (r Result[T]) Err() error {
	switch r.Kind {
	case KindSuccess:
		return nil
	case KindConflict:
		return &protocol.ConflictError{Detail: r.Message}
	case KindAuth:
		return &protocol.AuthError{StatusCode: r.StatusCode, Detail: r.Message}
	case KindNetwork:
		return &protocol.NetworkError{Op: "request", Cause: r.Cause}
	default:
		return &protocol.MalformedResponseError{StatusCode: r.StatusCode, Detail: r.Message, Cause: r.Cause}
	}
}

// Success builds a success result.
func Success[T any](v T) Result[T] {
	return Result[T]{Kind: KindSuccess, Value: v}
}

// Conflict builds a business-conflict result.
func Conflict[T any](status int, msg string) Result[T] {
	return Result[T]{Kind: KindConflict, StatusCode: status, Message: msg}
}

// Auth builds an authentication-failure result.
func Auth[T any](status int, msg string) Result[T] {
	return Result[T]{Kind: KindAuth, StatusCode: status, Message: msg}
}

// Network builds a network-failure result.
func Network[T any](cause error) Result[T] {
	return Result[T]{Kind: KindNetwork, Cause: cause}
}

// Malformed builds a malformed-response result.
func Malformed[T any](status int, cause error) Result[T] {
	return Result[T]{Kind: KindMalformed, StatusCode: status, Cause: cause}
}

// Failure builds a generic failure: an error status with a detail that
// matched no known phrase. Orchestration treats it as malformed.
func Failure[T any](status int, detail string) Result[T] {
	return Result[T]{Kind: KindMalformed, StatusCode: status, Message: detail}
}

// ErrMarkupBody is the cause attached when the backend answers with HTML/XML.
var ErrMarkupBody = errors.New("markup payload where JSON was expected")

// Classify interprets resp using DefaultPhrases.
func Classify[T any](resp Response) Result[T] {
	return ClassifyWith[T](DefaultPhrases, resp)
}

// ClassifyWith interprets resp using the given phrase table.
func ClassifyWith[T any](phrases Phrases, resp Response) Result[T] {
	body := bytes.TrimSpace(resp.Body)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	if success && len(body) == 0 {
		var zero T
		return Success(zero)
	}

	if looksLikeMarkup(body, resp.ContentType) {
		return Malformed[T](resp.StatusCode, ErrMarkupBody)
	}

	if success {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return Malformed[T](resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
		return Success(v)
	}

	detail := ExtractDetail(body)
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch {
	case phrases.IsConflict(detail):
		return Conflict[T](resp.StatusCode, detail)
	case phrases.IsAuth(detail),
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return Auth[T](resp.StatusCode, detail)
	default:
		return Failure[T](resp.StatusCode, detail)
	}
}

// FromTransport classifies an error raised before any response was read.
// Connection refusal, DNS failure, timeouts and cancelled contexts all land
// here.
func FromTransport[T any](err error) Result[T] {
	return Network[T](err)
}

// looksLikeMarkup reports whether the body or declared content type is
// HTML/XML.
func looksLikeMarkup(body []byte, contentType string) bool {
	if len(body) > 0 && body[0] == '<' {
		return true
	}
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/xml", "application/xml":
		return true
	default:
		return false
	}
}
