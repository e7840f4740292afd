// Package remote is the transport to the backend authority. It attaches
// credentials, sends JSON, and hands the raw outcome to the classifier.
// It never interprets status codes itself.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"proz/pkg/classify"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 15 * time.Second

// Client talks to the backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	auth    AuthProvider
	phrases classify.Phrases
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuth sets the credential provider applied to every request.
func WithAuth(a AuthProvider) Option {
	return func(c *Client) { c.auth = a }
}

// WithPhrases overrides the phrase table used for classification.
func WithPhrases(p classify.Phrases) Option {
	return func(c *Client) { c.phrases = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for baseURL. The default timeout is
// DefaultTimeout and no credentials are attached.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		phrases: classify.DefaultPhrases,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// Request describes one backend call.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// Do sends req and returns the raw response. The error is non-nil only for
// transport failures (no response read) or for requests that could not be
// built.
func (c *Client) Do(ctx context.Context, req Request) (classify.Response, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return classify.Response{}, &BuildError{Method: req.Method, Path: req.Path, Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.DebugContext(ctx, "backend transport failure",
			"method", req.Method, "path", req.Path, "error", err.Error())
		return classify.Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return classify.Response{}, fmt.Errorf("read %s %s: %w", req.Method, req.Path, err)
	}

	c.logger.DebugContext(ctx, "backend call",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	return classify.Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + req.Path)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if c.auth != nil {
		if err := c.auth.Apply(httpReq); err != nil {
			return nil, fmt.Errorf("apply auth: %w", err)
		}
	}
	return httpReq, nil
}

// BuildError reports a request that could not be constructed. Nothing was
// sent.
type BuildError struct {
	Method string
	Path   string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Call performs req on c and classifies the outcome into T. op names the
// call in logs.
func Call[T any](ctx context.Context, c *Client, op string, req Request) classify.Result[T] {
	resp, err := c.Do(ctx, req)
	if err != nil {
		var buildErr *BuildError
		switch {
		case errors.Is(err, ErrNoToken):
			return classify.Logged(ctx, c.logger, op, classify.Auth[T](0, ErrNoToken.Error()))
		case errors.As(err, &buildErr):
			return classify.Logged(ctx, c.logger, op, classify.Malformed[T](0, err))
		default:
			return classify.Logged(ctx, c.logger, op, classify.FromTransport[T](err))
		}
	}
	return classify.Logged(ctx, c.logger, op, classify.ClassifyWith[T](c.phrases, resp))
}
