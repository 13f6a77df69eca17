// Package examapi talks to the exam server that owns mock exam and culture
// quiz sessions.
package examapi

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

	"github.com/abhisek/examdrill/internal/session"
)

const defaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	BaseURL string        `yaml:"base_url" env:"EXAM_API_URL"`
	Token   string        `yaml:"token" env:"EXAM_API_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env:"EXAM_API_TIMEOUT" env-default:"15s"`
}

// StatusError is a 4xx answer from the server. It is never retried.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// Client implements session.Server over HTTP/JSON.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

var _ session.Server = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("exam api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse exam api url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		base:   base,
		token:  cfg.Token,
		http:   &http.Client{Timeout: timeout},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) CreateOrResumeSession(ctx context.Context, req session.CreateRequest) (*session.CreateResponse, error) {
	var resp session.CreateResponse
	if err := c.do(ctx, "create session", "sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, req session.AnswerRequest) (*session.AnswerResponse, error) {
	var resp session.AnswerResponse
	path := "sessions/" + url.PathEscape(req.SessionID) + "/answers"
	if err := c.do(ctx, "submit answer", path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type completeRequest struct {
	TotalElapsedSeconds float64 `json:"totalElapsedSeconds"`
}

func (c *Client) CompleteSession(ctx context.Context, sessionID string, totalElapsedSeconds float64) (*session.ServerResult, error) {
	var resp session.ServerResult
	path := "sessions/" + url.PathEscape(sessionID) + "/complete"
	if err := c.do(ctx, "complete session", path, completeRequest{TotalElapsedSeconds: totalElapsedSeconds}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AbandonSession(ctx context.Context, sessionID string) error {
	path := "sessions/" + url.PathEscape(sessionID) + "/abandon"
	return c.do(ctx, "abandon session", path, struct{}{}, nil)
}

// do POSTs body as JSON and decodes the response into out, if non-nil.
// Transport failures, 429 and 5xx become *session.NetworkError.
func (c *Client) do(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &session.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("exam api call",
		"op", op,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &session.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(readMessage(resp.Body))}
	case resp.StatusCode >= 400:
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// readMessage extracts {"error": "..."} from an error body, or returns the
// raw text.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
