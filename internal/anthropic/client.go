// Package anthropic is a minimal client for the Messages API used by the
// node's direct operation.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	messagesPath   = "/v1/messages"
	maxErrorBody   = 64 * 1024
	defaultTimeout = 10 * time.Minute
)

// Authenticator shapes outbound request headers; credentials implement it
type Authenticator interface {
	Authenticate(h http.Header) http.Header
}

// Doer sends HTTP requests
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one Messages API endpoint
type Client struct {
	baseURL    string
	auth       Authenticator
	httpClient Doer
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithLogger sets the logger used for request tracing
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for baseURL, authenticating every request with auth
func NewClient(baseURL string, auth Authenticator, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateMessage performs a single request/response exchange
func (c *Client) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	body := *req
	body.Stream = false

	resp, err := c.post(ctx, &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &out, nil
}

// StreamMessage requests a server-sent event stream and assembles it into
// the same response shape CreateMessage returns
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	body := *req
	body.Stream = true

	resp, err := c.post(ctx, &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return assembleStream(resp.Body)
}

func (c *Client) post(ctx context.Context, body *MessageRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	endpoint := c.baseURL + messagesPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.auth != nil {
		c.auth.Authenticate(httpReq.Header)
	}

	c.logger.Debug("messages request", "url", endpoint, "model", body.Model, "stream", body.Stream)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp)
	}
	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		apiErr.Type = eb.Error.Type
		apiErr.Message = eb.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return errors.WithStack(apiErr)
}
