package mcp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const sessionHeader = "Mcp-Session-Id"

// HTTPTransport posts each JSON-RPC message to a single endpoint. Responses
// may be plain JSON or an event stream carrying the response.
type HTTPTransport struct {
	url    string
	header http.Header
	client *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewHTTPTransport creates a transport for url. A nil client uses http.DefaultClient.
func NewHTTPTransport(url string, header http.Header, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if header == nil {
		header = make(http.Header)
	}
	return &HTTPTransport{url: url, header: header, client: client}
}

func (t *HTTPTransport) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	for k, v := range t.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set(sessionHeader, t.sessionID)
	}
	t.mu.Unlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	if id := resp.Header.Get(sessionHeader); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, errors.Errorf("MCP server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

func (t *HTTPTransport) Call(ctx context.Context, id int64, req []byte) ([]byte, error) {
	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "reading response")
		}
		return body, nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		msg := []byte(strings.TrimSpace(data))
		if got, isResp := responseID(msg); isResp && got == id {
			return msg, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading event stream")
	}
	return nil, errors.New("event stream ended without a response")
}

func (t *HTTPTransport) Notify(ctx context.Context, msg []byte) error {
	resp, err := t.post(ctx, msg)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Close ends the server session when one was assigned
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	id := t.sessionID
	t.mu.Unlock()
	if id == "" {
		return nil
	}

	req, err := http.NewRequest(http.MethodDelete, t.url, nil)
	if err != nil {
		return err
	}
	for k, v := range t.header {
		req.Header[k] = v
	}
	req.Header.Set(sessionHeader, id)
	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "ending MCP session")
	}
	return resp.Body.Close()
}
