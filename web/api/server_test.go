package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/node"
	"github.com/hochfrequenz/claude-code-node/internal/runstore"
	"github.com/hochfrequenz/claude-code-node/internal/session"
)

const resultLine = `{"type":"result","subtype":"success","result":"done","duration_ms":5,"total_cost_usd":0.25}`

type launcherFunc func(ctx context.Context, opts session.QueryOptions) (session.Session, error)

func (f launcherFunc) Query(ctx context.Context, opts session.QueryOptions) (session.Session, error) {
	return f(ctx, opts)
}

// recordingLauncher replays resultLine and remembers every prompt
type recordingLauncher struct {
	mu      sync.Mutex
	prompts []string
}

func (l *recordingLauncher) Query(_ context.Context, opts session.QueryOptions) (session.Session, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, opts.Prompt)
	l.mu.Unlock()
	msg, err := session.ParseMessage([]byte(resultLine))
	if err != nil {
		return nil, err
	}
	return &session.SliceSession{Messages: []*session.Message{msg}}, nil
}

func newTestServer(t *testing.T, launcher session.Launcher, store *runstore.Store) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func(obs node.Observer) Runner {
		return node.New(node.WithLauncher(launcher), node.WithLogger(logger), node.WithObserver(obs))
	}
	settings := Settings{
		Claude:     &credentials.ClaudeCodeAPI{AuthMethod: credentials.AuthAPIKey, APIKey: "sk-secret"},
		MCPServers: map[string]*credentials.MCPServer{"files": {ConnectionType: credentials.ConnectionStdio, Command: "true"}},
	}
	return NewServer(factory, store, settings, ":0", logger)
}

func newStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func post(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestExecuteHandler(t *testing.T) {
	launcher := &recordingLauncher{}
	store := newStore(t)
	server := newTestServer(t, launcher, store)

	w := post(t, server, `{
		"parameters": {"prompt": "default prompt", "outputFormat": "text"},
		"items": [{}, {"prompt": "item prompt"}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		BatchID string `json:"batch_id"`
		Items   []struct {
			JSON       map[string]any `json:"json"`
			PairedItem int            `json:"pairedItem"`
		} `json:"items"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.BatchID == "" || len(resp.Items) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Items[1].PairedItem != 1 || resp.Items[1].JSON["result"] != "done" {
		t.Errorf("item 1 = %+v", resp.Items[1])
	}
	if got := launcher.prompts; len(got) != 2 || got[0] != "default prompt" || got[1] != "item prompt" {
		t.Errorf("prompts = %v", got)
	}

	runs, err := store.ListBatchRuns(resp.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || !runs[0].Success || runs[0].CostUSD != 0.25 {
		t.Errorf("runs = %+v", runs)
	}
	batch, err := store.GetBatch(resp.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if batch.FinishedAt == nil || batch.Source != "api" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestExecuteHandler_AbortsAtFirstFault(t *testing.T) {
	server := newTestServer(t, &recordingLauncher{}, nil)

	w := post(t, server, `{"parameters": {"prompt": "ok"}, "items": [{}, {"prompt": "  "}]}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Status = %d, want 422", w.Code)
	}
	var failure FailureResponse
	json.NewDecoder(w.Body).Decode(&failure)
	if failure.ItemIndex != 1 || !strings.HasPrefix(failure.Error, "Claude Code execution failed: ") {
		t.Errorf("failure = %+v", failure)
	}
}

func TestExecuteHandler_ContinueOnFail(t *testing.T) {
	server := newTestServer(t, &recordingLauncher{}, nil)

	w := post(t, server, `{"continue_on_fail": true, "items": [{"prompt": ""}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	var resp ExecuteResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Items) != 1 {
		t.Fatalf("items = %+v", resp.Items)
	}
	rec, _ := resp.Items[0].JSON.(map[string]any)
	if rec["errorType"] != "execution_error" || rec["itemIndex"] != float64(0) {
		t.Errorf("error record = %v", rec)
	}
}

func TestExecuteHandler_BadRequests(t *testing.T) {
	server := newTestServer(t, &recordingLauncher{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no items", `{"items": []}`},
		{"bad parameters", `{"items": [{}], "parameters": {"timeout": "soon"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := post(t, server, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", w.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/execute", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET Status = %d, want 405", w.Code)
	}
}

func TestExecuteHandler_LauncherFault(t *testing.T) {
	server := newTestServer(t, launcherFunc(func(context.Context, session.QueryOptions) (session.Session, error) {
		return nil, context.DeadlineExceeded
	}), nil)

	w := post(t, server, `{"items": [{"prompt": "x"}]}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", w.Code)
	}
}

func TestNodeHandler(t *testing.T) {
	server := newTestServer(t, &recordingLauncher{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/node", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var desc node.Description
	if err := json.NewDecoder(w.Body).Decode(&desc); err != nil {
		t.Fatal(err)
	}
	if desc.Name != node.Name || len(desc.Properties) == 0 {
		t.Errorf("description = %+v", desc)
	}
}

func TestCredentialsHandler(t *testing.T) {
	server := newTestServer(t, &recordingLauncher{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/credentials", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Contains(body, "sk-secret") {
		t.Fatal("credentials response leaks the api key")
	}
	var resp CredentialsResponse
	json.Unmarshal([]byte(body), &resp)
	if len(resp.Types) != 2 || !resp.Claude || len(resp.MCPServers) != 1 || resp.MCPServers[0] != "files" {
		t.Errorf("response = %+v", resp)
	}
}

func TestListRunsHandler(t *testing.T) {
	store := newStore(t)
	server := newTestServer(t, &recordingLauncher{}, store)
	post(t, server, `{"items": [{"prompt": "a"}, {"prompt": "b"}, {"prompt": "c"}]}`)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	var runs []map[string]any
	json.NewDecoder(w.Body).Decode(&runs)
	if len(runs) != 2 {
		t.Errorf("runs = %d, want 2", len(runs))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/runs?limit=x", nil)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}

	noHistory := newTestServer(t, &recordingLauncher{}, nil)
	req = httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	w = httptest.NewRecorder()
	noHistory.Handler().ServeHTTP(w, req)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestSSE_ItemEvents(t *testing.T) {
	server := newTestServer(t, &recordingLauncher{}, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	for server.sseHub.Clients() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never subscribed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		post(t, server, `{"items": [{"prompt": "a"}]}`)
	}()
	defer func() { <-done }()

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if eventLine != EventItemCompleted {
		t.Fatalf("event = %q", eventLine)
	}
	var ev struct {
		Type string    `json:"type"`
		Data ItemEvent `json:"data"`
	}
	if err := json.Unmarshal([]byte(dataLine), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Data.BatchID == "" || !ev.Data.Success || ev.Data.CostUSD != 0.25 {
		t.Errorf("event data = %+v", ev.Data)
	}
}

func TestSSEHub_DropsForSlowClients(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.Subscribe()
	for i := 0; i < clientBuffer+10; i++ {
		hub.Broadcast(SSEEvent{Type: "x"})
	}
	if len(ch) != clientBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), clientBuffer)
	}
	hub.Unsubscribe(ch)
	hub.Unsubscribe(ch)
	if hub.Clients() != 0 {
		t.Error("client not removed")
	}
}
