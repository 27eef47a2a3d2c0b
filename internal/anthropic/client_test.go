package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type headerAuth struct{ key string }

func (a headerAuth) Authenticate(h http.Header) http.Header {
	h.Set("Authorization", "Bearer "+a.key)
	h.Set("anthropic-version", "2023-06-01")
	return h
}

func TestCreateMessage(t *testing.T) {
	var got MessageRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":1}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", headerAuth{key: "k"}, WithHTTPClient(server.Client()))
	resp, err := client.CreateMessage(context.Background(), &MessageRequest{
		Model:     "m",
		MaxTokens: 100,
		Messages:  []Message{{Role: "user", Content: "hello"}},
		System:    "be brief",
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if gotAuth != "Bearer k" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.MaxTokens != 100 || got.System != "be brief" || got.Stream {
		t.Errorf("unexpected request body: %+v", got)
	}
	if resp.FirstText() != "hi" {
		t.Errorf("FirstText() = %q, want hi", resp.FirstText())
	}
	if resp.Usage.InputTokens != 3 || resp.Usage.OutputTokens != 1 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestCreateMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, WithHTTPClient(server.Client()))
	_, err := client.CreateMessage(context.Background(), &MessageRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Type != "invalid_request_error" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "max_tokens too large") {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestFirstText_NonTextBlock(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{{Type: "tool_use", Name: "Bash"}}}
	if resp.FirstText() != "" {
		t.Errorf("FirstText() = %q, want empty", resp.FirstText())
	}
	if (&MessageResponse{}).FirstText() != "" {
		t.Error("FirstText() on empty content should be empty")
	}
}

func writeEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestStreamMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream=true in request body")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"usage":{"input_tokens":5,"output_tokens":0}}}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeEvent(w, "ping", `{"type":"ping"}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`)
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_1","name":"lookup","input":{}}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"x\"}"}}`)
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":1}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":7}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, WithHTTPClient(server.Client()))
	resp, err := client.StreamMessage(context.Background(), &MessageRequest{Model: "m", MaxTokens: 10})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}

	if resp.FirstText() != "Hello" {
		t.Errorf("FirstText() = %q, want Hello", resp.FirstText())
	}
	if len(resp.Content) != 2 || resp.Content[1].Name != "lookup" {
		t.Fatalf("Content = %+v", resp.Content)
	}
	if string(resp.Content[1].Input) != `{"q":"x"}` {
		t.Errorf("tool input = %s", resp.Content[1].Input)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
}

func TestStreamMessage_ErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, WithHTTPClient(server.Client()))
	_, err := client.StreamMessage(context.Background(), &MessageRequest{Model: "m"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Type != "overloaded_error" {
		t.Fatalf("expected overloaded APIError, got %v", err)
	}
}

func TestStreamMessage_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","content":[]}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, WithHTTPClient(server.Client()))
	if _, err := client.StreamMessage(context.Background(), &MessageRequest{Model: "m"}); err == nil {
		t.Fatal("expected error for stream without message_stop")
	}
}
