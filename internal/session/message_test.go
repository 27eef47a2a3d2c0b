package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
)

func TestParseMessage_Result(t *testing.T) {
	line := []byte(`{"type":"result","subtype":"success","result":"done","duration_ms":1234,"num_turns":2,"total_cost_usd":0.01,"usage":{"input_tokens":10}}`)
	m, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if m.Type != TypeResult || !m.Succeeded() {
		t.Errorf("Type = %q, Subtype = %q", m.Type, m.Subtype)
	}
	if m.ResultText() != "done" {
		t.Errorf("ResultText() = %q", m.ResultText())
	}
	if m.DurationMs == nil || *m.DurationMs != 1234 {
		t.Errorf("DurationMs = %v", m.DurationMs)
	}
	if m.NumTurns == nil || *m.NumTurns != 2 {
		t.Errorf("NumTurns = %v", m.NumTurns)
	}
	if m.TotalCostUSD == nil || *m.TotalCostUSD != 0.01 {
		t.Errorf("TotalCostUSD = %v", m.TotalCostUSD)
	}
	if string(m.Usage) != `{"input_tokens":10}` {
		t.Errorf("Usage = %s", m.Usage)
	}
}

func TestParseMessage_ErrorFallback(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"result","subtype":"error_max_turns","error":"too many turns"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Succeeded() {
		t.Error("error_max_turns should not count as success")
	}
	if m.ResultText() != "too many turns" {
		t.Errorf("ResultText() = %q", m.ResultText())
	}
	if m.DurationMs != nil || m.NumTurns != nil {
		t.Error("absent metrics should stay nil")
	}
}

func TestParseMessage_ToolUse(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsToolUse() {
		t.Error("expected tool use")
	}

	text, _ := ParseMessage([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`))
	if text.IsToolUse() {
		t.Error("text block is not a tool use")
	}
	user, _ := ParseMessage([]byte(`{"type":"user","message":{"content":[{"type":"tool_use"}]}}`))
	if user.IsToolUse() {
		t.Error("only assistant messages count as tool use")
	}
}

func TestParseMessage_MismatchedFieldsDegrade(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"assistant","message":{"content":"plain string"},"tools":"nope","duration_ms":"slow"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(m.Content) != 0 || len(m.Tools) != 0 || m.DurationMs != nil {
		t.Errorf("mismatched fields should be absent: %+v", m)
	}
	if _, ok := m.FirstBlock(); ok {
		t.Error("FirstBlock() should report no block")
	}
}

func TestParseMessage_NotJSON(t *testing.T) {
	if _, err := ParseMessage([]byte("Loading...")); err == nil {
		t.Error("expected error for non-JSON line")
	}
}

func TestMessage_MarshalVerbatim(t *testing.T) {
	line := `{"type":"system","subtype":"init","tools":["Bash","Read"],"session_id":"abc","extra":{"nested":true}}`
	m, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Tools) != 2 || m.Subtype != SubtypeInit {
		t.Errorf("Tools = %v, Subtype = %q", m.Tools, m.Subtype)
	}

	out, err := json.Marshal([]*Message{m})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "["+line+"]" {
		t.Errorf("Marshal = %s", out)
	}
}

func TestSliceSession(t *testing.T) {
	a, _ := ParseMessage([]byte(`{"type":"system"}`))
	b, _ := ParseMessage([]byte(`{"type":"result","subtype":"success","result":"ok"}`))
	s := &SliceSession{Messages: []*Message{a, b}}
	ctx := context.Background()

	for _, want := range []MessageType{TypeSystem, TypeResult} {
		m, err := s.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if m.Type != want {
			t.Errorf("Type = %q, want %q", m.Type, want)
		}
	}
	if _, err := s.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestSliceSession_Cancelled(t *testing.T) {
	cause := errors.New("deadline")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	s := &SliceSession{Messages: []*Message{{Type: TypeSystem}}}
	if _, err := s.Next(ctx); !errors.Is(err, cause) {
		t.Errorf("expected cancel cause, got %v", err)
	}
}

func TestModelAliases_Defaults(t *testing.T) {
	aliases := DefaultModelAliases()
	tests := []struct {
		model string
		want  string
	}{
		{"claude-3-opus-20240229", "sonnet"},
		{"claude-3-5-sonnet-20241022", "sonnet"},
		{"claude-3-5-haiku-20241022", "sonnet"},
		{"claude-sonnet-4-20250514", "sonnet"},
		{"opus", "opus"},
		{"gpt-4o", "gpt-4o"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := aliases.Resolve(tt.model); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestModelAliases_Merge(t *testing.T) {
	aliases := DefaultModelAliases()
	merged := aliases.Merge(map[string]string{
		"claude-3-opus-20240229":    "opus",
		"claude-opus-*":             "opus",
		"claude-3-5-haiku-20241022": "",
	})

	tests := []struct {
		model string
		want  string
	}{
		{"claude-3-opus-20240229", "opus"},
		{"claude-opus-4-1", "opus"},
		{"claude-sonnet-4-20250514", "sonnet"},
		{"claude-3-5-haiku-20241022", "claude-3-5-haiku-20241022"},
	}
	for _, tt := range tests {
		if got := merged.Resolve(tt.model); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}

	if _, ok := aliases["claude-opus-*"]; ok {
		t.Error("Merge must not modify the receiver")
	}
}

func TestModelAliases_EmptyTablePassesThrough(t *testing.T) {
	if got := (ModelAliases{}).Resolve("claude-3-5-haiku-20241022"); got != "claude-3-5-haiku-20241022" {
		t.Errorf("Resolve() = %q", got)
	}
}
