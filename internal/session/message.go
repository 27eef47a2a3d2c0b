package session

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MessageType is the top-level discriminator of a stream-json line
type MessageType string

const (
	TypeSystem    MessageType = "system"
	TypeUser      MessageType = "user"
	TypeAssistant MessageType = "assistant"
	TypeResult    MessageType = "result"
)

const (
	SubtypeInit    = "init"
	SubtypeSuccess = "success"
)

// ContentBlock is one element of a user or assistant message's content
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// Message is one unit emitted by an agent session. The payload schema belongs
// to the CLI; only the discriminators and a few known fields are decoded, and
// anything that does not match degrades to absent. The original line is kept
// and re-emitted verbatim by MarshalJSON.
type Message struct {
	Type    MessageType
	Subtype string

	Result       string
	Error        string
	DurationMs   *float64
	TotalCostUSD *float64
	NumTurns     *int
	Usage        json.RawMessage
	Tools        []string
	Content      []ContentBlock

	raw json.RawMessage
}

// wireMessage mirrors the known fields; loosely typed ones stay raw so a
// shape mismatch only drops that field
type wireMessage struct {
	Type         MessageType     `json:"type"`
	Subtype      string          `json:"subtype"`
	Result       json.RawMessage `json:"result"`
	Error        json.RawMessage `json:"error"`
	DurationMs   json.RawMessage `json:"duration_ms"`
	TotalCostUSD json.RawMessage `json:"total_cost_usd"`
	NumTurns     json.RawMessage `json:"num_turns"`
	Usage        json.RawMessage `json:"usage"`
	Tools        json.RawMessage `json:"tools"`
	Message      *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// ParseMessage decodes one stream-json line. It fails only when the line is
// not a JSON object.
func ParseMessage(line []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, errors.Wrap(err, "decode session message")
	}

	raw := make(json.RawMessage, len(line))
	copy(raw, line)

	m := &Message{
		Type:    w.Type,
		Subtype: w.Subtype,
		Usage:   nonNull(w.Usage),
		raw:     raw,
	}
	decodeInto(w.Result, &m.Result)
	decodeInto(w.Error, &m.Error)

	var f float64
	if decodeInto(w.DurationMs, &f) {
		m.DurationMs = &f
	}
	var cost float64
	if decodeInto(w.TotalCostUSD, &cost) {
		m.TotalCostUSD = &cost
	}
	var turns int
	if decodeInto(w.NumTurns, &turns) {
		m.NumTurns = &turns
	}
	decodeInto(w.Tools, &m.Tools)
	if w.Message != nil {
		decodeInto(w.Message.Content, &m.Content)
	}
	return m, nil
}

func decodeInto(raw json.RawMessage, target any) bool {
	if len(nonNull(raw)) == 0 {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// MarshalJSON re-emits the message exactly as the session produced it
func (m *Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) == 0 {
		return json.Marshal(map[string]any{"type": m.Type, "subtype": m.Subtype})
	}
	return m.raw, nil
}

// UnmarshalJSON allows messages to round-trip through hosts
func (m *Message) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMessage(data)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

// FirstBlock returns the first content block, if any
func (m *Message) FirstBlock() (ContentBlock, bool) {
	if len(m.Content) == 0 {
		return ContentBlock{}, false
	}
	return m.Content[0], true
}

// IsToolUse reports whether this is an assistant message opening with a tool call
func (m *Message) IsToolUse() bool {
	if m.Type != TypeAssistant {
		return false
	}
	b, ok := m.FirstBlock()
	return ok && b.Type == "tool_use"
}

// ResultText returns the result text, falling back to the error text
func (m *Message) ResultText() string {
	if m.Result != "" {
		return m.Result
	}
	return m.Error
}

// Succeeded reports whether a result message has subtype "success"
func (m *Message) Succeeded() bool {
	return m.Type == TypeResult && m.Subtype == SubtypeSuccess
}
