package anthropic

import (
	"encoding/json"
	"fmt"
)

// Message is one conversation turn in a request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest is the body of POST /v1/messages
type MessageRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ContentBlock is one element of a response's content array
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Usage reports token consumption
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// MessageResponse is a complete Messages API response
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// FirstText returns the first content block's text when it is a text block
func (r *MessageResponse) FirstText() string {
	if len(r.Content) == 0 || r.Content[0].Type != "text" {
		return ""
	}
	return r.Content[0].Text
}

// APIError is a non-2xx response or an in-stream error event
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("anthropic %s: %s", e.Type, e.Message)
	}
	if e.Type == "" {
		return fmt.Sprintf("anthropic API returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("anthropic API returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
