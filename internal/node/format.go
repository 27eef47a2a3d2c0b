package node

import (
	"encoding/json"

	"github.com/hochfrequenz/claude-code-node/internal/anthropic"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/session"
)

// DirectText is the text shape of a direct call
type DirectText struct {
	Result     string          `json:"result"`
	Success    bool            `json:"success"`
	DurationMs int64           `json:"duration_ms"`
	Usage      anthropic.Usage `json:"usage"`
}

// ExchangeMessage is one side of the synthesized direct exchange
type ExchangeMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// DirectMessages is the messages shape of a direct call
type DirectMessages struct {
	Messages     []ExchangeMessage `json:"messages"`
	MessageCount int               `json:"messageCount"`
	Usage        anthropic.Usage   `json:"usage"`
}

// DirectSummary summarizes a direct call
type DirectSummary struct {
	Model      string          `json:"model"`
	Usage      anthropic.Usage `json:"usage"`
	DurationMs int64           `json:"duration_ms"`
}

// DirectStructured is the structured shape of a direct call
type DirectStructured struct {
	Response  *anthropic.MessageResponse `json:"response"`
	Summary   DirectSummary              `json:"summary"`
	Result    string                     `json:"result"`
	Success   bool                       `json:"success"`
	DirectAPI bool                       `json:"direct_api"`
}

// SessionText is the text shape of an agent session
type SessionText struct {
	Result       string   `json:"result"`
	Success      bool     `json:"success"`
	DurationMs   *float64 `json:"duration_ms,omitempty"`
	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`
}

// SessionMessages is the messages shape of an agent session
type SessionMessages struct {
	Messages     []*session.Message `json:"messages"`
	MessageCount int                `json:"messageCount"`
}

// SessionSummary tallies an agent session
type SessionSummary struct {
	UserMessageCount      int      `json:"userMessageCount"`
	AssistantMessageCount int      `json:"assistantMessageCount"`
	ToolUseCount          int      `json:"toolUseCount"`
	HasResult             bool     `json:"hasResult"`
	ToolsAvailable        []string `json:"toolsAvailable"`
}

// SessionMetrics is copied from the session's result message
type SessionMetrics struct {
	DurationMs   *float64        `json:"duration_ms"`
	NumTurns     *int            `json:"num_turns"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	Usage        json.RawMessage `json:"usage"`
}

// SessionStructured is the structured shape of an agent session
type SessionStructured struct {
	Messages   []*session.Message `json:"messages"`
	Summary    SessionSummary     `json:"summary"`
	Result     *string            `json:"result"`
	Metrics    *SessionMetrics    `json:"metrics,omitempty"`
	Success    bool               `json:"success"`
	AuthMethod domain.AuthMethod  `json:"auth_method"`
}

// ErrorRecord replaces a failed record's output in failure-tolerant mode
type ErrorRecord struct {
	Error        string           `json:"error"`
	ErrorType    domain.ErrorKind `json:"errorType"`
	ErrorDetails string           `json:"errorDetails,omitempty"`
	ItemIndex    int              `json:"itemIndex"`
}

func formatDirect(format domain.OutputFormat, prompt string, resp *anthropic.MessageResponse, durationMs int64) any {
	switch format {
	case domain.FormatText:
		return DirectText{
			Result:     resp.FirstText(),
			Success:    true,
			DurationMs: durationMs,
			Usage:      resp.Usage,
		}
	case domain.FormatMessages:
		content := resp.Content
		if content == nil {
			content = []anthropic.ContentBlock{}
		}
		return DirectMessages{
			Messages: []ExchangeMessage{
				{Role: "user", Content: prompt},
				{Role: "assistant", Content: content},
			},
			MessageCount: 2,
			Usage:        resp.Usage,
		}
	default:
		return DirectStructured{
			Response: resp,
			Summary: DirectSummary{
				Model:      resp.Model,
				Usage:      resp.Usage,
				DurationMs: durationMs,
			},
			Result:    resp.FirstText(),
			Success:   true,
			DirectAPI: true,
		}
	}
}

// findResult returns the first result message
func findResult(msgs []*session.Message) *session.Message {
	for _, m := range msgs {
		if m.Type == session.TypeResult {
			return m
		}
	}
	return nil
}

func formatSession(format domain.OutputFormat, auth domain.AuthMethod, msgs []*session.Message) any {
	if msgs == nil {
		msgs = []*session.Message{}
	}
	result := findResult(msgs)

	switch format {
	case domain.FormatText:
		out := SessionText{}
		if result != nil {
			out.Result = result.ResultText()
			out.Success = result.Succeeded()
			out.DurationMs = result.DurationMs
			out.TotalCostUSD = result.TotalCostUSD
		}
		return out
	case domain.FormatMessages:
		return SessionMessages{Messages: msgs, MessageCount: len(msgs)}
	}

	summary := SessionSummary{ToolsAvailable: []string{}}
	for _, m := range msgs {
		switch m.Type {
		case session.TypeUser:
			summary.UserMessageCount++
		case session.TypeAssistant:
			summary.AssistantMessageCount++
			if m.IsToolUse() {
				summary.ToolUseCount++
			}
		}
	}
	if init := findInit(msgs); init != nil && init.Tools != nil {
		summary.ToolsAvailable = init.Tools
	}

	out := SessionStructured{
		Messages:   msgs,
		Summary:    summary,
		AuthMethod: auth,
	}
	if result != nil {
		summary.HasResult = true
		out.Summary = summary
		if text := result.ResultText(); text != "" {
			out.Result = &text
		}
		out.Metrics = &SessionMetrics{
			DurationMs:   result.DurationMs,
			NumTurns:     result.NumTurns,
			TotalCostUSD: result.TotalCostUSD,
			Usage:        result.Usage,
		}
		out.Success = result.Succeeded()
	}
	return out
}

func findInit(msgs []*session.Message) *session.Message {
	for _, m := range msgs {
		if m.Type == session.TypeSystem && m.Subtype == session.SubtypeInit {
			return m
		}
	}
	return nil
}

// Succeeded reports whether the record produced a successful result
func (r ItemReport) Succeeded() bool {
	if r.Err != nil {
		return false
	}
	switch out := r.Output.JSON.(type) {
	case DirectText, DirectMessages, DirectStructured:
		return true
	case SessionText:
		return out.Success
	case SessionStructured:
		return out.Success
	case SessionMessages:
		result := findResult(out.Messages)
		return result != nil && result.Succeeded()
	}
	return false
}
