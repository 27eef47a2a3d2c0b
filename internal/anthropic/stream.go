package anthropic

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// streamEvent covers the fields of every Messages stream event type
type streamEvent struct {
	Type         string           `json:"type"`
	Index        int              `json:"index"`
	Message      *MessageResponse `json:"message,omitempty"`
	ContentBlock *ContentBlock    `json:"content_block,omitempty"`
	Delta        *struct {
		Type         string  `json:"type"`
		Text         string  `json:"text"`
		PartialJSON  string  `json:"partial_json"`
		StopReason   string  `json:"stop_reason"`
		StopSequence *string `json:"stop_sequence"`
	} `json:"delta,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// assembleStream folds an SSE body into a MessageResponse
func assembleStream(r io.Reader) (*MessageResponse, error) {
	var (
		resp     = &MessageResponse{}
		partials = map[int]*strings.Builder{}
		done     bool
	)

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, errors.Wrap(err, "decode stream event")
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				*resp = *ev.Message
				resp.Content = nil
			}
		case "content_block_start":
			if ev.ContentBlock == nil {
				continue
			}
			for len(resp.Content) <= ev.Index {
				resp.Content = append(resp.Content, ContentBlock{})
			}
			resp.Content[ev.Index] = *ev.ContentBlock
		case "content_block_delta":
			if ev.Delta == nil || ev.Index >= len(resp.Content) {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				resp.Content[ev.Index].Text += ev.Delta.Text
			case "input_json_delta":
				b, ok := partials[ev.Index]
				if !ok {
					b = &strings.Builder{}
					partials[ev.Index] = b
				}
				b.WriteString(ev.Delta.PartialJSON)
			}
		case "content_block_stop":
			if b, ok := partials[ev.Index]; ok && b.Len() > 0 && ev.Index < len(resp.Content) {
				resp.Content[ev.Index].Input = json.RawMessage(b.String())
			}
		case "message_delta":
			if ev.Delta != nil {
				resp.StopReason = ev.Delta.StopReason
				resp.StopSequence = ev.Delta.StopSequence
			}
			if ev.Usage != nil {
				resp.Usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			done = true
		case "error":
			apiErr := &APIError{Type: "stream_error", Message: "unknown stream error"}
			if ev.Error != nil {
				apiErr.Type = ev.Error.Type
				apiErr.Message = ev.Error.Message
			}
			return nil, errors.WithStack(apiErr)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read stream")
	}
	if !done {
		return nil, errors.New("stream ended before message_stop")
	}
	return resp, nil
}
