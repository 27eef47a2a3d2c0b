package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hochfrequenz/claude-code-node/internal/anthropic"
	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
)

var (
	errNoCredentials = errors.New("claudeCodeApi credentials are required for direct API calls")
	errNotAPIKey     = errors.New("direct API calls require apiKey authentication")
)

func directCredentials(host Host, index int) (*credentials.ClaudeCodeAPI, error) {
	cred, err := host.ClaudeCredentials(index)
	if err != nil {
		return nil, errors.Wrap(err, "loading credentials")
	}
	if cred == nil {
		return nil, errNoCredentials
	}
	if !cred.UsesAPIKey() {
		return nil, errNotAPIKey
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return cred, nil
}

func (n *Node) runDirect(ctx context.Context, host Host, index int, p *domain.Parameters, logger *slog.Logger) (outcome, error) {
	cred, err := directCredentials(host, index)
	if err != nil {
		return outcome{}, &domain.ExecutionError{Phase: "direct", Err: err}
	}

	req := &anthropic.MessageRequest{
		Model:       p.Model,
		MaxTokens:   p.MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: p.Prompt}},
		Temperature: p.Temperature,
		System:      p.AdditionalOptions.SystemPrompt,
	}

	client := n.newDirect(cred, logger)
	logger.Info("making direct API call", "model", p.Model, "streaming", p.AdditionalOptions.Streaming)

	start := time.Now()
	var resp *anthropic.MessageResponse
	if p.AdditionalOptions.Streaming {
		resp, err = client.StreamMessage(ctx, req)
	} else {
		resp, err = client.CreateMessage(ctx, req)
	}
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return outcome{}, &domain.ExecutionError{Phase: "direct", Err: errors.Wrap(err, "Direct API call failed")}
	}

	logger.Info("direct API call completed", "duration_ms", durationMs)
	return outcome{json: formatDirect(p.OutputFormat.Normalize(), p.Prompt, resp, durationMs)}, nil
}
