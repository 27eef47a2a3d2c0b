package node

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/mcp"
	"github.com/hochfrequenz/claude-code-node/internal/session"
)

const traceTextLen = 100

func (n *Node) queryOptions(host Host, index int, p *domain.Parameters, logger *slog.Logger) (session.QueryOptions, error) {
	opts := session.QueryOptions{
		Prompt:         p.Prompt,
		Cwd:            strings.TrimSpace(p.ProjectPath),
		MaxTurns:       p.MaxTurns,
		PermissionMode: p.PermissionMode(),
		Model:          n.aliases.Resolve(p.Model),
		SystemPrompt:   p.AdditionalOptions.SystemPrompt,
		Continue:       p.Operation == domain.OperationContinue,
	}
	if len(p.AllowedTools) > 0 {
		opts.AllowedTools = p.AllowedTools
	}

	mcpConfig, err := mcp.RenderCLIConfig(host.MCPServers())
	if err != nil {
		return opts, err
	}
	opts.MCPConfig = mcpConfig

	if p.AuthenticationMethod == domain.AuthCredentials {
		opts.Env = sessionEnv(host, index, logger)
	}
	return opts, nil
}

// sessionEnv hands an API-key credential to the CLI. Missing credentials
// leave the CLI on its own authentication.
func sessionEnv(host Host, index int, logger *slog.Logger) []string {
	cred, err := host.ClaudeCredentials(index)
	if err != nil {
		logger.Info("credentials unavailable, using CLI authentication", "error", err)
		return nil
	}
	if cred == nil || !cred.UsesAPIKey() || strings.TrimSpace(cred.APIKey) == "" {
		return nil
	}

	env := []string{"ANTHROPIC_API_KEY=" + cred.APIKey}
	if base := cred.ResolvedBaseURL(); base != credentials.DefaultBaseURL {
		env = append(env, "ANTHROPIC_BASE_URL="+base)
	}
	return env
}

func (n *Node) runSession(ctx context.Context, host Host, index int, p *domain.Parameters, logger *slog.Logger) (outcome, error) {
	opts, err := n.queryOptions(host, index, p, logger)
	if err != nil {
		return outcome{}, &domain.ExecutionError{Phase: "session", Err: err}
	}
	logger.Info("starting session",
		"auth_method", p.AuthenticationMethod,
		"model", opts.Model,
		"cwd", opts.Cwd,
		"continue", opts.Continue)

	start := time.Now()
	sess, err := n.launcher.Query(ctx, opts)
	if err != nil {
		return outcome{}, &domain.ExecutionError{Phase: "session", Err: err}
	}
	defer sess.Close()

	var msgs []*session.Message
	for {
		msg, err := sess.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return outcome{}, &domain.ExecutionError{Phase: "session", Err: err}
		}
		msgs = append(msgs, msg)
		traceMessage(logger, msg)
	}

	logger.Info("session completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"messages", len(msgs))

	out := outcome{json: formatSession(p.OutputFormat.Normalize(), p.AuthenticationMethod, msgs)}
	if result := findResult(msgs); result != nil && result.TotalCostUSD != nil {
		out.costUSD = *result.TotalCostUSD
	}
	return out, nil
}

func traceMessage(logger *slog.Logger, msg *session.Message) {
	if msg.Type != session.TypeAssistant {
		return
	}
	block, ok := msg.FirstBlock()
	if !ok {
		return
	}
	switch block.Type {
	case "text":
		logger.Info("assistant", "text", runePrefix(block.Text, traceTextLen)+"...")
	case "tool_use":
		logger.Info("tool use", "tool", block.Name)
	}
}

// runePrefix returns the first n characters of s
func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
