// Package session drives a coding-assistant agent session and exposes its
// output as a lazy, finite, non-restartable sequence of messages.
package session

import (
	"context"
	"io"

	"github.com/hochfrequenz/claude-code-node/internal/domain"
)

// QueryOptions configures one agent session
type QueryOptions struct {
	Prompt string
	// Cwd is the session working directory; empty inherits the process cwd
	Cwd            string
	MaxTurns       int
	PermissionMode domain.PermissionMode
	Model          string
	SystemPrompt   string
	// AllowedTools is only forwarded when non-empty
	AllowedTools []string
	// Continue resumes the most recent session state held by the CLI
	Continue bool
	// MCPConfig is an inline --mcp-config JSON document
	MCPConfig string
	// Env is appended to the inherited environment as KEY=VALUE pairs
	Env []string
}

// Session yields messages in arrival order. Next returns io.EOF once the
// sequence is exhausted; a session cannot be restarted.
type Session interface {
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// Launcher starts sessions. Cancelling ctx aborts the session.
type Launcher interface {
	Query(ctx context.Context, opts QueryOptions) (Session, error)
}

// SliceSession replays a fixed message list; hosts and tests use it to
// feed recorded sessions through the node
type SliceSession struct {
	Messages []*Message
	// Err is returned after the messages are exhausted instead of io.EOF
	Err error
	pos int
}

func (s *SliceSession) Next(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	if s.pos >= len(s.Messages) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	m := s.Messages[s.pos]
	s.pos++
	return m, nil
}

func (s *SliceSession) Close() error { return nil }
