// Package node implements the Claude Code execution node: for every input
// record it either calls the Messages API directly or drains a CLI agent
// session, then reshapes the outcome into the requested output format.
package node

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hochfrequenz/claude-code-node/internal/anthropic"
	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/session"
)

// Host supplies the node with records, resolved parameters and credentials
type Host interface {
	InputItems() []domain.Item
	Parameters(itemIndex int) (domain.Parameters, error)
	// ClaudeCredentials returns nil without error when none are configured
	ClaudeCredentials(itemIndex int) (*credentials.ClaudeCodeAPI, error)
	MCPServers() map[string]*credentials.MCPServer
	ContinueOnFail() bool
}

// DirectClient performs Messages API exchanges; *anthropic.Client satisfies it
type DirectClient interface {
	CreateMessage(ctx context.Context, req *anthropic.MessageRequest) (*anthropic.MessageResponse, error)
	StreamMessage(ctx context.Context, req *anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

// DirectClientFactory builds a client for one record's credentials
type DirectClientFactory func(cred *credentials.ClaudeCodeAPI, logger *slog.Logger) DirectClient

// DefaultDirectClient creates an anthropic.Client against the credential's base URL
func DefaultDirectClient(cred *credentials.ClaudeCodeAPI, logger *slog.Logger) DirectClient {
	return anthropic.NewClient(cred.ResolvedBaseURL(), cred, anthropic.WithLogger(logger))
}

// ItemReport describes one finished record
type ItemReport struct {
	Index        int
	Operation    domain.Operation
	Model        string
	OutputFormat domain.OutputFormat
	Output       domain.OutputItem
	Err          error
	Duration     time.Duration
	CostUSD      float64
}

// Observer is told about every record as soon as it finishes
type Observer interface {
	ItemCompleted(r ItemReport)
}

// Node executes records sequentially
type Node struct {
	launcher  session.Launcher
	newDirect DirectClientFactory
	aliases   session.ModelAliases
	logger    *slog.Logger
	observer  Observer
}

// Option configures a Node
type Option func(*Node)

// WithLauncher sets the session launcher used by query and continue
func WithLauncher(l session.Launcher) Option {
	return func(n *Node) { n.launcher = l }
}

// WithDirectClientFactory replaces the Messages API client constructor
func WithDirectClientFactory(f DirectClientFactory) Option {
	return func(n *Node) { n.newDirect = f }
}

// WithModelAliases sets the API-model to CLI-model table
func WithModelAliases(a session.ModelAliases) Option {
	return func(n *Node) { n.aliases = a }
}

// WithLogger sets the logger for debug traces
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithObserver registers an observer for finished records
func WithObserver(o Observer) Option {
	return func(n *Node) { n.observer = o }
}

// New creates a node
func New(opts ...Option) *Node {
	n := &Node{
		newDirect: DefaultDirectClient,
		aliases:   session.DefaultModelAliases(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.launcher == nil {
		n.launcher = session.NewCLILauncher("", n.logger)
	}
	return n
}

// outcome is a record's shaped output plus what hosts record about it
type outcome struct {
	json    any
	costUSD float64
}

// Execute runs every input record in order. With ContinueOnFail a failed
// record yields an ErrorRecord and the loop moves on; otherwise the first
// fault aborts with an *domain.OperationError.
func (n *Node) Execute(ctx context.Context, host Host) ([]domain.OutputItem, error) {
	items := host.InputItems()
	results := make([]domain.OutputItem, 0, len(items))

	for i := range items {
		start := time.Now()
		timeout := domain.DefaultTimeoutSeconds

		params, err := host.Parameters(i)
		var out outcome
		if err == nil {
			timeout = params.TimeoutSeconds()
			out, err = n.executeItem(ctx, host, i, &params)
		} else {
			err = &domain.ExecutionError{Phase: "parameters", Err: err}
		}

		report := ItemReport{
			Index:        i,
			Operation:    params.Operation,
			Model:        params.Model,
			OutputFormat: params.OutputFormat.Normalize(),
			Err:          err,
			Duration:     time.Since(start),
			CostUSD:      out.costUSD,
		}

		if err != nil {
			if !host.ContinueOnFail() {
				n.notify(report)
				return nil, operationError(i, timeout, err)
			}
			report.Output = domain.OutputItem{
				JSON: ErrorRecord{
					Error:        err.Error(),
					ErrorType:    domain.Classify(err),
					ErrorDetails: domain.ErrorDetails(err),
					ItemIndex:    i,
				},
				PairedItem: i,
			}
		} else {
			report.Output = domain.OutputItem{JSON: out.json, PairedItem: i}
		}

		n.notify(report)
		results = append(results, report.Output)
	}
	return results, nil
}

func (n *Node) notify(r ItemReport) {
	if n.observer != nil {
		n.observer.ItemCompleted(r)
	}
}

func operationError(index, timeout int, err error) *domain.OperationError {
	msg := err.Error()
	op := &domain.OperationError{ItemIndex: index, Description: msg, Err: err}
	if domain.Classify(err) == domain.KindTimeout {
		op.Message = fmt.Sprintf("Operation timed out after %d seconds. Consider increasing the timeout in Additional Options.", timeout)
	} else {
		op.Message = "Claude Code execution failed: " + msg
	}
	return op
}

// itemLogger returns the trace logger for a record; traces are only emitted
// when the record enables debug
func (n *Node) itemLogger(p *domain.Parameters, index int) *slog.Logger {
	if !p.AdditionalOptions.Debug {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return n.logger.With("node", Name, "item", index)
}

func (n *Node) executeItem(ctx context.Context, host Host, index int, p *domain.Parameters) (outcome, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return outcome{}, domain.NewValidationError("prompt", domain.ErrEmptyPrompt)
	}
	if !p.Operation.Valid() {
		return outcome{}, domain.NewValidationError("operation",
			fmt.Errorf("%w %q", domain.ErrUnknownOperation, p.Operation))
	}

	logger := n.itemLogger(p, index)
	logger.Info("starting execution",
		"operation", p.Operation,
		"auth_method", p.AuthenticationMethod,
		"model", p.Model)

	timeout := p.TimeoutDuration()
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, domain.ErrSessionTimeout)
	defer cancel()

	var (
		out outcome
		err error
	)
	if p.Operation == domain.OperationDirect {
		out, err = n.runDirect(ctx, host, index, p, logger)
	} else {
		out, err = n.runSession(ctx, host, index, p, logger)
	}

	if err != nil && errors.Is(context.Cause(ctx), domain.ErrSessionTimeout) {
		return outcome{}, errors.WithStack(&domain.TimeoutError{Timeout: timeout, Err: err})
	}
	return out, err
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(r ItemReport)

func (f ObserverFunc) ItemCompleted(r ItemReport) { f(r) }
