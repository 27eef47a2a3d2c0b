package domain

import (
	"math"
	"time"
)

// Operation selects the execution path for a record
type Operation string

const (
	OperationQuery    Operation = "query"
	OperationContinue Operation = "continue"
	OperationDirect   Operation = "direct"
)

// Valid reports whether o is a known operation
func (o Operation) Valid() bool {
	switch o {
	case OperationQuery, OperationContinue, OperationDirect:
		return true
	}
	return false
}

// OutputFormat selects how a record's result is shaped
type OutputFormat string

const (
	FormatStructured OutputFormat = "structured"
	FormatMessages   OutputFormat = "messages"
	FormatText       OutputFormat = "text"
)

// Normalize maps unknown formats to the structured default
func (f OutputFormat) Normalize() OutputFormat {
	switch f {
	case FormatMessages, FormatText:
		return f
	default:
		return FormatStructured
	}
}

// AuthMethod is the node-level authentication selector
type AuthMethod string

const (
	AuthCredentials AuthMethod = "credentials"
	AuthCLI         AuthMethod = "cli"
)

// PermissionMode controls whether tool invocations inside a session need approval
type PermissionMode string

const (
	PermissionDefault PermissionMode = "default"
	PermissionBypass  PermissionMode = "bypassPermissions"
)

// DefaultTimeoutSeconds applies when a record carries no usable timeout
const DefaultTimeoutSeconds = 300

// DefaultModel is the model preselected by the node
const DefaultModel = "claude-3-5-sonnet-20241022"

// Options is the node's "additional options" collection
type Options struct {
	SystemPrompt       string `json:"systemPrompt,omitempty"`
	RequirePermissions bool   `json:"requirePermissions,omitempty"`
	Debug              bool   `json:"debug,omitempty"`
	Streaming          bool   `json:"streaming,omitempty"`
}

// Parameters are the resolved node parameters for one input record
type Parameters struct {
	AuthenticationMethod AuthMethod   `json:"authenticationMethod"`
	Operation            Operation    `json:"operation"`
	Prompt               string       `json:"prompt"`
	Model                string       `json:"model"`
	MaxTokens            int          `json:"maxTokens"`
	Temperature          float64      `json:"temperature"`
	MaxTurns             int          `json:"maxTurns"`
	Timeout              int          `json:"timeout"`
	ProjectPath          string       `json:"projectPath"`
	OutputFormat         OutputFormat `json:"outputFormat"`
	AllowedTools         []string     `json:"allowedTools"`
	AdditionalOptions    Options      `json:"additionalOptions"`
}

// DefaultParameters returns the parameter values the node preselects
func DefaultParameters() Parameters {
	return Parameters{
		AuthenticationMethod: AuthCredentials,
		Operation:            OperationQuery,
		Model:                DefaultModel,
		MaxTokens:            4096,
		Temperature:          0,
		MaxTurns:             10,
		Timeout:              DefaultTimeoutSeconds,
		OutputFormat:         FormatStructured,
		AllowedTools:         []string{"WebFetch", "TodoWrite", "WebSearch", "exit_plan_mode", "Task"},
	}
}

// TimeoutSeconds returns the effective timeout, falling back to the default
func (p *Parameters) TimeoutSeconds() int {
	if p.Timeout <= 0 {
		return DefaultTimeoutSeconds
	}
	return p.Timeout
}

// maxTimeoutSeconds is the largest timeout a time.Duration can hold
const maxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// TimeoutDuration returns the effective timeout, capped at the largest
// representable duration
func (p *Parameters) TimeoutDuration() time.Duration {
	secs := int64(p.TimeoutSeconds())
	if secs > maxTimeoutSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

// PermissionMode derives the session permission mode from the options
func (p *Parameters) PermissionMode() PermissionMode {
	if p.AdditionalOptions.RequirePermissions {
		return PermissionDefault
	}
	return PermissionBypass
}

// Item is one input record handed to the node by the host
type Item map[string]any

// OutputItem is one output record, paired with the input record it came from
type OutputItem struct {
	JSON       any `json:"json"`
	PairedItem int `json:"pairedItem"`
}
