package node

import (
	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/schema"
)

// Name is the node type name registered with hosts
const Name = "claudeCodeEnhanced"

// CredentialRef names a credential type the node can consume
type CredentialRef struct {
	Name           string                 `json:"name"`
	Required       bool                   `json:"required"`
	DisplayOptions *schema.DisplayOptions `json:"displayOptions,omitempty"`
}

// Description is the static node definition hosts render forms from
type Description struct {
	DisplayName string            `json:"displayName"`
	Name        string            `json:"name"`
	Group       []string          `json:"group"`
	Version     int               `json:"version"`
	Subtitle    string            `json:"subtitle"`
	Description string            `json:"description"`
	Credentials []CredentialRef   `json:"credentials"`
	Properties  []schema.Property `json:"properties"`
}

func showFor(field string, values ...string) *schema.DisplayOptions {
	return &schema.DisplayOptions{Show: map[string][]string{field: values}}
}

func hideFor(field string, values ...string) *schema.DisplayOptions {
	return &schema.DisplayOptions{Hide: map[string][]string{field: values}}
}

// Describe returns the node definition. Defaults agree with domain.DefaultParameters.
func Describe() Description {
	d := domain.DefaultParameters()
	directOnly := showFor("operation", string(domain.OperationDirect))
	notDirect := hideFor("operation", string(domain.OperationDirect))

	return Description{
		DisplayName: "Claude Code Enhanced",
		Name:        Name,
		Group:       []string{"transform"},
		Version:     1,
		Subtitle:    `={{$parameter["operation"] + ": " + $parameter["prompt"]}}`,
		Description: "Run Claude Code agent sessions or direct Messages API calls",
		Credentials: []CredentialRef{{
			Name:           credentials.ClaudeCodeAPIName,
			Required:       false,
			DisplayOptions: showFor("authenticationMethod", string(domain.AuthCredentials)),
		}},
		Properties: []schema.Property{
			{
				DisplayName: "Authentication Method",
				Name:        "authenticationMethod",
				Type:        schema.TypeOptions,
				Options: []schema.Option{
					{Name: "Use Credentials", Value: string(domain.AuthCredentials), Description: "Use stored credentials for authentication"},
					{Name: "Use CLI", Value: string(domain.AuthCLI), Description: "Use existing Claude Code CLI authentication"},
				},
				Default:     string(d.AuthenticationMethod),
				Description: "How to authenticate with Claude Code",
			},
			{
				DisplayName:      "Operation",
				Name:             "operation",
				Type:             schema.TypeOptions,
				NoDataExpression: true,
				Options: []schema.Option{
					{
						Name:        "Query",
						Value:       string(domain.OperationQuery),
						Description: "Start a new conversation with Claude Code",
						Action:      "Start a new conversation with claude code",
					},
					{
						Name:        "Continue",
						Value:       string(domain.OperationContinue),
						Description: "Continue a previous conversation (requires prior query)",
						Action:      "Continue a previous conversation requires prior query",
					},
					{
						Name:        "Direct API Call",
						Value:       string(domain.OperationDirect),
						Description: "Make a direct API call (bypasses Claude Code CLI)",
						Action:      "Make a direct API call bypasses claude code cli",
					},
				},
				Default: string(d.Operation),
			},
			{
				DisplayName: "Prompt",
				Name:        "prompt",
				Type:        schema.TypeString,
				Default:     "",
				Description: "The prompt or instruction to send to Claude Code",
				Required:    true,
				Placeholder: `e.g., "Create a Python function to parse CSV files"`,
				Hint:        "Use expressions like {{$json.prompt}} to use data from previous nodes",
			},
			{
				DisplayName: "Model",
				Name:        "model",
				Type:        schema.TypeOptions,
				Options: []schema.Option{
					{Name: "Claude 3 Opus", Value: "claude-3-opus-20240229", Description: "Most capable for complex reasoning"},
					{Name: "Claude 3.5 Haiku", Value: "claude-3-5-haiku-20241022", Description: "Fast and efficient for simpler tasks"},
					{Name: "Claude 3.5 Sonnet", Value: "claude-3-5-sonnet-20241022", Description: "Latest and most capable model"},
					{Name: "Legacy Opus (CLI)", Value: "opus", Description: "Use CLI default model selection"},
					{Name: "Legacy Sonnet (CLI)", Value: "sonnet", Description: "Use CLI default model selection"},
				},
				Default:     d.Model,
				Description: "Claude model to use",
			},
			{
				DisplayName:    "Max Tokens",
				Name:           "maxTokens",
				Type:           schema.TypeNumber,
				Default:        d.MaxTokens,
				Description:    "Maximum number of tokens in the response",
				DisplayOptions: directOnly,
			},
			{
				DisplayName:    "Temperature",
				Name:           "temperature",
				Type:           schema.TypeNumber,
				Default:        d.Temperature,
				Description:    "Controls randomness in the response (0 = deterministic, 1 = creative)",
				DisplayOptions: directOnly,
			},
			{
				DisplayName:    "Max Turns",
				Name:           "maxTurns",
				Type:           schema.TypeNumber,
				Default:        d.MaxTurns,
				Description:    "Maximum number of conversation turns (back-and-forth exchanges) allowed",
				DisplayOptions: notDirect,
			},
			{
				DisplayName: "Timeout",
				Name:        "timeout",
				Type:        schema.TypeNumber,
				Default:     d.Timeout,
				Description: "Maximum time to wait for completion (in seconds) before aborting",
			},
			{
				DisplayName:    "Project Path",
				Name:           "projectPath",
				Type:           schema.TypeString,
				Default:        d.ProjectPath,
				Description:    "The directory path where Claude Code should run. If empty, uses the current working directory.",
				Placeholder:    "/home/user/projects/my-app",
				Hint:           "Sets the working directory for Claude Code so it can access files and run commands in the project",
				DisplayOptions: notDirect,
			},
			{
				DisplayName:      "Output Format",
				Name:             "outputFormat",
				Type:             schema.TypeOptions,
				NoDataExpression: true,
				Options: []schema.Option{
					{Name: "Structured", Value: string(domain.FormatStructured), Description: "Returns a structured object with messages, summary, result, and metrics"},
					{Name: "Messages", Value: string(domain.FormatMessages), Description: "Returns the raw array of all messages exchanged"},
					{Name: "Text", Value: string(domain.FormatText), Description: "Returns only the final result text"},
				},
				Default:     string(d.OutputFormat),
				Description: "Choose how to format the output data",
			},
			{
				DisplayName:    "Allowed Tools",
				Name:           "allowedTools",
				Type:           schema.TypeMultiOptions,
				Options:        toolOptions(),
				Default:        d.AllowedTools,
				Description:    "Select which built-in tools Claude Code is allowed to use during execution",
				DisplayOptions: notDirect,
			},
			{
				DisplayName: "Additional Options",
				Name:        "additionalOptions",
				Type:        schema.TypeCollection,
				Placeholder: "Add Option",
				Default:     map[string]any{},
				Collection: []schema.Property{
					{
						DisplayName: "System Prompt",
						Name:        "systemPrompt",
						Type:        schema.TypeString,
						Default:     "",
						Description: "Additional context or instructions for Claude",
						Placeholder: "You are helping with a Python project. Focus on clean, readable code with proper error handling.",
					},
					{
						DisplayName:    "Require Permissions",
						Name:           "requirePermissions",
						Type:           schema.TypeBoolean,
						Default:        false,
						Description:    "Whether to require permission for tool use",
						DisplayOptions: notDirect,
					},
					{
						DisplayName: "Debug Mode",
						Name:        "debug",
						Type:        schema.TypeBoolean,
						Default:     false,
						Description: "Whether to enable debug logging",
					},
					{
						DisplayName:    "Enable Streaming",
						Name:           "streaming",
						Type:           schema.TypeBoolean,
						Default:        false,
						Description:    "Whether to enable streaming responses (for direct API calls)",
						DisplayOptions: directOnly,
					},
				},
			},
		},
	}
}

func toolOptions() []schema.Option {
	return []schema.Option{
		{Name: "Bash", Value: "Bash", Description: "Execute bash commands"},
		{Name: "Edit", Value: "Edit", Description: "Edit files"},
		{Name: "Exit Plan Mode", Value: "exit_plan_mode", Description: "Exit planning mode"},
		{Name: "Glob", Value: "Glob", Description: "Find files by pattern"},
		{Name: "Grep", Value: "Grep", Description: "Search file contents"},
		{Name: "LS", Value: "LS", Description: "List directory contents"},
		{Name: "MultiEdit", Value: "MultiEdit", Description: "Make multiple edits"},
		{Name: "Notebook Edit", Value: "NotebookEdit", Description: "Edit Jupyter notebooks"},
		{Name: "Notebook Read", Value: "NotebookRead", Description: "Read Jupyter notebooks"},
		{Name: "Read", Value: "Read", Description: "Read file contents"},
		{Name: "Task", Value: "Task", Description: "Launch agents for complex searches"},
		{Name: "Todo Write", Value: "TodoWrite", Description: "Manage todo lists"},
		{Name: "Web Fetch", Value: "WebFetch", Description: "Fetch web content"},
		{Name: "Web Search", Value: "WebSearch", Description: "Search the web"},
		{Name: "Write", Value: "Write", Description: "Write files"},
	}
}
