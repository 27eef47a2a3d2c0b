package credentials

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hochfrequenz/claude-code-node/internal/schema"
)

// MCPServerName is the credential type name hosts look up
const MCPServerName = "mcpServer"

// ConnectionType is how an MCP server is reached
type ConnectionType string

const (
	ConnectionHTTP      ConnectionType = "http"
	ConnectionWebSocket ConnectionType = "websocket"
	ConnectionStdio     ConnectionType = "stdio"
)

// MCPAuthType is the connection-level authentication for http/websocket servers
type MCPAuthType string

const (
	MCPAuthNone   MCPAuthType = "none"
	MCPAuthBearer MCPAuthType = "bearer"
	MCPAuthAPIKey MCPAuthType = "apikey"
	MCPAuthBasic  MCPAuthType = "basic"
)

const (
	defaultAPIKeyHeader = "X-API-Key"
	defaultTimeoutMs    = 30000
)

// EnvVar is one environment variable passed to a stdio server process
type EnvVar struct {
	Name  string `toml:"name" json:"name"`
	Value string `toml:"value" json:"value"`
}

// MCPServer is the protocol-server credential
type MCPServer struct {
	ConnectionType ConnectionType `toml:"connection_type" json:"connectionType"`
	ServerURL      string         `toml:"server_url" json:"serverUrl,omitempty"`
	Command        string         `toml:"command" json:"command,omitempty"`
	Args           string         `toml:"args" json:"args,omitempty"`
	Cwd            string         `toml:"cwd" json:"cwd,omitempty"`
	AuthType       MCPAuthType    `toml:"auth_type" json:"authType,omitempty"`
	Token          string         `toml:"token" json:"token,omitempty"`
	APIKey         string         `toml:"api_key" json:"apiKey,omitempty"`
	APIKeyHeader   string         `toml:"api_key_header" json:"apiKeyHeader,omitempty"`
	Username       string         `toml:"username" json:"username,omitempty"`
	Password       string         `toml:"password" json:"password,omitempty"`
	TimeoutMs      int            `toml:"timeout" json:"timeout,omitempty"`
	Env            []EnvVar       `toml:"env" json:"env,omitempty"`
}

// Remote reports whether the server is reached over the network
func (s *MCPServer) Remote() bool {
	return s.ConnectionType == ConnectionHTTP || s.ConnectionType == ConnectionWebSocket
}

// ArgList splits the space-separated argument string
func (s *MCPServer) ArgList() []string {
	return strings.Fields(s.Args)
}

// EnvList renders Env as KEY=VALUE pairs, skipping unnamed entries
func (s *MCPServer) EnvList() []string {
	var env []string
	for _, v := range s.Env {
		if v.Name == "" {
			continue
		}
		env = append(env, v.Name+"="+v.Value)
	}
	return env
}

// ConnectTimeout returns the connection timeout
func (s *MCPServer) ConnectTimeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return defaultTimeoutMs * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

func (s *MCPServer) apiKeyHeader() string {
	if s.APIKeyHeader == "" {
		return defaultAPIKeyHeader
	}
	return s.APIKeyHeader
}

// Validate checks the fields required by the connection type
func (s *MCPServer) Validate() error {
	switch s.ConnectionType {
	case ConnectionHTTP, ConnectionWebSocket:
		if strings.TrimSpace(s.ServerURL) == "" {
			return fmt.Errorf("server url is required for %s connections", s.ConnectionType)
		}
	case ConnectionStdio:
		if strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("command is required for stdio connections")
		}
	default:
		return fmt.Errorf("unknown connection type %q", s.ConnectionType)
	}

	switch s.AuthType {
	case "", MCPAuthNone, MCPAuthBearer, MCPAuthAPIKey, MCPAuthBasic:
		return nil
	default:
		return fmt.Errorf("unknown auth type %q", s.AuthType)
	}
}

// Authenticate attaches connection auth headers to h and returns it.
// Only http and websocket connections are shaped.
func (s *MCPServer) Authenticate(h http.Header) http.Header {
	if h == nil {
		h = make(http.Header)
	}
	if !s.Remote() {
		return h
	}

	switch s.AuthType {
	case MCPAuthBearer:
		h.Set("Authorization", "Bearer "+s.Token)
	case MCPAuthAPIKey:
		h.Set(s.apiKeyHeader(), s.APIKey)
	case MCPAuthBasic:
		basic := base64.StdEncoding.EncodeToString([]byte(s.Username + ":" + s.Password))
		h.Set("Authorization", "Basic "+basic)
	}
	return h
}

// MCPServerProperties is the form definition of the MCP server credential
func MCPServerProperties() []schema.Property {
	remote := &schema.DisplayOptions{Show: map[string][]string{"connectionType": {"http", "websocket"}}}
	stdio := &schema.DisplayOptions{Show: map[string][]string{"connectionType": {"stdio"}}}
	authIs := func(v string) *schema.DisplayOptions {
		return &schema.DisplayOptions{Show: map[string][]string{"authType": {v}}}
	}

	return []schema.Property{
		{
			DisplayName: "Connection Type",
			Name:        "connectionType",
			Type:        schema.TypeOptions,
			Options: []schema.Option{
				{Name: "HTTP/HTTPS", Value: string(ConnectionHTTP), Description: "Connect to MCP server via HTTP/HTTPS"},
				{Name: "WebSocket", Value: string(ConnectionWebSocket), Description: "Connect to MCP server via WebSocket"},
				{Name: "Local Process", Value: string(ConnectionStdio), Description: "Launch local MCP server process"},
			},
			Default:     string(ConnectionHTTP),
			Description: "Method to connect to the MCP server",
		},
		{DisplayName: "Server URL", Name: "serverUrl", Type: schema.TypeString, DisplayOptions: remote, Default: "", Required: true,
			Description: "URL of the MCP server", Placeholder: "https://api.example.com/mcp"},
		{DisplayName: "Command", Name: "command", Type: schema.TypeString, DisplayOptions: stdio, Default: "", Required: true,
			Description: "Command to launch the MCP server", Placeholder: "node server.js"},
		{DisplayName: "Arguments", Name: "args", Type: schema.TypeString, DisplayOptions: stdio, Default: "",
			Description: "Command line arguments (space-separated)", Placeholder: "--port 3000 --config config.json"},
		{DisplayName: "Working Directory", Name: "cwd", Type: schema.TypeString, DisplayOptions: stdio, Default: "",
			Description: "Working directory for the MCP server process", Placeholder: "/path/to/mcp/server"},
		{
			DisplayName:    "Authentication",
			Name:           "authType",
			Type:           schema.TypeOptions,
			DisplayOptions: remote,
			Options: []schema.Option{
				{Name: "None", Value: string(MCPAuthNone), Description: "No authentication required"},
				{Name: "Bearer Token", Value: string(MCPAuthBearer), Description: "Bearer token authentication"},
				{Name: "API Key", Value: string(MCPAuthAPIKey), Description: "API key in header"},
				{Name: "Basic Auth", Value: string(MCPAuthBasic), Description: "Basic username/password authentication"},
			},
			Default: string(MCPAuthNone),
		},
		{DisplayName: "Token", Name: "token", Type: schema.TypeString, Password: true, DisplayOptions: authIs("bearer"), Default: "",
			Description: "Bearer token for authentication"},
		{DisplayName: "API Key", Name: "apiKey", Type: schema.TypeString, Password: true, DisplayOptions: authIs("apikey"), Default: "",
			Description: "API key for authentication"},
		{DisplayName: "API Key Header", Name: "apiKeyHeader", Type: schema.TypeString, DisplayOptions: authIs("apikey"), Default: defaultAPIKeyHeader,
			Description: "Header name for the API key"},
		{DisplayName: "Username", Name: "username", Type: schema.TypeString, DisplayOptions: authIs("basic"), Default: "",
			Description: "Username for basic authentication"},
		{DisplayName: "Password", Name: "password", Type: schema.TypeString, Password: true, DisplayOptions: authIs("basic"), Default: "",
			Description: "Password for basic authentication"},
		{DisplayName: "Connection Timeout (ms)", Name: "timeout", Type: schema.TypeNumber, Default: defaultTimeoutMs,
			Description: "Connection timeout in milliseconds"},
		{
			DisplayName:    "Environment Variables",
			Name:           "env",
			Type:           schema.TypeCollection,
			DisplayOptions: stdio,
			Placeholder:    "Add Variable",
			Default:        map[string]any{},
			Description:    "Environment variables for the MCP server process",
			Collection: []schema.Property{
				{DisplayName: "Variable Name", Name: "name", Type: schema.TypeString, Default: ""},
				{DisplayName: "Variable Value", Name: "value", Type: schema.TypeString, Default: ""},
			},
		},
	}
}
