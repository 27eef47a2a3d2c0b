package mcp

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
)

// CLIConfig is the document accepted by the CLI's --mcp-config flag
type CLIConfig struct {
	MCPServers map[string]CLIServerConfig `json:"mcpServers"`
}

// CLIServerConfig is the configuration for a single MCP server
type CLIServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// RenderCLIConfig builds the inline --mcp-config JSON for servers. Websocket
// servers cannot be handed to the CLI.
func RenderCLIConfig(servers map[string]*credentials.MCPServer) (string, error) {
	if len(servers) == 0 {
		return "", nil
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	cfg := CLIConfig{MCPServers: make(map[string]CLIServerConfig, len(servers))}
	for _, name := range names {
		srv := servers[name]
		if err := srv.Validate(); err != nil {
			return "", errors.Wrapf(err, "mcp server %s", name)
		}

		switch srv.ConnectionType {
		case credentials.ConnectionStdio:
			sc := CLIServerConfig{
				Type:    "stdio",
				Command: srv.Command,
				Args:    srv.ArgList(),
			}
			if len(srv.Env) > 0 {
				sc.Env = make(map[string]string, len(srv.Env))
				for _, v := range srv.Env {
					if v.Name != "" {
						sc.Env[v.Name] = v.Value
					}
				}
			}
			cfg.MCPServers[name] = sc
		case credentials.ConnectionHTTP:
			cfg.MCPServers[name] = CLIServerConfig{
				Type:    "http",
				URL:     srv.ServerURL,
				Headers: flattenHeader(srv.Authenticate(nil)),
			}
		default:
			return "", errors.Errorf("mcp server %s: %s connections are not supported by the CLI", name, srv.ConnectionType)
		}
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "encoding mcp config")
	}
	return string(data), nil
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
