// Package mcp is a minimal Model Context Protocol client used to verify MCP
// server credentials and to hand servers to agent sessions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
)

// ProtocolVersion is the MCP revision sent on initialize
const ProtocolVersion = "2024-11-05"

// ClientName identifies this client to servers
const ClientName = "claude-code-node"

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCNotification is a request without an id
type JSONRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ServerInfo is returned by initialize
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's answer to initialize
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
}

// Tool is one tool advertised by tools/list
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCallParams are the params for the tools/call method
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the result of a tool call
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolContent represents content in a tool result
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Transport carries encoded JSON-RPC messages to a server
type Transport interface {
	// Call sends a request and returns the matching response
	Call(ctx context.Context, id int64, req []byte) ([]byte, error)
	// Notify sends a message that has no response
	Notify(ctx context.Context, msg []byte) error
	Close() error
}

// Client is an MCP client that communicates with an MCP server via JSON-RPC
type Client struct {
	transport Transport
	mu        sync.Mutex
	nextID    int64
}

// NewClient wraps an established transport
func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

// Connect opens a transport for srv and performs the initialize handshake
// within the credential's connection timeout
func Connect(ctx context.Context, srv *credentials.MCPServer) (*Client, *InitializeResult, error) {
	if err := srv.Validate(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, srv.ConnectTimeout())
	defer cancel()

	var (
		t   Transport
		err error
	)
	switch srv.ConnectionType {
	case credentials.ConnectionStdio:
		t, err = NewStdioTransport(srv.Command, srv.ArgList(), srv.EnvList(), srv.Cwd)
	case credentials.ConnectionWebSocket:
		t, err = DialWebSocket(ctx, srv.ServerURL, srv.Authenticate(nil))
	case credentials.ConnectionHTTP:
		t = NewHTTPTransport(srv.ServerURL, srv.Authenticate(nil), nil)
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "connecting to MCP server")
	}

	client := NewClient(t)
	info, err := client.Initialize(ctx)
	if err != nil {
		client.Close()
		return nil, nil, errors.Wrap(err, "failed to initialize MCP connection")
	}
	return client, info, nil
}

// Initialize sends the initialize request followed by the initialized notification
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    ClientName,
			"version": "1.0.0",
		},
	}

	result, err := c.call(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}
	var info InitializeResult
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal initialize result")
	}

	if err := c.notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListTools returns the tools the server advertises
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var list struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tools list")
	}
	return list.Tools, nil
}

// CallTool calls an MCP tool and returns the result
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolResult, error) {
	result, err := c.call(ctx, "tools/call", ToolCallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	var toolResult ToolResult
	if err := json.Unmarshal(result, &toolResult); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tool result")
	}
	return &toolResult, nil
}

// call sends a JSON-RPC request and waits for the response
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddInt64(&c.nextID, 1)
	data, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	raw, err := c.transport.Call(ctx, id, data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", method)
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// notify sends a JSON-RPC notification (no response expected)
func (c *Client) notify(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(JSONRPCNotification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification")
	}
	return c.transport.Notify(ctx, data)
}

// Close shuts down the MCP client
func (c *Client) Close() error {
	return c.transport.Close()
}

// responseID extracts the id of a response, reporting false for server
// requests and notifications
func responseID(msg []byte) (int64, bool) {
	var probe struct {
		ID     *int64  `json:"id"`
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil || probe.ID == nil || probe.Method != nil {
		return 0, false
	}
	return *probe.ID, true
}
