// Package credentials defines the credential types the node consumes and the
// header shaping each one applies to outbound requests.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/hochfrequenz/claude-code-node/internal/schema"
)

const (
	// ClaudeCodeAPIName is the credential type name hosts look up
	ClaudeCodeAPIName = "claudeCodeApi"

	DefaultBaseURL = "https://api.anthropic.com"
	APIVersion     = "2023-06-01"

	testModel = "claude-3-sonnet-20240229"
)

// ClaudeAuthMethod selects how the LLM API credential authenticates
type ClaudeAuthMethod string

const (
	AuthAPIKey ClaudeAuthMethod = "apiKey"
	// AuthCLI defers to a CLI session authenticated out-of-band ("claude auth login")
	AuthCLI ClaudeAuthMethod = "cli"
)

// ErrMissingAPIKey is returned when an API-key credential has no key
var ErrMissingAPIKey = errors.New("api key is required for apiKey authentication")

// Doer sends HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClaudeCodeAPI is the LLM API credential
type ClaudeCodeAPI struct {
	AuthMethod     ClaudeAuthMethod `toml:"auth_method" json:"authMethod"`
	APIKey         string           `toml:"api_key" json:"apiKey,omitempty"`
	OrganizationID string           `toml:"organization_id" json:"organizationId,omitempty"`
	BaseURL        string           `toml:"base_url" json:"baseUrl,omitempty"`
}

// UsesAPIKey reports whether requests must carry the key headers. An unset
// AuthMethod counts as apiKey, the property's default value.
func (c *ClaudeCodeAPI) UsesAPIKey() bool {
	return c.AuthMethod == "" || c.AuthMethod == AuthAPIKey
}

// ResolvedBaseURL returns the API base URL without a trailing slash
func (c *ClaudeCodeAPI) ResolvedBaseURL() string {
	if strings.TrimSpace(c.BaseURL) == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

// Validate checks the fields required by the selected auth method
func (c *ClaudeCodeAPI) Validate() error {
	switch c.AuthMethod {
	case "", AuthAPIKey:
		if strings.TrimSpace(c.APIKey) == "" {
			return ErrMissingAPIKey
		}
	case AuthCLI:
	default:
		return fmt.Errorf("unknown auth method %q", c.AuthMethod)
	}
	return nil
}

// Authenticate attaches the credential's headers to h and returns it.
// CLI authentication leaves h untouched.
func (c *ClaudeCodeAPI) Authenticate(h http.Header) http.Header {
	if h == nil {
		h = make(http.Header)
	}
	if !c.UsesAPIKey() {
		return h
	}
	h.Set("Authorization", "Bearer "+c.APIKey)
	h.Set("Content-Type", "application/json")
	h.Set("anthropic-version", APIVersion)
	if c.OrganizationID != "" {
		h.Set("anthropic-organization", c.OrganizationID)
	}
	return h
}

// Test sends a minimal Messages request to verify the credential works
func (c *ClaudeCodeAPI) Test(ctx context.Context, doer Doer) error {
	if !c.UsesAPIKey() {
		return errors.New("cli authentication cannot be tested over HTTP")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"model":      testModel,
		"max_tokens": 10,
		"messages":   []map[string]string{{"role": "user", "content": "Hello"}},
	})
	if err != nil {
		return errors.Wrap(err, "marshal test request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ResolvedBaseURL()+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build test request")
	}
	c.Authenticate(req.Header)

	resp, err := doer.Do(req)
	if err != nil {
		return errors.Wrap(err, "credential test request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("credential test failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// ClaudeCodeAPIProperties is the form definition of the LLM API credential
func ClaudeCodeAPIProperties() []schema.Property {
	apiKeyOnly := &schema.DisplayOptions{Show: map[string][]string{"authMethod": {string(AuthAPIKey)}}}
	return []schema.Property{
		{
			DisplayName: "Authentication Method",
			Name:        "authMethod",
			Type:        schema.TypeOptions,
			Options: []schema.Option{
				{Name: "API Key", Value: string(AuthAPIKey), Description: "Use Anthropic API key for authentication"},
				{Name: "CLI Authentication", Value: string(AuthCLI), Description: "Use existing Claude Code CLI authentication"},
			},
			Default:     string(AuthAPIKey),
			Description: "Select the authentication method to use",
		},
		{
			DisplayName:    "API Key",
			Name:           "apiKey",
			Type:           schema.TypeString,
			Password:       true,
			DisplayOptions: apiKeyOnly,
			Default:        "",
			Description:    "Your Anthropic API key",
			Placeholder:    "sk-ant-...",
		},
		{
			DisplayName:    "Organization ID",
			Name:           "organizationId",
			Type:           schema.TypeString,
			DisplayOptions: apiKeyOnly,
			Default:        "",
			Description:    "Optional organization ID for team usage",
			Placeholder:    "org-...",
		},
		{
			DisplayName:    "Base URL",
			Name:           "baseUrl",
			Type:           schema.TypeString,
			DisplayOptions: apiKeyOnly,
			Default:        DefaultBaseURL,
			Description:    "Base URL for the Anthropic API (for custom endpoints)",
		},
		{
			DisplayName:    "CLI Authentication Info",
			Name:           "cliInfo",
			Type:           schema.TypeNotice,
			Default:        "",
			DisplayOptions: &schema.DisplayOptions{Show: map[string][]string{"authMethod": {string(AuthCLI)}}},
			Description:    `When using CLI authentication, make sure Claude Code CLI is installed and authenticated on the host with "claude auth login"`,
		},
	}
}
