// Package host is the reference workflow host: it loads records and
// parameters from files, resolves per-record parameters and hands the node
// the credentials from configuration.
package host

import (
	"encoding/json"
	"maps"

	"github.com/pkg/errors"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
)

// Static serves a fixed set of records. Any item key named like a parameter
// overrides the base parameters for that record; "additionalOptions" is merged
// key by key.
type Static struct {
	Items           []domain.Item
	Base            domain.Parameters
	Claude          *credentials.ClaudeCodeAPI
	Servers         map[string]*credentials.MCPServer
	FailureTolerant bool
}

var parameterKeys = map[string]bool{
	"authenticationMethod": true,
	"operation":            true,
	"prompt":               true,
	"model":                true,
	"maxTokens":            true,
	"temperature":          true,
	"maxTurns":             true,
	"timeout":              true,
	"projectPath":          true,
	"outputFormat":         true,
	"allowedTools":         true,
	"additionalOptions":    true,
}

func (h *Static) InputItems() []domain.Item { return h.Items }

// Parameters resolves the parameters of record i
func (h *Static) Parameters(i int) (domain.Parameters, error) {
	if i < 0 || i >= len(h.Items) {
		return domain.Parameters{}, errors.Errorf("item %d out of range", i)
	}
	return Overlay(h.Base, h.Items[i])
}

func (h *Static) ClaudeCredentials(int) (*credentials.ClaudeCodeAPI, error) {
	return h.Claude, nil
}

func (h *Static) MCPServers() map[string]*credentials.MCPServer { return h.Servers }

func (h *Static) ContinueOnFail() bool { return h.FailureTolerant }

// Overlay applies the parameter-named keys of item on top of base
func Overlay(base domain.Parameters, item domain.Item) (domain.Parameters, error) {
	overrides := make(map[string]any)
	for k, v := range item {
		if parameterKeys[k] {
			overrides[k] = v
		}
	}
	if len(overrides) == 0 {
		return base, nil
	}

	data, err := json.Marshal(base)
	if err != nil {
		return base, errors.Wrap(err, "encoding base parameters")
	}
	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return base, errors.Wrap(err, "decoding base parameters")
	}

	for k, v := range overrides {
		if k == "additionalOptions" {
			if extra, ok := v.(map[string]any); ok {
				opts, _ := merged[k].(map[string]any)
				if opts == nil {
					opts = make(map[string]any)
				}
				maps.Copy(opts, extra)
				v = opts
			}
		}
		merged[k] = v
	}

	data, err = json.Marshal(merged)
	if err != nil {
		return base, errors.Wrap(err, "encoding parameters")
	}
	var out domain.Parameters
	if err := json.Unmarshal(data, &out); err != nil {
		return base, errors.Wrap(err, "invalid parameter override")
	}
	return out, nil
}
