package node

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/schema"
	"github.com/hochfrequenz/claude-code-node/internal/session"
)

func TestDescribe_DefaultsMatchParameters(t *testing.T) {
	d := Describe()
	defaults := domain.DefaultParameters()

	tests := []struct {
		name string
		want any
	}{
		{"authenticationMethod", string(defaults.AuthenticationMethod)},
		{"operation", string(defaults.Operation)},
		{"model", defaults.Model},
		{"maxTokens", defaults.MaxTokens},
		{"temperature", defaults.Temperature},
		{"maxTurns", defaults.MaxTurns},
		{"timeout", defaults.Timeout},
		{"outputFormat", string(defaults.OutputFormat)},
		{"allowedTools", defaults.AllowedTools},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := schema.Find(d.Properties, tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Default)
		})
	}
}

func TestDescribe_OptionsCoverEnums(t *testing.T) {
	d := Describe()

	op, _ := schema.Find(d.Properties, "operation")
	for _, o := range []domain.Operation{domain.OperationQuery, domain.OperationContinue, domain.OperationDirect} {
		assert.Contains(t, op.OptionValues(), string(o))
	}

	format, _ := schema.Find(d.Properties, "outputFormat")
	assert.ElementsMatch(t, []string{"structured", "messages", "text"}, format.OptionValues())

	tools, _ := schema.Find(d.Properties, "allowedTools")
	for _, def := range domain.DefaultParameters().AllowedTools {
		assert.True(t, slices.Contains(tools.OptionValues(), def), "default tool %s must be selectable", def)
	}

	model, _ := schema.Find(d.Properties, "model")
	for api := range session.DefaultModelAliases() {
		if strings.HasSuffix(api, "*") {
			continue
		}
		assert.Contains(t, model.OptionValues(), api)
	}
}

func TestDescribe_Visibility(t *testing.T) {
	d := Describe()
	direct := map[string]string{"operation": "direct"}
	query := map[string]string{"operation": "query"}

	for name, visibleForDirect := range map[string]bool{
		"maxTokens":          true,
		"temperature":        true,
		"streaming":          true,
		"maxTurns":           false,
		"projectPath":        false,
		"allowedTools":       false,
		"requirePermissions": false,
		"prompt":             true,
		"timeout":            true,
	} {
		p, ok := schema.Find(d.Properties, name)
		require.True(t, ok, name)
		assert.Equal(t, visibleForDirect, p.Visible(direct), "%s visible for direct", name)
		if name != "maxTokens" && name != "temperature" && name != "streaming" {
			assert.True(t, p.Visible(query), "%s visible for query", name)
		}
	}
}
