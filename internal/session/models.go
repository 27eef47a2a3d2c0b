package session

import "strings"

// ModelAliases maps API model identifiers to the short names the CLI accepts.
// A key ending in "*" matches every identifier with that prefix; the longest
// matching prefix wins and exact keys win over prefixes. Identifiers without
// a match, or matched to "", are passed to the CLI unchanged.
type ModelAliases map[string]string

// DefaultModelAliases sends every claude-* identifier to the CLI as sonnet
func DefaultModelAliases() ModelAliases {
	return ModelAliases{
		"claude-3-opus-20240229":     "sonnet",
		"claude-3-5-sonnet-20241022": "sonnet",
		"claude-3-5-haiku-20241022":  "sonnet",
		"claude-*":                   "sonnet",
	}
}

// Merge returns a copy of a overlaid with extra
func (a ModelAliases) Merge(extra map[string]string) ModelAliases {
	out := make(ModelAliases, len(a)+len(extra))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Resolve returns the CLI model name for model
func (a ModelAliases) Resolve(model string) string {
	if alias, ok := a[model]; ok {
		return orModel(alias, model)
	}

	best, alias := -1, ""
	for key, v := range a {
		prefix, ok := strings.CutSuffix(key, "*")
		if ok && strings.HasPrefix(model, prefix) && len(prefix) > best {
			best, alias = len(prefix), v
		}
	}
	if best < 0 {
		return model
	}
	return orModel(alias, model)
}

func orModel(alias, model string) string {
	if alias == "" {
		return model
	}
	return alias
}
