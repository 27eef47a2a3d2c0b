package host

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/claude-code-node/internal/domain"
)

// LoadItems reads records from path, or from stdin when path is "-". A file
// holds either a list of objects or a single object.
func LoadItems(path string, stdin io.Reader) ([]domain.Item, error) {
	data, err := readSource(path, stdin)
	if err != nil {
		return nil, err
	}
	return ParseItems(data)
}

// ParseItems decodes JSON or YAML records
func ParseItems(data []byte) ([]domain.Item, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []domain.Item{v}, nil
	case []any:
		items := make([]domain.Item, 0, len(v))
		for i, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, errors.Errorf("item %d is not an object", i)
			}
			items = append(items, m)
		}
		return items, nil
	default:
		return nil, errors.Errorf("items must be an object or a list of objects, got %T", doc)
	}
}

// LoadParameters reads node parameters from path on top of base. An empty
// path yields base.
func LoadParameters(path string, base domain.Parameters) (domain.Parameters, error) {
	params := base
	if path == "" {
		return params, nil
	}
	data, err := readSource(path, nil)
	if err != nil {
		return params, err
	}
	doc, err := decode(data)
	if err != nil {
		return params, err
	}
	if doc == nil {
		return params, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return params, errors.Errorf("parameters in %s must be an object", path)
	}
	return Overlay(params, m)
}

func readSource(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		data, err := io.ReadAll(stdin)
		return data, errors.Wrap(err, "reading stdin")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filepath.Base(path))
	}
	return data, nil
}

// decode parses YAML, which also covers JSON input, and normalizes the result
// so nested mappings are map[string]any
func decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing input")
	}
	return normalize(doc)
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				return nil, errors.Errorf("non-string key %v", k)
			}
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		for i, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	default:
		return v, nil
	}
}

// ParseParametersJSON decodes a parameters object sent over the API on top of
// the defaults
func ParseParametersJSON(raw json.RawMessage) (domain.Parameters, error) {
	params := domain.DefaultParameters()
	if len(bytes.TrimSpace(raw)) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return params, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return params, errors.Wrap(err, "invalid parameters")
	}
	return Overlay(params, m)
}
