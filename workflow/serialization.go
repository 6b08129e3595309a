package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a definition encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// ParseDefinition decodes and validates a definition.
func ParseDefinition(data []byte, format Format) (*Definition, error) {
	var def Definition
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow from JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow from YAML: %w", err)
		}
		def.Nodes = normalizeNodes(def.Nodes)
		for i := range def.Variables {
			def.Variables[i].Default = normalizeYAML(def.Variables[i].Default)
		}
	default:
		return nil, fmt.Errorf("unsupported workflow format %q", format)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// LoadDefinition reads a definition file; the extension selects the format.
func LoadDefinition(path string) (*Definition, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported workflow file extension: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseDefinition(data, format)
}

// ToYAML renders the definition as YAML.
func (d *Definition) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return data, nil
}

// ToJSON renders the definition as indented JSON.
func (d *Definition) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return data, nil
}

func normalizeNodes(nodes []Node) []Node {
	for i := range nodes {
		if nodes[i].Config != nil {
			nodes[i].Config, _ = normalizeYAML(nodes[i].Config).(map[string]any)
		}
	}
	return nodes
}

// normalizeYAML turns the map[any]any yaml.v3 may produce for nested
// mappings into map[string]any so configs look the same as decoded JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
