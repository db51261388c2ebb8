package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileTool struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	RequiresParameter bool   `yaml:"requires_parameter"`
	Transform         string `yaml:"transform"`
	ParameterFormat   string `yaml:"parameter_format"`
}

type file struct {
	Tools []fileTool `yaml:"tools"`
}

// LoadFile reads a YAML tool list. An empty path returns the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path) //nolint:gosec // catalog path is controlled by deployment
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML tool list into a catalog.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if len(f.Tools) == 0 {
		return nil, errors.New("catalog has no tools")
	}
	tools := make([]Tool, 0, len(f.Tools))
	for _, ft := range f.Tools {
		transform := strings.TrimSpace(ft.Transform)
		if transform == "" {
			return nil, fmt.Errorf("tool %q: empty transform", ft.ID)
		}
		t := Tool{
			ID:                ft.ID,
			Name:              ft.Name,
			Description:       ft.Description,
			RequiresParameter: ft.RequiresParameter,
			Rule:              Fixed(transform),
		}
		if ft.ParameterFormat != "" {
			if !strings.Contains(ft.ParameterFormat, paramPlaceholder) {
				return nil, fmt.Errorf("tool %q: parameter_format lacks %s", ft.ID, paramPlaceholder)
			}
			t.Rule = Parameterized(transform, ft.ParameterFormat)
		} else if ft.RequiresParameter {
			return nil, fmt.Errorf("tool %q: requires_parameter set without parameter_format", ft.ID)
		}
		tools = append(tools, t)
	}
	return New(tools...)
}
