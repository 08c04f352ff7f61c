package template

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
)

//go:embed templates.yaml
var defaultTemplates []byte

type fieldSpec struct {
	Name    string   `yaml:"name"`
	Pattern string   `yaml:"pattern"`
	Targets []string `yaml:"targets"`
	Unit    string   `yaml:"unit"`
	Kind    string   `yaml:"kind"`
}

type templateSpec struct {
	ID        string      `yaml:"id"`
	Name      string      `yaml:"name"`
	Header    string      `yaml:"header"`
	Threshold float64     `yaml:"threshold"`
	Fields    []fieldSpec `yaml:"fields"`
}

type registrySpec struct {
	Templates []templateSpec `yaml:"templates"`
	Generic   templateSpec   `yaml:"generic"`
}

// Parse builds a registry from YAML. Templates keep file order; the generic
// entry always goes last.
func Parse(data []byte) (*Registry, error) {
	var spec registrySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("template: decode: %w", err)
	}
	b := NewBuilder()
	for _, ts := range spec.Templates {
		t, err := ts.compile()
		if err != nil {
			return nil, err
		}
		b.Add(t)
	}
	if spec.Generic.ID != "" {
		g, err := spec.Generic.compile()
		if err != nil {
			return nil, err
		}
		b.Generic(g)
	}
	return b.Build()
}

// LoadFile builds a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("template: read %s: %w", path, err)
	}
	return Parse(b)
}

// Default returns the registry shipped with the binary.
func Default() (*Registry, error) {
	return Parse(defaultTemplates)
}

func (ts templateSpec) compile() (HospitalTemplate, error) {
	t := HospitalTemplate{
		ID:                  ts.ID,
		Name:                ts.Name,
		AcceptanceThreshold: ts.Threshold,
	}
	if ts.Header != "" {
		re, err := regexp.Compile(ts.Header)
		if err != nil {
			return t, fmt.Errorf("template %s: header: %w", ts.ID, err)
		}
		t.Header = re
	}
	for _, fs := range ts.Fields {
		re, err := regexp.Compile(fs.Pattern)
		if err != nil {
			return t, fmt.Errorf("template %s: field %s: %w", ts.ID, fs.Name, err)
		}
		targets := fs.Targets
		if len(targets) == 0 {
			targets = []string{fs.Name}
		}
		t.Fields = append(t.Fields, FieldPattern{
			Name:    fs.Name,
			Pattern: re,
			Targets: targets,
			Unit:    fs.Unit,
			Kind:    fs.Kind,
		})
	}
	return t, nil
}
