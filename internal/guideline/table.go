// Package guideline holds the read-only metric reference table used for risk
// classification.
package guideline

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

//go:embed guidelines.yaml
var defaultGuidelines []byte

// Bracket is one severity band. From is the inclusive lower bound; nil means
// unbounded below and is only allowed on the first bracket.
type Bracket struct {
	From  *float64            `yaml:"from,omitempty"`
	Level constants.RiskLevel `yaml:"level"`
}

// Guideline describes one metric.
type Guideline struct {
	Metric         string    `yaml:"-"`
	Unit           string    `yaml:"unit"`
	ReferenceRange string    `yaml:"referenceRange"`
	Citation       string    `yaml:"citation"`
	Brackets       []Bracket `yaml:"brackets"`
}

type document struct {
	Version string               `yaml:"version"`
	Source  string               `yaml:"source"`
	Metrics map[string]Guideline `yaml:"metrics"`
}

// Table is immutable after construction and safe for concurrent readers.
type Table struct {
	version    string
	source     string
	metrics    map[string]Guideline
	classifier Classifier
}

type Option func(*Table)

// WithClassifier replaces the bracket classifier.
func WithClassifier(c Classifier) Option {
	return func(t *Table) {
		if c != nil {
			t.classifier = c
		}
	}
}

// New builds a table from guidelines keyed by metric name.
func New(version string, metrics map[string]Guideline, opts ...Option) (*Table, error) {
	t := &Table{
		version:    version,
		metrics:    make(map[string]Guideline, len(metrics)),
		classifier: BracketClassifier{},
	}
	for _, o := range opts {
		o(t)
	}
	for name, g := range metrics {
		g.Metric = name
		if err := g.validate(); err != nil {
			return nil, err
		}
		g.Brackets = slices.Clone(g.Brackets)
		t.metrics[name] = g
	}
	return t, nil
}

// Parse builds a table from YAML.
func Parse(data []byte, opts ...Option) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("guideline: decode: %w", err)
	}
	if len(doc.Metrics) == 0 {
		return nil, fmt.Errorf("guideline: no metrics defined")
	}
	t, err := New(doc.Version, doc.Metrics, opts...)
	if err != nil {
		return nil, err
	}
	t.source = doc.Source
	return t, nil
}

// LoadFile builds a table from a YAML file.
func LoadFile(path string, opts ...Option) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("guideline: read %s: %w", path, err)
	}
	return Parse(b, opts...)
}

// Default returns the table shipped with the binary.
func Default(opts ...Option) (*Table, error) {
	return Parse(defaultGuidelines, opts...)
}

func (t *Table) Version() string { return t.version }
func (t *Table) Source() string  { return t.source }

// Metrics lists the metric names in sorted order.
func (t *Table) Metrics() []string {
	names := make([]string, 0, len(t.metrics))
	for n := range t.metrics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a copy of the guideline for metric.
func (t *Table) Lookup(metric string) (Guideline, bool) {
	g, ok := t.metrics[metric]
	if !ok {
		return Guideline{}, false
	}
	g.Brackets = slices.Clone(g.Brackets)
	return g, true
}

// Classify builds the HealthMetric for value. unit overrides the guideline
// unit only when the guideline has none. ok is false for unknown metrics.
func (t *Table) Classify(metric string, value float64, unit string) (entity.HealthMetric, bool) {
	g, ok := t.metrics[metric]
	if !ok {
		return entity.HealthMetric{}, false
	}
	if g.Unit != "" {
		unit = g.Unit
	}
	return entity.HealthMetric{
		Name:           metric,
		Value:          value,
		Unit:           unit,
		ReferenceRange: g.ReferenceRange,
		RiskLevel:      t.classifier.Classify(g, value),
	}, true
}

func (g Guideline) validate() error {
	if len(g.Brackets) == 0 {
		return fmt.Errorf("guideline %s: no brackets", g.Metric)
	}
	if g.Brackets[0].From != nil {
		return fmt.Errorf("guideline %s: first bracket must be unbounded below", g.Metric)
	}
	for i, b := range g.Brackets {
		if !b.Level.Valid() {
			return fmt.Errorf("guideline %s: bracket %d: unknown level %q", g.Metric, i, b.Level)
		}
		if i == 0 {
			continue
		}
		if b.From == nil {
			return fmt.Errorf("guideline %s: bracket %d: missing lower bound", g.Metric, i)
		}
		if i > 1 && *b.From <= *g.Brackets[i-1].From {
			return fmt.Errorf("guideline %s: bracket %d: bounds must ascend", g.Metric, i)
		}
	}
	return nil
}
