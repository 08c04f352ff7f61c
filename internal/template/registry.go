package template

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Registry is an ordered, immutable set of templates: specific ones first in
// the order they were added, the generic one last. Build it once with a
// Builder and share it between pipelines.
type Registry struct {
	templates   []HospitalTemplate
	fingerprint string
}

// Templates returns the templates in match order.
func (r *Registry) Templates() []HospitalTemplate {
	return slices.Clone(r.templates)
}

func (r *Registry) Len() int { return len(r.templates) }

// Fingerprint is a hex digest of everything that shapes a match: order, IDs,
// headers, thresholds and field patterns. Two registries with the same
// fingerprint extract the same fields from the same text.
func (r *Registry) Fingerprint() string { return r.fingerprint }

// Get finds a template by ID.
func (r *Registry) Get(id string) (HospitalTemplate, bool) {
	for _, t := range r.templates {
		if t.ID == id {
			return t, true
		}
	}
	return HospitalTemplate{}, false
}

// Generic returns the catch-all template.
func (r *Registry) Generic() HospitalTemplate {
	return r.templates[len(r.templates)-1]
}

// Builder collects templates for a Registry.
type Builder struct {
	specific []HospitalTemplate
	generic  []HospitalTemplate
}

func NewBuilder() *Builder { return &Builder{} }

// Add appends a specific template. Earlier additions are treated as more specific.
func (b *Builder) Add(t HospitalTemplate) *Builder {
	if t.AcceptanceThreshold == 0 {
		t.AcceptanceThreshold = DefaultSpecificThreshold
	}
	b.specific = append(b.specific, t)
	return b
}

// Generic sets the catch-all template. Its header is ignored.
func (b *Builder) Generic(t HospitalTemplate) *Builder {
	t.Header = nil
	if t.AcceptanceThreshold == 0 {
		t.AcceptanceThreshold = DefaultGenericThreshold
	}
	b.generic = append(b.generic, t)
	return b
}

// Build validates the collected templates and freezes them.
func (b *Builder) Build() (*Registry, error) {
	var errs []error
	switch len(b.generic) {
	case 0:
		errs = append(errs, errors.New("template: registry needs a generic template"))
	case 1:
	default:
		errs = append(errs, fmt.Errorf("template: %d generic templates registered, want exactly one", len(b.generic)))
	}

	all := append(slices.Clone(b.specific), b.generic...)
	seen := map[string]struct{}{}
	for _, t := range all {
		if t.ID == "" {
			errs = append(errs, errors.New("template: empty id"))
			continue
		}
		if _, dup := seen[t.ID]; dup {
			errs = append(errs, fmt.Errorf("template %s: duplicate id", t.ID))
		}
		seen[t.ID] = struct{}{}
		errs = append(errs, t.validate()...)
	}
	for _, t := range b.specific {
		if t.Header == nil {
			errs = append(errs, fmt.Errorf("template %s: specific template needs a header pattern", t.ID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Registry{templates: all, fingerprint: fingerprint(all)}, nil
}

func fingerprint(templates []HospitalTemplate) string {
	h := sha256.New()
	for _, t := range templates {
		header := ""
		if t.Header != nil {
			header = t.Header.String()
		}
		fmt.Fprintf(h, "%s\x00%s\x00%g\n", t.ID, header, t.AcceptanceThreshold)
		for _, fp := range t.Fields {
			fmt.Fprintf(h, "\t%s\x00%s\x00%s\x00%s\x00%s\n",
				fp.Name, fp.Pattern.String(), strings.Join(fp.Targets, ","), fp.Unit, fp.Kind)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (t HospitalTemplate) validate() []error {
	var errs []error
	if t.AcceptanceThreshold <= 0 || t.AcceptanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("template %s: threshold %v outside (0,1]", t.ID, t.AcceptanceThreshold))
	}
	if len(t.Fields) == 0 {
		errs = append(errs, fmt.Errorf("template %s: no field patterns", t.ID))
	}
	for _, fp := range t.Fields {
		if fp.Pattern == nil || len(fp.Targets) == 0 {
			errs = append(errs, fmt.Errorf("template %s: field %s needs a pattern and targets", t.ID, fp.Name))
			continue
		}
		if fp.Pattern.NumSubexp() < len(fp.Targets) {
			errs = append(errs, fmt.Errorf("template %s: field %s has %d groups for %d targets",
				t.ID, fp.Name, fp.Pattern.NumSubexp(), len(fp.Targets)))
		}
		if fp.Kind != "" && fp.Kind != KindNumber && fp.Kind != KindText {
			errs = append(errs, fmt.Errorf("template %s: field %s: unknown kind %q", t.ID, fp.Name, fp.Kind))
		}
	}
	return errs
}
