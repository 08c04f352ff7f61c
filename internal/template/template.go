// Package template holds institution report templates and the matcher that
// picks the first acceptable one for a document.
package template

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

// Default acceptance thresholds. They are independent of the pipeline's
// completeness threshold.
const (
	DefaultSpecificThreshold = 0.85
	DefaultGenericThreshold  = 0.70
)

// Capture kinds.
const (
	KindNumber = "number"
	KindText   = "text"
)

// FieldPattern extracts one logical field. Each capture group feeds the
// record field at the same position in Targets, so a blood pressure pattern
// with two groups yields systolic and diastolic siblings.
type FieldPattern struct {
	Name    string
	Pattern *regexp.Regexp
	Targets []string
	Unit    string
	Kind    string
}

// HospitalTemplate is one registered report layout. A nil Header matches any
// text; only the generic template has one.
type HospitalTemplate struct {
	ID                  string
	Name                string
	Header              *regexp.Regexp
	Fields              []FieldPattern
	AcceptanceThreshold float64
}

// Generic reports whether t is the catch-all template.
func (t HospitalTemplate) Generic() bool { return t.Header == nil }

// HeaderMatches reports whether text looks like it was issued by t's institution.
func (t HospitalTemplate) HeaderMatches(text string) bool {
	return t.Header == nil || t.Header.MatchString(text)
}

// Apply runs every field pattern over text. It returns the captured fields and
// the fraction of patterns that captured.
func (t HospitalTemplate) Apply(text string) (map[string]entity.FieldValue, float64) {
	out := map[string]entity.FieldValue{}
	if len(t.Fields) == 0 {
		return out, 0
	}
	captured := 0
	for _, fp := range t.Fields {
		vals, ok := fp.capture(text)
		if !ok {
			continue
		}
		captured++
		for k, v := range vals {
			out[k] = v
		}
	}
	return out, float64(captured) / float64(len(t.Fields))
}

func (fp FieldPattern) capture(text string) (map[string]entity.FieldValue, bool) {
	m := fp.Pattern.FindStringSubmatch(text)
	if m == nil || len(m)-1 < len(fp.Targets) {
		return nil, false
	}
	vals := make(map[string]entity.FieldValue, len(fp.Targets))
	for i, target := range fp.Targets {
		raw := strings.TrimSpace(m[i+1])
		if raw == "" {
			return nil, false
		}
		fv := entity.FieldValue{Unit: fp.Unit, Raw: m[0]}
		if fp.Kind == KindText {
			fv.Value = raw
		} else {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, false
			}
			fv.Value = f
		}
		vals[target] = fv
	}
	return vals, true
}
