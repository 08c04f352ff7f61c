package entity

import (
	"maps"
	"strings"

	"github.com/joseph-ayodele/health-report-parser/constants"
)

// TextBlock is one unit of recognized text as returned by the OCR engine.
type TextBlock struct {
	Text       string
	Confidence float64 // 0..1
	Region     any     // engine specific, never inspected by the pipeline
}

// FieldValue is one extracted field. Value holds a float64 for numeric fields
// and a string for categorical ones.
type FieldValue struct {
	Value  any
	Unit   string
	Raw    string
	Metric *HealthMetric
}

// Empty reports whether the value carries nothing usable.
func (v FieldValue) Empty() bool {
	switch t := v.Value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// Float returns the numeric value, if any.
func (v FieldValue) Float() (float64, bool) {
	f, ok := v.Value.(float64)
	return f, ok
}

// Text returns the string value, if any.
func (v FieldValue) Text() (string, bool) {
	s, ok := v.Value.(string)
	return s, ok
}

// ExtractionRecord is the output of a single extraction pass.
type ExtractionRecord struct {
	Fields     map[string]FieldValue
	Source     constants.Source
	Confidence float64
}

// NewRecord returns an empty record for the given source.
func NewRecord(source constants.Source, confidence float64) ExtractionRecord {
	return ExtractionRecord{
		Fields:     map[string]FieldValue{},
		Source:     source,
		Confidence: confidence,
	}
}

// Has reports whether name is present with a non-empty value.
func (r ExtractionRecord) Has(name string) bool {
	v, ok := r.Fields[name]
	return ok && !v.Empty()
}

// Get returns the value for name.
func (r ExtractionRecord) Get(name string) (FieldValue, bool) {
	v, ok := r.Fields[name]
	if !ok || v.Empty() {
		return FieldValue{}, false
	}
	return v, true
}

// Float returns the numeric value stored under name.
func (r ExtractionRecord) Float(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	return v.Float()
}

// Set stores v under name, allocating the map on first use.
func (r *ExtractionRecord) Set(name string, v FieldValue) {
	if r.Fields == nil {
		r.Fields = map[string]FieldValue{}
	}
	r.Fields[name] = v
}

// Len counts the non-empty fields.
func (r ExtractionRecord) Len() int {
	n := 0
	for _, v := range r.Fields {
		if !v.Empty() {
			n++
		}
	}
	return n
}

// Clone returns a copy whose field map can be modified independently.
func (r ExtractionRecord) Clone() ExtractionRecord {
	out := r
	out.Fields = maps.Clone(r.Fields)
	if out.Fields == nil {
		out.Fields = map[string]FieldValue{}
	}
	return out
}
