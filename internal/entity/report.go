package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/health-report-parser/constants"
)

// DateLayout is the ISO-8601 calendar date layout used on the wire.
const DateLayout = "2006-01-02"

// HealthMetric is a classified numeric vital. It is built once at extraction
// time and never mutated.
type HealthMetric struct {
	Name           string              `json:"-"`
	Value          float64             `json:"value"`
	Unit           string              `json:"unit"`
	ReferenceRange string              `json:"referenceRange"`
	RiskLevel      constants.RiskLevel `json:"riskLevel"`
}

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

// NewDate returns the UTC midnight of the given day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	*d = parsed
	return nil
}

// ParsedHealthReport is the final per-document result of the pipeline.
type ParsedHealthReport struct {
	DocumentID       string                  `json:"documentId"`
	Path             string                  `json:"path,omitempty"`
	PatientInfo      map[string]any          `json:"patientInfo"`
	VitalSigns       map[string]HealthMetric `json:"vitalSigns"`
	LifestyleFactors map[string]any          `json:"lifestyleFactors"`
	TestDate         *Date                   `json:"testDate,omitempty"`
	ConfidenceScore  float64                 `json:"confidenceScore"`
	Completeness     float64                 `json:"completeness"`
	RawText          string                  `json:"rawText"`
	ParsingErrors    []string                `json:"parsingErrors"`
	Source           constants.Source        `json:"source"`
	TemplateID       string                  `json:"templateId,omitempty"`
}

// NewReport returns a report with all maps allocated.
func NewReport(docID, path string) *ParsedHealthReport {
	return &ParsedHealthReport{
		DocumentID:       docID,
		Path:             path,
		PatientInfo:      map[string]any{},
		VitalSigns:       map[string]HealthMetric{},
		LifestyleFactors: map[string]any{},
		ParsingErrors:    []string{},
	}
}

// Empty reports whether no field of any section was populated.
func (r *ParsedHealthReport) Empty() bool {
	return len(r.PatientInfo) == 0 && len(r.VitalSigns) == 0 && len(r.LifestyleFactors) == 0 && r.TestDate == nil
}
