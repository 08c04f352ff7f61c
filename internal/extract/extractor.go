// Package extract is the template-independent field extractor. It reads
// patient, vital, lifestyle and date fields out of normalized report text and
// classifies numeric vitals against a guideline table.
package extract

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/dates"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/guideline"
)

// Extractor runs the pattern library. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	guidelines *guideline.Table
	logger     *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Extractor that classifies vitals with guidelines.
func New(guidelines *guideline.Table, opts ...Option) *Extractor {
	e := &Extractor{guidelines: guidelines, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads every known field from text. The returned record has source
// OCR and zero confidence; the caller sets the recognizer's confidence. The
// string slice carries recoverable problems such as an unresolvable date.
func (e *Extractor) Extract(text string) (entity.ExtractionRecord, []string) {
	rec := entity.NewRecord(constants.SourceOCR, 0)
	var problems []string

	if m := bloodPressureRe.FindStringSubmatch(text); m != nil {
		sys, _ := strconv.ParseFloat(m[1], 64)
		dia, _ := strconv.ParseFloat(m[2], 64)
		rec.Set(constants.FieldSystolic, entity.FieldValue{Value: sys, Unit: "mmHg", Raw: m[0]})
		rec.Set(constants.FieldDiastolic, entity.FieldValue{Value: dia, Unit: "mmHg", Raw: m[0]})
	}
	for _, p := range numericPatterns {
		if rec.Has(p.field) {
			continue
		}
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		rec.Set(p.field, entity.FieldValue{Value: f, Unit: p.unit, Raw: m[0]})
	}

	e.extractPatient(text, &rec)
	e.extractLifestyle(text, &rec)

	if d, raw, err := resolveTestDate(text); err != nil {
		problems = append(problems, err.Error())
	} else {
		rec.Set(constants.FieldTestDate, entity.FieldValue{Value: d.String(), Raw: raw})
	}

	e.Classify(&rec)
	e.logger.Debug("extract.fields", "fields", rec.Len(), "problems", len(problems))
	return rec, problems
}

// Annotate derives BMI from height and weight when none was captured, then
// classifies the record. Call it on the merged record only, so a BMI any
// source captured directly outranks the derived one.
func (e *Extractor) Annotate(rec *entity.ExtractionRecord) {
	if rec == nil {
		return
	}
	if !rec.Has(constants.FieldBMI) {
		if bmi, ok := DeriveBMI(rec); ok {
			rec.Set(constants.FieldBMI, entity.FieldValue{
				Value: bmi,
				Unit:  "kg/m2",
				Raw:   fmt.Sprintf("derived from %s and %s", constants.FieldHeightCm, constants.FieldWeightKg),
			})
		}
	}
	e.Classify(rec)
}

// Classify attaches a HealthMetric to every numeric vital that lacks one.
// Metrics that are already present are left untouched.
func (e *Extractor) Classify(rec *entity.ExtractionRecord) {
	if rec == nil || e.guidelines == nil {
		return
	}
	for _, name := range constants.VitalFields {
		fv, ok := rec.Get(name)
		if !ok || fv.Metric != nil {
			continue
		}
		v, ok := fv.Float()
		if !ok {
			continue
		}
		m, ok := e.guidelines.Classify(name, v, fv.Unit)
		if !ok {
			continue
		}
		fv.Metric = &m
		rec.Set(name, fv)
	}
}

// DeriveBMI computes weight / height² rounded to one decimal.
func DeriveBMI(rec *entity.ExtractionRecord) (float64, bool) {
	h, okH := rec.Float(constants.FieldHeightCm)
	w, okW := rec.Float(constants.FieldWeightKg)
	if !okH || !okW || h <= 0 || w <= 0 {
		return 0, false
	}
	m := h / 100
	return math.Round(w/(m*m)*10) / 10, true
}

func (e *Extractor) extractPatient(text string, rec *entity.ExtractionRecord) {
	if m := sexRe.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "男", "m", "male":
			rec.Set(constants.FieldSex, entity.FieldValue{Value: "M", Raw: m[0]})
		case "女", "f", "female":
			rec.Set(constants.FieldSex, entity.FieldValue{Value: "F", Raw: m[0]})
		}
	}
	if m := identifierRe.FindStringSubmatch(text); m != nil {
		rec.Set(constants.FieldIdentifier, entity.FieldValue{Value: m[1], Raw: m[1]})
	}
	if m := nameRe.FindStringSubmatch(text); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			rec.Set(constants.FieldName, entity.FieldValue{Value: name, Raw: m[0]})
		}
	}
}

func (e *Extractor) extractLifestyle(text string, rec *entity.ExtractionRecord) {
	if v, raw, ok := matchCategory(smokingPatterns, text); ok {
		rec.Set(constants.FieldSmokingStatus, entity.FieldValue{Value: v, Raw: raw})
	}

	if line := exerciseLineRe.FindString(text); line != "" {
		if m := exerciseFreqRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.ParseFloat(m[1], 64)
			rec.Set(constants.FieldExerciseFrequency, entity.FieldValue{Value: n, Unit: "times", Raw: line})
			if period, _, ok := matchCategory(exercisePeriods, line); ok {
				rec.Set(constants.FieldExercisePeriod, entity.FieldValue{Value: period, Raw: line})
			}
		}
	}

	if v, raw, ok := matchCategory(alcoholPatterns, text); ok {
		rec.Set(constants.FieldAlcoholConsumption, entity.FieldValue{Value: v, Raw: raw})
	} else if n, ok := rec.Float(constants.FieldDrinksPerWeek); ok {
		v := "no"
		if n > 0 {
			v = "yes"
		}
		rec.Set(constants.FieldAlcoholConsumption, entity.FieldValue{Value: v, Raw: rec.Fields[constants.FieldDrinksPerWeek].Raw})
	}
}

// resolveTestDate prefers a labelled date line and falls back to the whole text.
func resolveTestDate(text string) (entity.Date, string, error) {
	for _, line := range dateLabelRe.FindAllString(text, -1) {
		if d, err := dates.Resolve(line); err == nil {
			return d, line, nil
		}
	}
	d, err := dates.Resolve(text)
	if err != nil {
		return entity.Date{}, "", fmt.Errorf("test date: %w", err)
	}
	return d, "", nil
}
