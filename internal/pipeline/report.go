package pipeline

import (
	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

// fill copies a merged record into the report sections. Vitals without a
// guideline keep their value and unit with an empty risk level.
func fill(rep *entity.ParsedHealthReport, rec entity.ExtractionRecord) {
	rep.Source = rec.Source
	rep.ConfidenceScore = rec.Confidence

	for _, name := range constants.PatientFields {
		if v, ok := rec.Get(name); ok {
			rep.PatientInfo[name] = v.Value
		}
	}
	for _, name := range constants.VitalFields {
		v, ok := rec.Get(name)
		if !ok {
			continue
		}
		if v.Metric != nil {
			rep.VitalSigns[name] = *v.Metric
			continue
		}
		if f, ok := v.Float(); ok {
			rep.VitalSigns[name] = entity.HealthMetric{Name: name, Value: f, Unit: v.Unit}
		}
	}
	for _, name := range constants.LifestyleFields {
		if v, ok := rec.Get(name); ok {
			rep.LifestyleFactors[name] = v.Value
		}
	}
	if v, ok := rec.Get(constants.FieldTestDate); ok {
		if s, ok := v.Text(); ok {
			if d, err := entity.ParseDate(s); err == nil {
				rep.TestDate = &d
			}
		}
	}
}
