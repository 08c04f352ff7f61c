package fallback

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/dates"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

var (
	leadingNumber = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)
	pressurePair  = regexp.MustCompile(`^\s*(\d{2,3})\s*[/\\]\s*(\d{2,3})`)
)

var units = map[string]string{
	constants.FieldAge:                "years",
	constants.FieldHeightCm:           "cm",
	constants.FieldWeightKg:           "kg",
	constants.FieldBMI:                "kg/m2",
	constants.FieldTotalCholesterol:   "mg/dL",
	constants.FieldLDLCholesterol:     "mg/dL",
	constants.FieldHDLCholesterol:     "mg/dL",
	constants.FieldTriglycerides:      "mg/dL",
	constants.FieldSystolic:           "mmHg",
	constants.FieldDiastolic:          "mmHg",
	constants.FieldFastingGlucose:     "mg/dL",
	constants.FieldHbA1c:              "%",
	constants.FieldWaistCircumference: "cm",
	constants.FieldHeartRate:          "bpm",
	constants.FieldTemperature:        "°C",
	constants.FieldOxygenSaturation:   "%",
	constants.FieldRespiratoryRate:    "breaths/min",
	constants.FieldExerciseFrequency:  "times",
	constants.FieldDrinksPerWeek:      "drinks/week",
}

var (
	sexValues = map[string]string{
		"m": "M", "male": "M", "男": "M",
		"f": "F", "female": "F", "女": "F",
	}
	smokingValues = map[string]string{
		"current": "current", "yes": "current", "smoker": "current", "true": "current",
		"former": "former", "ex": "former", "quit": "former",
		"never": "never", "no": "never", "non-smoker": "never", "false": "never",
	}
	alcoholValues = map[string]string{
		"yes": "yes", "true": "yes", "regular": "yes",
		"no": "no", "false": "no", "none": "no", "never": "no",
	}
)

func coercionError(field string, v any, cause error) string {
	return common.NewAppError(common.CodeFieldCoercionError,
		fmt.Sprintf("%s: cannot use %v", field, v), cause).Error()
}

// Coerce converts canonicalized reply fields into a FALLBACK record. Values
// that cannot be coerced are dropped and reported as FIELD_COERCION_ERROR
// messages. A compound blood pressure is split into systolic and diastolic;
// explicit systolic or diastolic values take precedence over the split.
func Coerce(fields map[string]any, confidence float64) (entity.ExtractionRecord, []string) {
	rec := entity.NewRecord(constants.SourceFallback, confidence)
	var problems []string
	fail := func(field string, v any, cause error) {
		problems = append(problems, coercionError(field, v, cause))
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	slices.Sort(names)

	for _, name := range names {
		v := fields[name]
		raw := fmt.Sprint(v)
		switch {
		case name == constants.FieldBloodPressure:
			continue
		case slices.Contains(numericFields, name):
			f, err := toFloat(v)
			if err != nil {
				fail(name, v, err)
				continue
			}
			rec.Set(name, entity.FieldValue{Value: f, Unit: units[name], Raw: raw})
		case name == constants.FieldSex:
			setEnum(&rec, name, v, sexValues, fail)
		case name == constants.FieldSmokingStatus:
			setEnum(&rec, name, v, smokingValues, fail)
		case name == constants.FieldAlcoholConsumption:
			setEnum(&rec, name, v, alcoholValues, fail)
		case name == constants.FieldExercisePeriod:
			s := strings.ToLower(strings.TrimSpace(raw))
			if !slices.Contains(constants.ExercisePeriods, s) {
				fail(name, v, nil)
				continue
			}
			rec.Set(name, entity.FieldValue{Value: s, Raw: raw})
		case name == constants.FieldTestDate:
			d, err := toDate(raw)
			if err != nil {
				fail(name, v, err)
				continue
			}
			rec.Set(name, entity.FieldValue{Value: d.String(), Raw: raw})
		default:
			s, ok := v.(string)
			if !ok {
				fail(name, v, nil)
				continue
			}
			rec.Set(name, entity.FieldValue{Value: strings.TrimSpace(s), Raw: s})
		}
	}

	if bp, ok := fields[constants.FieldBloodPressure]; ok {
		sys, dia, err := splitPressure(bp)
		if err != nil {
			fail(constants.FieldBloodPressure, bp, err)
		} else {
			raw := fmt.Sprint(bp)
			if !rec.Has(constants.FieldSystolic) {
				rec.Set(constants.FieldSystolic, entity.FieldValue{Value: sys, Unit: "mmHg", Raw: raw})
			}
			if !rec.Has(constants.FieldDiastolic) {
				rec.Set(constants.FieldDiastolic, entity.FieldValue{Value: dia, Unit: "mmHg", Raw: raw})
			}
		}
	}
	return rec, problems
}

func setEnum(rec *entity.ExtractionRecord, name string, v any, allowed map[string]string,
	fail func(string, any, error)) {
	raw := fmt.Sprint(v)
	canon, ok := allowed[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		fail(name, v, nil)
		return
	}
	rec.Set(name, entity.FieldValue{Value: canon, Raw: raw})
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		m := leadingNumber.FindStringSubmatch(t)
		if m == nil {
			return 0, fmt.Errorf("not a number")
		}
		var err error
		if f, err = strconv.ParseFloat(m[1], 64); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative value")
	}
	return f, nil
}

func toDate(s string) (entity.Date, error) {
	if d, err := entity.ParseDate(strings.TrimSpace(s)); err == nil {
		return d, nil
	}
	return dates.Resolve(s)
}

func splitPressure(v any) (float64, float64, error) {
	switch t := v.(type) {
	case string:
		m := pressurePair.FindStringSubmatch(t)
		if m == nil {
			return 0, 0, fmt.Errorf("want systolic/diastolic")
		}
		sys, _ := strconv.ParseFloat(m[1], 64)
		dia, _ := strconv.ParseFloat(m[2], 64)
		return sys, dia, nil
	case map[string]any:
		sys, err := toFloat(t["systolic"])
		if err != nil {
			return 0, 0, fmt.Errorf("systolic: %w", err)
		}
		dia, err := toFloat(t["diastolic"])
		if err != nil {
			return 0, 0, fmt.Errorf("diastolic: %w", err)
		}
		return sys, dia, nil
	}
	return 0, 0, fmt.Errorf("unexpected %T", v)
}
