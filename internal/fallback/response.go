package fallback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/health-report-parser/constants"
)

const confidenceKey = "confidence"

type response struct {
	fields     map[string]any
	confidence *float64
	ignored    []string
	rejected   []string
}

var errEmptyResponse = errors.New("model returned no fields")

// aliases maps folded model keys (lower case, no separators) onto record
// field names. Models drift between snake_case, camelCase and abbreviations.
var aliases = map[string]string{
	"bloodpressure": constants.FieldBloodPressure,
	"bp":            constants.FieldBloodPressure,

	"systolic":    constants.FieldSystolic,
	"systolicbp":  constants.FieldSystolic,
	"sbp":         constants.FieldSystolic,
	"diastolic":   constants.FieldDiastolic,
	"diastolicbp": constants.FieldDiastolic,
	"dbp":         constants.FieldDiastolic,

	"cholesterol":      constants.FieldTotalCholesterol,
	"totalcholesterol": constants.FieldTotalCholesterol,
	"tc":               constants.FieldTotalCholesterol,
	"ldl":              constants.FieldLDLCholesterol,
	"ldlcholesterol":   constants.FieldLDLCholesterol,
	"hdl":              constants.FieldHDLCholesterol,
	"hdlcholesterol":   constants.FieldHDLCholesterol,
	"triglycerides":    constants.FieldTriglycerides,
	"tg":               constants.FieldTriglycerides,

	"glucose":             constants.FieldFastingGlucose,
	"bloodglucose":        constants.FieldFastingGlucose,
	"fastingglucose":      constants.FieldFastingGlucose,
	"fastingbloodglucose": constants.FieldFastingGlucose,
	"hba1c":               constants.FieldHbA1c,
	"a1c":                 constants.FieldHbA1c,

	"bmi":                constants.FieldBMI,
	"weight":             constants.FieldWeightKg,
	"weightkg":           constants.FieldWeightKg,
	"height":             constants.FieldHeightCm,
	"heightcm":           constants.FieldHeightCm,
	"waist":              constants.FieldWaistCircumference,
	"waistcircumference": constants.FieldWaistCircumference,

	"heartrate":        constants.FieldHeartRate,
	"pulse":            constants.FieldHeartRate,
	"pulserate":        constants.FieldHeartRate,
	"hr":               constants.FieldHeartRate,
	"temperature":      constants.FieldTemperature,
	"bodytemperature":  constants.FieldTemperature,
	"temp":             constants.FieldTemperature,
	"oxygensaturation": constants.FieldOxygenSaturation,
	"spo2":             constants.FieldOxygenSaturation,
	"respiratoryrate":  constants.FieldRespiratoryRate,
	"rr":               constants.FieldRespiratoryRate,

	"age":         constants.FieldAge,
	"sex":         constants.FieldSex,
	"gender":      constants.FieldSex,
	"name":        constants.FieldName,
	"patientname": constants.FieldName,
	"identifier":  constants.FieldIdentifier,
	"id":          constants.FieldIdentifier,
	"nationalid":  constants.FieldIdentifier,

	"smokingstatus":      constants.FieldSmokingStatus,
	"smoking":            constants.FieldSmokingStatus,
	"exercisefrequency":  constants.FieldExerciseFrequency,
	"exercise":           constants.FieldExerciseFrequency,
	"exerciseperiod":     constants.FieldExercisePeriod,
	"drinksperweek":      constants.FieldDrinksPerWeek,
	"alcoholconsumption": constants.FieldAlcoholConsumption,
	"alcohol":            constants.FieldAlcoholConsumption,

	"testdate":        constants.FieldTestDate,
	"examinationdate": constants.FieldTestDate,
	"examdate":        constants.FieldTestDate,
	"reportdate":      constants.FieldTestDate,
	"date":            constants.FieldTestDate,
}

// Unwrap cuts the JSON object out of a model reply: everything from the first
// '{' to the last '}'. Code fences and surrounding prose are discarded.
func Unwrap(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply (%d bytes)", len(raw))
	}
	return raw[start : end+1], nil
}

// parseResponse unwraps, decodes, canonicalizes keys and validates one reply.
// Only structural problems (no object, no known keys) fail the attempt and
// are retried; values of the wrong type are dropped into rejected.
func parseResponse(raw []byte) (response, error) {
	obj, err := Unwrap(raw)
	if err != nil {
		return response{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(obj, &m); err != nil {
		return response{}, fmt.Errorf("decode reply: %w", err)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := response{fields: map[string]any{}}
	for _, k := range keys {
		v := m[k]
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		fk := foldKey(k)
		if fk == confidenceKey {
			if c, ok := v.(float64); ok && c >= 0 && c <= 1 {
				out.confidence = &c
			}
			continue
		}
		name, ok := aliases[fk]
		if !ok {
			out.ignored = append(out.ignored, k)
			continue
		}
		// an exact canonical key beats an alias for the same field.
		if _, dup := out.fields[name]; dup && k != name {
			continue
		}
		out.fields[name] = v
	}

	if len(out.fields) == 0 {
		return response{}, errEmptyResponse
	}
	bad, err := Validate(out.fields)
	if err != nil {
		return response{}, err
	}
	for _, name := range slices.Sorted(maps.Keys(bad)) {
		out.rejected = append(out.rejected, coercionError(name, out.fields[name], bad[name]))
		delete(out.fields, name)
	}
	return out, nil
}

func foldKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
