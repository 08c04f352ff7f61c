package fallback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/health-report-parser/constants"
)

// numericFields are coerced to float64. Everything else is categorical or text.
var numericFields = []string{
	constants.FieldAge, constants.FieldHeightCm, constants.FieldWeightKg, constants.FieldBMI,
	constants.FieldTotalCholesterol, constants.FieldLDLCholesterol, constants.FieldHDLCholesterol,
	constants.FieldTriglycerides, constants.FieldSystolic, constants.FieldDiastolic,
	constants.FieldFastingGlucose, constants.FieldHbA1c, constants.FieldWaistCircumference,
	constants.FieldHeartRate, constants.FieldTemperature, constants.FieldOxygenSaturation,
	constants.FieldRespiratoryRate, constants.FieldExerciseFrequency, constants.FieldDrinksPerWeek,
}

// Schema returns the JSON schema a canonicalized model reply must satisfy.
// Types are loose: numbers may arrive as strings and are coerced afterwards.
func Schema() map[string]any {
	numeric := map[string]any{"type": []string{"number", "string"}}
	text := map[string]any{"type": "string"}
	flag := map[string]any{"type": []string{"string", "boolean"}}

	props := map[string]any{
		constants.FieldBloodPressure: map[string]any{
			"type": []string{"string", "object"},
			"properties": map[string]any{
				"systolic":  numeric,
				"diastolic": numeric,
			},
		},
		constants.FieldSex:                text,
		constants.FieldName:               text,
		constants.FieldIdentifier:         text,
		constants.FieldExercisePeriod:     text,
		constants.FieldTestDate:           text,
		constants.FieldSmokingStatus:      flag,
		constants.FieldAlcoholConsumption: flag,
	}
	for _, f := range numericFields {
		props[f] = numeric
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"minProperties":        1,
		"properties":           props,
	}
}

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema(Schema())
})

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("fields.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("fields.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Validate checks each canonicalized field against Schema on its own and
// returns the failures keyed by field name. A nil map means every value
// passed.
func Validate(fields map[string]any) (map[string]error, error) {
	schema, err := compiled()
	if err != nil {
		return nil, err
	}
	var bad map[string]error
	for name, v := range fields {
		if err := schema.Validate(map[string]any{name: v}); err != nil {
			if bad == nil {
				bad = map[string]error{}
			}
			bad[name] = fmt.Errorf("does not match field schema: %w", err)
		}
	}
	return bad, nil
}
