package guideline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/health-report-parser/constants"
)

func TestDefaultTableLoads(t *testing.T) {
	tbl, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "2024.11", tbl.Version())
	assert.NotEmpty(t, tbl.Source())
	for _, name := range []string{
		constants.FieldTotalCholesterol, constants.FieldSystolic, constants.FieldDiastolic,
		constants.FieldFastingGlucose, constants.FieldBMI, constants.FieldHeartRate,
		constants.FieldTemperature, constants.FieldOxygenSaturation,
	} {
		_, ok := tbl.Lookup(name)
		assert.True(t, ok, name)
		assert.Contains(t, tbl.Metrics(), name)
	}
	assert.IsNonDecreasing(t, tbl.Metrics())
}

func TestClassifyBoundaryBelongsToUpperBracket(t *testing.T) {
	tbl, err := Default()
	require.NoError(t, err)

	tests := []struct {
		metric string
		value  float64
		want   constants.RiskLevel
	}{
		{constants.FieldTotalCholesterol, 199, constants.RiskNormal},
		{constants.FieldTotalCholesterol, 200, constants.RiskBorderline},
		{constants.FieldTotalCholesterol, 239.9, constants.RiskBorderline},
		{constants.FieldTotalCholesterol, 240, constants.RiskHigh},
		{constants.FieldHDLCholesterol, 39, constants.RiskHigh},
		{constants.FieldHDLCholesterol, 40, constants.RiskBorderline},
		{constants.FieldHDLCholesterol, 60, constants.RiskNormal},
		{constants.FieldSystolic, 119, constants.RiskNormal},
		{constants.FieldSystolic, 120, constants.RiskBorderline},
		{constants.FieldSystolic, 185, constants.RiskCritical},
		{constants.FieldFastingGlucose, 65, constants.RiskBorderline},
		{constants.FieldFastingGlucose, 99, constants.RiskNormal},
		{constants.FieldFastingGlucose, 126, constants.RiskHigh},
		{constants.FieldOxygenSaturation, 98, constants.RiskNormal},
		{constants.FieldOxygenSaturation, 84, constants.RiskCritical},
		{constants.FieldHeartRate, 100, constants.RiskBorderline},
	}
	for _, tt := range tests {
		m, ok := tbl.Classify(tt.metric, tt.value, "")
		require.True(t, ok, tt.metric)
		assert.Equal(t, tt.want, m.RiskLevel, "%s=%v", tt.metric, tt.value)
	}
}

func TestClassifyFillsMetric(t *testing.T) {
	tbl, err := Default()
	require.NoError(t, err)

	m, ok := tbl.Classify(constants.FieldTotalCholesterol, 210, "mmol/L")
	require.True(t, ok)
	assert.Equal(t, constants.FieldTotalCholesterol, m.Name)
	assert.Equal(t, 210.0, m.Value)
	assert.Equal(t, "mg/dL", m.Unit)
	assert.Equal(t, "<200", m.ReferenceRange)

	_, ok = tbl.Classify("eyesight", 1.0, "")
	assert.False(t, ok)
}

func TestInjectedClassifier(t *testing.T) {
	always := ClassifierFunc(func(Guideline, float64) constants.RiskLevel { return constants.RiskCritical })
	tbl, err := Default(WithClassifier(always))
	require.NoError(t, err)

	m, ok := tbl.Classify(constants.FieldHeartRate, 72, "")
	require.True(t, ok)
	assert.Equal(t, constants.RiskCritical, m.RiskLevel)
}

func TestLookupReturnsCopy(t *testing.T) {
	tbl, err := Default()
	require.NoError(t, err)

	g, _ := tbl.Lookup(constants.FieldTotalCholesterol)
	g.Brackets[0].Level = constants.RiskCritical

	m, _ := tbl.Classify(constants.FieldTotalCholesterol, 150, "")
	assert.Equal(t, constants.RiskNormal, m.RiskLevel)
}

func TestParseRejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", `version: "x"`},
		{"bounded first bracket", `
metrics:
  x:
    brackets:
      - from: 1
        level: NORMAL`},
		{"descending", `
metrics:
  x:
    brackets:
      - level: NORMAL
      - from: 10
        level: HIGH
      - from: 5
        level: CRITICAL`},
		{"unknown level", `
metrics:
  x:
    brackets:
      - level: SEVERE`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
