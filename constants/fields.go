package constants

// Field names used in extraction records. These are also the JSON keys of the
// output report.
const (
	FieldAge        = "age"
	FieldSex        = "sex"
	FieldHeightCm   = "heightCm"
	FieldWeightKg   = "weightKg"
	FieldBMI        = "bmi"
	FieldIdentifier = "identifier"
	FieldName       = "name"

	FieldTotalCholesterol   = "totalCholesterol"
	FieldLDLCholesterol     = "ldlCholesterol"
	FieldHDLCholesterol     = "hdlCholesterol"
	FieldTriglycerides      = "triglycerides"
	FieldSystolic           = "systolic"
	FieldDiastolic          = "diastolic"
	FieldFastingGlucose     = "fastingGlucose"
	FieldHbA1c              = "hba1c"
	FieldWaistCircumference = "waistCircumference"
	FieldHeartRate          = "heartRate"
	FieldTemperature        = "temperature"
	FieldOxygenSaturation   = "oxygenSaturation"
	FieldRespiratoryRate    = "respiratoryRate"

	FieldSmokingStatus      = "smokingStatus"
	FieldExerciseFrequency  = "exerciseFrequency"
	FieldExercisePeriod     = "exercisePeriod"
	FieldDrinksPerWeek      = "drinksPerWeek"
	FieldAlcoholConsumption = "alcoholConsumption"

	FieldTestDate = "testDate"

	// FieldBloodPressure is never stored; it names the systolic/diastolic pair.
	FieldBloodPressure = "bloodPressure"
)

// PatientFields, VitalFields and LifestyleFields partition record fields into
// the three report sections. BMI is both a patient attribute and a vital.
var (
	PatientFields = []string{
		FieldAge, FieldSex, FieldHeightCm, FieldWeightKg, FieldBMI, FieldIdentifier, FieldName,
	}
	VitalFields = []string{
		FieldTotalCholesterol, FieldLDLCholesterol, FieldHDLCholesterol, FieldTriglycerides,
		FieldSystolic, FieldDiastolic, FieldFastingGlucose, FieldHbA1c, FieldWaistCircumference,
		FieldHeartRate, FieldTemperature, FieldOxygenSaturation, FieldRespiratoryRate, FieldBMI,
	}
	LifestyleFields = []string{
		FieldSmokingStatus, FieldExerciseFrequency, FieldExercisePeriod,
		FieldDrinksPerWeek, FieldAlcoholConsumption,
	}
)

// RequiredField is one entry of the completeness set. An entry is present
// only when every one of its record fields is present.
type RequiredField struct {
	Name   string
	Fields []string
}

// RequiredFields is the fixed completeness set shared by the scorer and the
// fallback trigger.
var RequiredFields = []RequiredField{
	{Name: FieldBloodPressure, Fields: []string{FieldSystolic, FieldDiastolic}},
	{Name: FieldTotalCholesterol, Fields: []string{FieldTotalCholesterol}},
	{Name: FieldFastingGlucose, Fields: []string{FieldFastingGlucose}},
	{Name: FieldBMI, Fields: []string{FieldBMI}},
	{Name: FieldHeartRate, Fields: []string{FieldHeartRate}},
	{Name: FieldTemperature, Fields: []string{FieldTemperature}},
	{Name: FieldOxygenSaturation, Fields: []string{FieldOxygenSaturation}},
}

// Enumerated categorical values.
var (
	SexValues       = []string{"M", "F"}
	SmokingValues   = []string{"current", "former", "never"}
	AlcoholValues   = []string{"yes", "no"}
	ExercisePeriods = []string{"daily", "weekly", "monthly"}
)
