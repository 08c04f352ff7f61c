package llm

import (
	"strings"
)

const maxPromptText = 6000

// promptFields lists what the model is asked for, in the record's own names.
var promptFields = []string{
	"bloodPressure (\"systolic/diastolic\" in mmHg)",
	"systolic, diastolic (numbers, mmHg)",
	"totalCholesterol, ldlCholesterol, hdlCholesterol, triglycerides (mg/dL)",
	"fastingGlucose (mg/dL)",
	"hba1c (%)",
	"bmi, weightKg, heightCm, waistCircumference (cm)",
	"heartRate (beats per minute)",
	"temperature (Celsius)",
	"oxygenSaturation (SpO2 %)",
	"respiratoryRate (breaths per minute)",
	"age, sex (M or F), name, identifier",
	"smokingStatus (current, former or never)",
	"exerciseFrequency (number of sessions), exercisePeriod (daily, weekly or monthly)",
	"drinksPerWeek (number), alcoholConsumption (yes or no)",
	"testDate (YYYY-MM-DD; convert Minguo era years by adding 1911)",
}

// SystemPrompt is the instruction block shared by every provider.
func SystemPrompt() string {
	parts := []string{
		"You are a medical data extraction specialist. Read the health examination report and extract its metrics.",
		"Respond with a single JSON object and nothing else.",
		"Extract these fields when present: " + strings.Join(promptFields, "; ") + ".",
		"Use plain numbers for numeric fields, without units.",
		"If a field is not present, omit it. Never output null or empty strings.",
		"Optionally include \"confidence\" between 0 and 1 for the extraction as a whole.",
	}
	return strings.Join(parts, " ")
}

// UserPrompt wraps the OCR text. When the original document is attached the
// text is only a hint, so it is labelled as such.
func UserPrompt(text string, documentAttached bool) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	if documentAttached {
		b.WriteString("The report document is attached. OCR text for reference (may be incomplete):\n")
	} else {
		b.WriteString("Health report content:\n")
	}
	b.WriteString(truncate(text, maxPromptText))
	b.WriteString("\n\nRESPOND WITH VALID JSON ONLY.")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut] + "\n…(truncated)"
}
