package extract

import (
	"regexp"

	"github.com/joseph-ayodele/health-report-parser/constants"
)

// label separators: optional parenthesized unit, optional colon or equals sign.
const (
	sep = `\s*(?:\([^)\n]{0,15}\))?\s*[:=]?\s*`
	num = `(\d+(?:\.\d+)?)`
)

type numericPattern struct {
	field string
	unit  string
	re    *regexp.Regexp
}

func label(alts, value string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + alts + `)` + sep + value)
}

// numericPatterns are tried in order; the first hit for a field wins.
var numericPatterns = []numericPattern{
	{constants.FieldAge, "years", label(`年齡|\bage`, `(\d{1,3})`)},
	{constants.FieldAge, "years", regexp.MustCompile(`(\d{1,3})\s*歲`)},
	{constants.FieldHeightCm, "cm", label(`身高|height`, num)},
	{constants.FieldWeightKg, "kg", label(`體重|weight`, num)},
	{constants.FieldBMI, "kg/m2", label(`身體質量指數|BMI`, num)},

	{constants.FieldTotalCholesterol, "mg/dL", label(`總膽固醇|total cholesterol|T-?CHO|\bTC\b`, num)},
	{constants.FieldLDLCholesterol, "mg/dL", label(`低密度脂蛋白(?:膽固醇)?|\bLDL(?:-C)?(?: cholesterol)?`, num)},
	{constants.FieldHDLCholesterol, "mg/dL", label(`高密度脂蛋白(?:膽固醇)?|\bHDL(?:-C)?(?: cholesterol)?`, num)},
	{constants.FieldTriglycerides, "mg/dL", label(`三酸甘油(?:酯|脂)|triglycerides?|\bTG\b`, num)},
	{constants.FieldSystolic, "mmHg", label(`收縮壓|systolic(?: pressure)?|\bSBP\b`, `(\d{2,3})`)},
	{constants.FieldDiastolic, "mmHg", label(`舒張壓|diastolic(?: pressure)?|\bDBP\b`, `(\d{2,3})`)},
	{constants.FieldFastingGlucose, "mg/dL", label(`空腹血糖|飯前血糖|fasting (?:blood )?glucose|glucose ?\(?AC\)?|GLU-?AC`, num)},
	{constants.FieldHbA1c, "%", label(`糖化血色素|HbA1c|\bA1C\b`, num)},
	{constants.FieldWaistCircumference, "cm", label(`腰圍|waist(?: circumference)?`, num)},
	{constants.FieldHeartRate, "bpm", label(`心跳|心率|脈搏|heart rate|pulse(?: rate)?`, `(\d{2,3})`)},
	{constants.FieldTemperature, "°C", label(`體溫|(?:body )?temperature|\bBT\b`, `(\d{2}(?:\.\d+)?)`)},
	{constants.FieldOxygenSaturation, "%", label(`血氧(?:飽和度)?|oxygen saturation|SpO2`, `(\d{2,3})`)},
	{constants.FieldRespiratoryRate, "breaths/min", label(`呼吸(?:次數|速率)|respiratory rate|\bRR\b`, `(\d{1,2})`)},
	{constants.FieldDrinksPerWeek, "drinks/week", label(`飲酒量?|alcohol(?: consumption)?|drinks(?: per week)?`, num)},
}

var (
	bloodPressureRe = label(`血壓|blood pressure|\bBP\b`, `(\d{2,3})\s*[/\\]\s*(\d{2,3})`)
	sexRe           = label(`性別|\bsex|gender`, `(female|male|男|女|F|M)`)
	identifierRe    = regexp.MustCompile(`(?:^|[^A-Za-z0-9])([A-Z]\d{9})(?:[^0-9]|$)`)
	nameRe          = regexp.MustCompile(`(?i)(?:姓名|patient name|\bname)\s*[:=]\s*([^\n:\d]+?)\s*(?:\n|$|性別|年齡|\bsex\b|\bage\b|\bgender\b)`)
	dateLabelRe     = regexp.MustCompile(`(?i)(?:檢查日期|檢驗日期|報告日期|採檢日期|test date|exam(?:ination)? date|report date|\bdate)[^\n]*`)
	exerciseLineRe  = regexp.MustCompile(`(?i)(?:運動|exercise|physical activity)[^\n]*`)
	exerciseFreqRe  = regexp.MustCompile(`(?i)(\d+)\s*(?:次|times?|x\b)`)
)

type categoricalPattern struct {
	value string
	re    *regexp.Regexp
}

// smokingPatterns are checked in order; former comes first so "戒菸" is never
// read as a current smoker.
var smokingPatterns = []categoricalPattern{
	{"former", regexp.MustCompile(`(?i)曾經吸菸|已戒菸|戒菸|former smoker|ex-smoker|quit smoking|smoking\s*:?\s*former`)},
	{"never", regexp.MustCompile(`(?i)吸菸\s*:?\s*(?:否|無)|從不吸菸|不吸菸|never smoked|non-?smoker|smoking\s*:?\s*(?:no|never|none)\b`)},
	{"current", regexp.MustCompile(`(?i)吸菸\s*:?\s*(?:是|有)|正在吸菸|current smoker|smoker\s*:?\s*yes|smoking\s*:?\s*(?:yes|current)\b`)},
}

var alcoholPatterns = []categoricalPattern{
	{"no", regexp.MustCompile(`(?i)飲酒\s*:?\s*(?:否|無)|不飲酒|non-?drinker|drinks\s*:?\s*no\b|alcohol\s*:?\s*(?:no|none)\b`)},
	{"yes", regexp.MustCompile(`(?i)飲酒\s*:?\s*(?:是|有)|regular drinker|drinks\s*:?\s*yes\b|alcohol\s*:?\s*yes\b`)},
}

var exercisePeriods = []categoricalPattern{
	{"weekly", regexp.MustCompile(`(?i)週|周|星期|week`)},
	{"monthly", regexp.MustCompile(`(?i)月|month`)},
	{"daily", regexp.MustCompile(`(?i)每天|每日|天|\bday|daily`)},
}

func matchCategory(patterns []categoricalPattern, text string) (string, string, bool) {
	for _, p := range patterns {
		if m := p.re.FindString(text); m != "" {
			return p.value, m, true
		}
	}
	return "", "", false
}
