// Package completeness scores how much of the required field set a record carries.
package completeness

import "github.com/joseph-ayodele/health-report-parser/constants"

// Fields is what the scorer needs from a record.
type Fields interface {
	Has(name string) bool
}

// Score returns the fraction of constants.RequiredFields present in rec.
// Fields outside the required set never affect the result.
func Score(rec Fields) float64 {
	total := len(constants.RequiredFields)
	if total == 0 {
		return 1
	}
	return float64(total-len(Missing(rec))) / float64(total)
}

// Missing lists the required entries absent from rec, in declaration order.
func Missing(rec Fields) []string {
	var missing []string
	for _, rf := range constants.RequiredFields {
		if !present(rec, rf) {
			missing = append(missing, rf.Name)
		}
	}
	return missing
}

func present(rec Fields, rf constants.RequiredField) bool {
	for _, f := range rf.Fields {
		if !rec.Has(f) {
			return false
		}
	}
	return true
}
