// Package merge reconciles extraction records from different passes.
package merge

import (
	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

// Merge overlays secondary onto primary. Non-empty primary values always
// win; secondary only fills gaps. Swapping the arguments flips precedence.
func Merge(primary, secondary entity.ExtractionRecord) entity.ExtractionRecord {
	return Chain(&primary, &secondary)
}

// Chain folds records left to right: a field keeps the value of the first
// record that has it. The result takes the confidence of the record that
// contributed the most retained fields (earlier wins a tie). Its source is
// that record's source when only one record contributed and MERGED otherwise.
// Nil entries are skipped. The pipeline calls it as template, OCR, fallback.
func Chain(records ...*entity.ExtractionRecord) entity.ExtractionRecord {
	out := entity.NewRecord(constants.SourceMerged, 0)
	var (
		first        *entity.ExtractionRecord
		best         *entity.ExtractionRecord
		bestCount    int
		contributors int
	)
	for _, r := range records {
		if r == nil {
			continue
		}
		if first == nil {
			first = r
		}
		n := 0
		for name, v := range r.Fields {
			if v.Empty() || out.Has(name) {
				continue
			}
			out.Set(name, v)
			n++
		}
		if n > 0 {
			contributors++
		}
		if best == nil || n > bestCount {
			best, bestCount = r, n
		}
	}

	switch {
	case first == nil:
		return out
	case contributors == 0:
		out.Source, out.Confidence = first.Source, first.Confidence
	case contributors == 1:
		out.Source, out.Confidence = best.Source, best.Confidence
	default:
		out.Confidence = best.Confidence
	}
	return out
}
