package guideline

import "github.com/joseph-ayodele/health-report-parser/constants"

// Classifier maps a value onto a risk level. Implementations are chosen when
// the Table is built and must be safe for concurrent use.
type Classifier interface {
	Classify(g Guideline, value float64) constants.RiskLevel
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(g Guideline, value float64) constants.RiskLevel

func (f ClassifierFunc) Classify(g Guideline, value float64) constants.RiskLevel {
	return f(g, value)
}

// BracketClassifier picks the last bracket whose lower bound is <= value, so a
// value sitting exactly on a cutoff lands in the upper bracket.
type BracketClassifier struct{}

func (BracketClassifier) Classify(g Guideline, value float64) constants.RiskLevel {
	if len(g.Brackets) == 0 {
		return constants.RiskNormal
	}
	level := g.Brackets[0].Level
	for _, b := range g.Brackets[1:] {
		if value < *b.From {
			break
		}
		level = b.Level
	}
	return level
}
