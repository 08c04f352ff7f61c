package template

import (
	"log/slog"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

// MatchResult is the outcome of Matcher.Match. Record is nil when nothing matched.
type MatchResult struct {
	Matched    bool
	TemplateID string
	Confidence float64
	Record     *entity.ExtractionRecord
}

// Matcher scores normalized text against a registry.
type Matcher struct {
	registry *Registry
	logger   *slog.Logger
}

func NewMatcher(registry *Registry, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{registry: registry, logger: logger}
}

// Match walks the registry in order and returns the first template whose
// confidence reaches its own threshold. Later templates are not scored once a
// match is found, even if they would score higher. When no template is
// acceptable the result is unmatched; the generic template only wins by
// clearing its own threshold.
func (m *Matcher) Match(text string) MatchResult {
	for _, t := range m.registry.templates {
		if !t.HeaderMatches(text) {
			continue
		}
		fields, conf := t.Apply(text)
		if conf < t.AcceptanceThreshold {
			m.logger.Debug("template.match.rejected",
				"template_id", t.ID, "confidence", conf, "threshold", t.AcceptanceThreshold)
			continue
		}
		rec := entity.NewRecord(constants.SourceTemplate, conf)
		for k, v := range fields {
			rec.Set(k, v)
		}
		m.logger.Debug("template.match.ok",
			"template_id", t.ID, "confidence", conf, "fields", len(fields))
		return MatchResult{Matched: true, TemplateID: t.ID, Confidence: conf, Record: &rec}
	}
	return MatchResult{}
}
