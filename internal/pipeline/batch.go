package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/health-report-parser/internal/completeness"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/merge"
)

// BatchResult is the outcome for docs[Index].
type BatchResult struct {
	Index  int
	Report *entity.ParsedHealthReport
	Err    error

	record *entity.ExtractionRecord
}

// ParseBatch parses docs with at most Concurrency documents in flight. One
// document's failure never affects another. After ctx is canceled no new
// document is started; those get ctx.Err().
func (o *Orchestrator) ParseBatch(ctx context.Context, docs []*Document) []BatchResult {
	ctx, span := o.tracer.Start(ctx, "pipeline.batch", trace.WithAttributes(attribute.Int("batch.documents", len(docs))))
	defer span.End()
	results := make([]BatchResult, len(docs))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, doc := range docs {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			rep, rec, err := o.parse(ctx, doc)
			results[i].Report, results[i].record, results[i].Err = rep, rec, err
			return nil
		})
	}
	_ = g.Wait()

	nFailed := 0
	for _, r := range results {
		if r.Err != nil {
			nFailed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", nFailed))
	o.logger.Info("pipeline.batch.done", "documents", len(docs), "failed", nFailed)
	return results
}

// Summary folds the successful documents of a batch into one record.
type Summary struct {
	Record       entity.ExtractionRecord
	Completeness float64
	Succeeded    int
	Failed       int
}

// Summarize merges the records of successful results in input order, so an
// earlier document's value wins over a later one.
func Summarize(results []BatchResult) Summary {
	var s Summary
	recs := make([]*entity.ExtractionRecord, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.record == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		recs = append(recs, r.record)
	}
	s.Record = merge.Chain(recs...)
	s.Completeness = completeness.Score(s.Record)
	return s
}
