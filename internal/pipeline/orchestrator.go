// Package pipeline drives one document through detection, conversion,
// template matching, pattern extraction, scoring, the conditional model
// fallback, merging and classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/completeness"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/extract"
	"github.com/joseph-ayodele/health-report-parser/internal/fallback"
	"github.com/joseph-ayodele/health-report-parser/internal/merge"
	"github.com/joseph-ayodele/health-report-parser/internal/ocr"
	"github.com/joseph-ayodele/health-report-parser/internal/template"
	"github.com/joseph-ayodele/health-report-parser/internal/textnorm"
)

const (
	DefaultConcurrency = 4
	DefaultDPI         = 300

	tracerName = "github.com/joseph-ayodele/health-report-parser/internal/pipeline"
)

// ErrEmptyDocument is returned for a nil document or one with neither a
// path nor content.
var ErrEmptyDocument = fmt.Errorf("pipeline: empty document reference: %w", common.ErrInvalidInput)

// Orchestrator owns the per-document state machine. Its collaborators are
// read-only after construction, so one Orchestrator serves any number of
// concurrent Parse calls.
type Orchestrator struct {
	matcher     *template.Matcher
	extractor   *extract.Extractor
	recognizer  ocr.Recognizer
	rasterizer  ocr.Rasterizer
	preparer    ocr.Preparer
	fallback    *fallback.Orchestrator
	concurrency int
	dpi         int
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFallback enables the model-assisted pass.
func WithFallback(f *fallback.Orchestrator) Option {
	return func(o *Orchestrator) { o.fallback = f }
}

// WithPreparer preprocesses JPG and PNG documents before recognition. PDF
// pages are rendered at a fixed DPI and skip it.
func WithPreparer(p ocr.Preparer) Option {
	return func(o *Orchestrator) { o.preparer = p }
}

// WithConcurrency bounds ParseBatch.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithDPI(dpi int) Option {
	return func(o *Orchestrator) {
		if dpi > 0 {
			o.dpi = dpi
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider replaces the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

func New(matcher *template.Matcher, extractor *extract.Extractor, recognizer ocr.Recognizer, rasterizer ocr.Rasterizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		matcher:     matcher,
		extractor:   extractor,
		recognizer:  recognizer,
		rasterizer:  rasterizer,
		concurrency: DefaultConcurrency,
		dpi:         DefaultDPI,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Parse runs the full pipeline for one document. The only errors are an
// empty document, UNSUPPORTED_FORMAT, CONVERSION_FAILED and caller
// cancellation before work starts; every other problem is recorded in the
// report's parsing errors.
func (o *Orchestrator) Parse(ctx context.Context, doc *Document) (*entity.ParsedHealthReport, error) {
	rep, _, err := o.parse(ctx, doc)
	return rep, err
}

func (o *Orchestrator) parse(ctx context.Context, doc *Document) (*entity.ParsedHealthReport, *entity.ExtractionRecord, error) {
	if doc.empty() {
		return nil, nil, ErrEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx = common.WithDocumentID(ctx, id)
	ctx, span := o.tracer.Start(ctx, "pipeline.parse", trace.WithAttributes(attribute.String("document.id", id)))
	defer span.End()
	log := common.LoggerWith(ctx, o.logger)
	start := time.Now()
	log.Info("pipeline.parse.start", "path", doc.Path)

	// DETECT
	ext := doc.ResolvedExt()
	format := constants.MapExtToFormat(ext)
	if format == "" {
		log.Warn("pipeline.parse.failed", "stage", constants.StageUnsupportedFormat, "ext", ext)
		return nil, nil, failed(span, common.NewAppError(common.CodeUnsupportedFormat, fmt.Sprintf("unsupported file type %q", ext), nil))
	}
	data := doc.Data
	if len(data) == 0 {
		b, err := os.ReadFile(doc.Path)
		if err != nil {
			log.Warn("pipeline.parse.failed", "stage", constants.StageConversionFailed, "error", err)
			return nil, nil, failed(span, common.NewAppError(common.CodeConversionFailed, "read document", err))
		}
		data = b
	}

	span.SetAttributes(attribute.String("document.format", format))

	// CONVERT
	var images []ocr.Image
	if format == constants.PDF {
		log.Debug("pipeline.stage", "stage", constants.StageConvert, "dpi", o.dpi)
		pages, err := o.rasterizer.ToImages(ctx, data, o.dpi)
		if err == nil && len(pages) == 0 {
			err = common.NewAppError(common.CodeConversionFailed, "no pages rendered", nil)
		}
		if err != nil {
			if !errors.Is(err, common.ErrConversionFailed) {
				err = common.NewAppError(common.CodeConversionFailed, "rasterize", err)
			}
			log.Warn("pipeline.parse.failed", "stage", constants.StageConversionFailed, "error", err)
			return nil, nil, failed(span, fmt.Errorf("convert %s: %w", id, err))
		}
		images = pages
	} else {
		img := ocr.Image{Page: 1, Path: doc.Path, Data: doc.Data}
		if o.preparer != nil {
			prepared, err := o.preparer.Prepare(ctx, ocr.Image{Page: 1, Path: doc.Path, Data: data})
			if err != nil {
				log.Warn("pipeline.preprocess.failed", "error", err)
			} else {
				img = prepared
			}
		}
		images = []ocr.Image{img}
	}

	rep := entity.NewReport(id, doc.Path)

	var blocks []entity.TextBlock
	for _, img := range images {
		b, err := o.recognizer.Recognize(ctx, img)
		if err != nil {
			if !errors.Is(err, common.ErrRecognitionFailed) {
				err = common.NewAppError(common.CodeRecognitionFailed, fmt.Sprintf("page %d", img.Page), err)
			}
			log.Warn("pipeline.recognize.failed", "stage", constants.StageRecognitionFailed, "page", img.Page, "error", err)
			span.RecordError(err)
			rep.Source = constants.SourceOCR
			rep.ParsingErrors = append(rep.ParsingErrors, err.Error())
			rec := entity.NewRecord(constants.SourceOCR, 0)
			return rep, &rec, nil
		}
		blocks = append(blocks, b...)
	}
	text := textnorm.Normalize(ocr.Text(blocks))
	rep.RawText = text

	// TEMPLATE_MATCH
	var templateRec *entity.ExtractionRecord
	if m := o.matcher.Match(text); m.Matched {
		templateRec = m.Record
		o.extractor.Classify(templateRec)
		rep.TemplateID = m.TemplateID
		log.Debug("pipeline.stage", "stage", constants.StageTemplateMatch, "template_id", m.TemplateID, "confidence", m.Confidence)
	} else {
		log.Debug("pipeline.stage", "stage", constants.StageTemplateMatch, "matched", false)
	}

	// OCR_EXTRACT
	ocrRec, problems := o.extractor.Extract(text)
	ocrRec.Confidence = ocr.MeanConfidence(blocks)
	rep.ParsingErrors = append(rep.ParsingErrors, problems...)
	log.Debug("pipeline.stage", "stage", constants.StageOCRExtract, "fields", ocrRec.Len(), "confidence", ocrRec.Confidence)

	// SCORE
	current := merge.Chain(templateRec, &ocrRec)
	o.extractor.Annotate(&current)
	score := completeness.Score(current)
	log.Debug("pipeline.stage", "stage", constants.StageScore, "completeness", score)

	// FALLBACK
	var fallbackRec *entity.ExtractionRecord
	if o.fallback.ShouldTrigger(current) {
		log.Info("pipeline.stage", "stage", constants.StageFallback, "completeness", score,
			"threshold", o.fallback.Threshold(), "missing", completeness.Missing(current))
		fctx, fspan := o.tracer.Start(ctx, "pipeline.fallback", trace.WithAttributes(attribute.Float64("completeness", score)))
		res := o.fallback.Run(fctx, fallback.Input{
			DocumentID: id,
			Path:       doc.Path,
			Text:       text,
			Data:       data,
			MIMEType:   DetectMIME(ext, data),
		})
		fspan.SetAttributes(attribute.Bool("fallback.exhausted", res.Exhausted), attribute.Int("fallback.fields", res.Record.Len()))
		fspan.End()
		rep.ParsingErrors = append(rep.ParsingErrors, res.Errors...)
		if !res.Exhausted {
			o.extractor.Classify(&res.Record)
			fallbackRec = &res.Record
		}
	}

	// MERGE
	final := merge.Chain(templateRec, &ocrRec, fallbackRec)

	// CLASSIFY
	o.extractor.Annotate(&final)
	fill(rep, final)
	rep.Completeness = completeness.Score(final)

	span.SetAttributes(
		attribute.String("report.source", string(rep.Source)),
		attribute.String("report.template_id", rep.TemplateID),
		attribute.Float64("report.completeness", rep.Completeness),
		attribute.Int("report.errors", len(rep.ParsingErrors)),
	)
	log.Info("pipeline.parse.ok",
		"stage", constants.StageDone,
		"source", rep.Source,
		"template_id", rep.TemplateID,
		"confidence", rep.ConfidenceScore,
		"completeness", rep.Completeness,
		"errors", len(rep.ParsingErrors),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rep, &final, nil
}

func failed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}
