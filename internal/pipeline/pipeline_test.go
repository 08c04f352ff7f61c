package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/extract"
	"github.com/joseph-ayodele/health-report-parser/internal/fallback"
	"github.com/joseph-ayodele/health-report-parser/internal/guideline"
	"github.com/joseph-ayodele/health-report-parser/internal/ocr"
	"github.com/joseph-ayodele/health-report-parser/internal/template"
)

const fullReport = `國立臺灣大學醫學院附設醫院 臺大醫院 健康檢查報告
血壓(mmHg): 135/88
總膽固醇: 245
三酸甘油酯: 180
飯前血糖: 102
BMI: 27.5
脈搏: 80
體溫: 36.8
血氧: 97
檢查日期: 113年11月15日`

// Four of seven required entries: no template clears its threshold.
const partialReport = `健康檢查
血壓: 120/80
BMI: 22
脈搏: 70
體溫: 36.5
檢查日期: 2024/11/15`

type fakeRecognizer struct {
	texts map[string]string
	fail  map[string]bool
}

func (f *fakeRecognizer) Recognize(_ context.Context, img ocr.Image) ([]entity.TextBlock, error) {
	key := img.Path
	if key == "" {
		key = string(img.Data)
	}
	if f.fail[key] {
		return nil, common.NewAppError(common.CodeRecognitionFailed, "engine crashed", nil)
	}
	var blocks []entity.TextBlock
	for _, line := range strings.Split(f.texts[key], "\n") {
		blocks = append(blocks, entity.TextBlock{Text: line, Confidence: 0.9})
	}
	return blocks, nil
}

type fakeRasterizer struct {
	pages map[string][]string
	err   error
}

func (f *fakeRasterizer) ToImages(_ context.Context, pdf []byte, _ int) ([]ocr.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []ocr.Image
	for i, p := range f.pages[string(pdf)] {
		out = append(out, ocr.Image{Page: i + 1, Data: []byte(p)})
	}
	return out, nil
}

func newOrchestrator(t *testing.T, rec ocr.Recognizer, rast ocr.Rasterizer, opts ...Option) *Orchestrator {
	t.Helper()
	reg, err := template.Default()
	require.NoError(t, err)
	tbl, err := guideline.Default()
	require.NoError(t, err)
	return New(template.NewMatcher(reg, nil), extract.New(tbl), rec, rast, opts...)
}

func doc(path string) *Document {
	return &Document{ID: path, Path: path, Data: []byte(path)}
}

func TestParseFullTemplateReport(t *testing.T) {
	var calls atomic.Int32
	fb := fallback.New(fallback.ExtractorFunc(func(context.Context, fallback.Input) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("must not be called")
	}))
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{"a.png": fullReport}}, nil, WithFallback(fb))

	rep, err := o.Parse(context.Background(), doc("a.png"))
	require.NoError(t, err)
	assert.Zero(t, calls.Load())

	assert.Equal(t, "ntuh", rep.TemplateID)
	assert.Equal(t, constants.SourceMerged, rep.Source, "template plus the extractor's date")
	assert.InDelta(t, 1.0, rep.ConfidenceScore, 1e-9)
	assert.InDelta(t, 1.0, rep.Completeness, 1e-9)
	assert.Equal(t, constants.RiskHigh, rep.VitalSigns[constants.FieldTotalCholesterol].RiskLevel)
	assert.Equal(t, 135.0, rep.VitalSigns[constants.FieldSystolic].Value)
	assert.Equal(t, 27.5, rep.PatientInfo[constants.FieldBMI])
	require.NotNil(t, rep.TestDate)
	assert.Equal(t, "2024-11-15", rep.TestDate.String())
	assert.Empty(t, rep.ParsingErrors)
	assert.Contains(t, rep.RawText, "臺大醫院")
}

func TestParseRunsFallbackBelowThreshold(t *testing.T) {
	var got fallback.Input
	fb := fallback.New(fallback.ExtractorFunc(func(_ context.Context, in fallback.Input) ([]byte, error) {
		got = in
		return []byte("```json\n{\"totalCholesterol\": 210, \"fastingGlucose\": 95, \"oxygenSaturation\": 97, \"heartRate\": 99}\n```"), nil
	}), fallback.WithInitialBackoff(time.Millisecond))
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{"b.jpg": partialReport}}, nil, WithFallback(fb))

	rep, err := o.Parse(context.Background(), doc("b.jpg"))
	require.NoError(t, err)

	assert.Equal(t, "b.jpg", got.DocumentID)
	assert.Equal(t, "image/jpeg", got.MIMEType)
	assert.Equal(t, []byte("b.jpg"), got.Data)
	assert.Contains(t, got.Text, "血壓: 120/80")

	assert.Empty(t, rep.TemplateID)
	assert.Equal(t, constants.SourceMerged, rep.Source)
	assert.InDelta(t, 1.0, rep.Completeness, 1e-9)
	assert.Equal(t, 70.0, rep.VitalSigns[constants.FieldHeartRate].Value, "OCR value beats fallback")
	assert.Equal(t, constants.RiskBorderline, rep.VitalSigns[constants.FieldTotalCholesterol].RiskLevel)
	assert.InDelta(t, 0.9, rep.ConfidenceScore, 1e-9, "OCR contributed the most fields")
}

func TestParseCapturedBMIBeatsDerived(t *testing.T) {
	const text = `健康檢查
身高: 170 cm
體重: 70 kg
血壓: 120/80
檢查日期: 2024/11/15`
	fb := fallback.New(fallback.ExtractorFunc(func(context.Context, fallback.Input) ([]byte, error) {
		return []byte(`{"bmi": 23.0}`), nil
	}), fallback.WithInitialBackoff(time.Millisecond))
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{"h.png": text}}, nil, WithFallback(fb))

	rep, err := o.Parse(context.Background(), doc("h.png"))
	require.NoError(t, err)
	assert.Equal(t, 23.0, rep.PatientInfo[constants.FieldBMI])
	assert.Equal(t, 23.0, rep.VitalSigns[constants.FieldBMI].Value)
}

func TestParseDerivesBMIWhenNoSourceCapturedIt(t *testing.T) {
	const text = `健康檢查
身高: 170 cm
體重: 70 kg
檢查日期: 2024/11/15`
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{"h.png": text}}, nil)

	rep, err := o.Parse(context.Background(), doc("h.png"))
	require.NoError(t, err)
	assert.Equal(t, 24.2, rep.PatientInfo[constants.FieldBMI])
}

func TestParseFallbackExhaustedIsRecorded(t *testing.T) {
	fb := fallback.New(fallback.ExtractorFunc(func(context.Context, fallback.Input) ([]byte, error) {
		return []byte("no idea"), nil
	}), fallback.WithInitialBackoff(time.Millisecond), fallback.WithMaxRetries(2))
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{"b.png": partialReport}}, nil, WithFallback(fb))

	rep, err := o.Parse(context.Background(), doc("b.png"))
	require.NoError(t, err)
	assert.Equal(t, constants.SourceOCR, rep.Source)
	assert.InDelta(t, 4.0/7.0, rep.Completeness, 1e-9)
	require.Len(t, rep.ParsingErrors, 1)
	assert.Contains(t, rep.ParsingErrors[0], common.CodeFallbackExhausted)
}

func TestParseAtThresholdDoesNotTrigger(t *testing.T) {
	var calls atomic.Int32
	fb := fallback.New(fallback.ExtractorFunc(func(context.Context, fallback.Input) ([]byte, error) {
		calls.Add(1)
		return []byte(`{"oxygenSaturation": 97}`), nil
	}), fallback.WithThreshold(4.0/7.0))
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{"b.png": partialReport}}, nil, WithFallback(fb))

	rep, err := o.Parse(context.Background(), doc("b.png"))
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
	assert.InDelta(t, 4.0/7.0, rep.Completeness, 1e-9)
}

func TestParsePDFPages(t *testing.T) {
	lines := strings.Split(fullReport, "\n")
	rast := &fakeRasterizer{pages: map[string][]string{"r.pdf": {"p1", "p2"}}}
	rec := &fakeRecognizer{texts: map[string]string{
		"p1": strings.Join(lines[:5], "\n"),
		"p2": strings.Join(lines[5:], "\n"),
	}}
	o := newOrchestrator(t, rec, rast)

	rep, err := o.Parse(context.Background(), doc("r.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "ntuh", rep.TemplateID)
	assert.InDelta(t, 1.0, rep.Completeness, 1e-9)
}

func TestParseErrors(t *testing.T) {
	o := newOrchestrator(t, &fakeRecognizer{}, &fakeRasterizer{err: errors.New("corrupt xref")})

	_, err := o.Parse(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	_, err = o.Parse(context.Background(), &Document{})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = o.Parse(context.Background(), doc("notes.docx"))
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)

	_, err = o.Parse(context.Background(), doc("bad.pdf"))
	assert.ErrorIs(t, err, common.ErrConversionFailed)
	assert.Contains(t, err.Error(), "corrupt xref")

	_, err = o.Parse(context.Background(), &Document{Path: "/does/not/exist.png"})
	assert.ErrorIs(t, err, common.ErrConversionFailed)

	o = newOrchestrator(t, &fakeRecognizer{}, &fakeRasterizer{})
	_, err = o.Parse(context.Background(), doc("empty.pdf"))
	assert.ErrorIs(t, err, common.ErrConversionFailed)
}

func TestParseRecognitionFailureYieldsEmptyReport(t *testing.T) {
	o := newOrchestrator(t, &fakeRecognizer{fail: map[string]bool{"x.png": true}}, nil)

	rep, err := o.Parse(context.Background(), doc("x.png"))
	require.NoError(t, err)
	assert.True(t, rep.Empty())
	assert.Zero(t, rep.Completeness)
	require.Len(t, rep.ParsingErrors, 1)
	assert.Contains(t, rep.ParsingErrors[0], common.CodeRecognitionFailed)
}

type preparerFunc func(ctx context.Context, img ocr.Image) (ocr.Image, error)

func (f preparerFunc) Prepare(ctx context.Context, img ocr.Image) (ocr.Image, error) {
	return f(ctx, img)
}

func TestParseRecognizesPreparedImage(t *testing.T) {
	var seen ocr.Image
	prep := preparerFunc(func(_ context.Context, img ocr.Image) (ocr.Image, error) {
		seen = img
		return ocr.Image{Page: img.Page, Data: []byte("upright")}, nil
	})
	rec := &fakeRecognizer{texts: map[string]string{"upright": fullReport}}
	o := newOrchestrator(t, rec, nil, WithPreparer(prep))

	rep, err := o.Parse(context.Background(), doc("a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a.jpg"), seen.Data)
	assert.Equal(t, "ntuh", rep.TemplateID)
}

func TestParsePreparerFailureKeepsOriginal(t *testing.T) {
	prep := preparerFunc(func(_ context.Context, img ocr.Image) (ocr.Image, error) {
		return img, common.NewAppError(common.CodeRecognitionFailed, "decode image", nil)
	})
	rec := &fakeRecognizer{texts: map[string]string{"a.png": fullReport}}
	o := newOrchestrator(t, rec, nil, WithPreparer(prep))

	rep, err := o.Parse(context.Background(), doc("a.png"))
	require.NoError(t, err)
	assert.Equal(t, "ntuh", rep.TemplateID)
	assert.Empty(t, rep.ParsingErrors)
}

func TestParsePDFPagesSkipPreparer(t *testing.T) {
	var calls atomic.Int32
	prep := preparerFunc(func(_ context.Context, img ocr.Image) (ocr.Image, error) {
		calls.Add(1)
		return img, nil
	})
	rast := &fakeRasterizer{pages: map[string][]string{"r.pdf": {"p1"}}}
	rec := &fakeRecognizer{texts: map[string]string{"p1": fullReport}}
	o := newOrchestrator(t, rec, rast, WithPreparer(prep))

	_, err := o.Parse(context.Background(), doc("r.pdf"))
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestParseDetectsFormatFromContent(t *testing.T) {
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{}}, &fakeRasterizer{pages: map[string][]string{}})
	_, err := o.Parse(context.Background(), &Document{Data: []byte("%PDF-1.7 ...")})
	assert.ErrorIs(t, err, common.ErrConversionFailed, "sniffed as PDF, no pages rendered")
}

func TestParseBatchIsolation(t *testing.T) {
	rec := &fakeRecognizer{texts: map[string]string{"1.png": fullReport, "3.png": partialReport}}
	o := newOrchestrator(t, rec, &fakeRasterizer{err: common.NewAppError(common.CodeConversionFailed, "encrypted", nil)},
		WithConcurrency(2))

	results := o.ParseBatch(context.Background(), []*Document{doc("1.png"), doc("2.pdf"), doc("3.png")})
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	require.NoError(t, results[0].Err)
	assert.Equal(t, "ntuh", results[0].Report.TemplateID)
	assert.ErrorIs(t, results[1].Err, common.ErrConversionFailed)
	assert.Nil(t, results[1].Report)
	require.NoError(t, results[2].Err)
	assert.InDelta(t, 4.0/7.0, results[2].Report.Completeness, 1e-9)

	s := Summarize(results)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 1.0, s.Completeness, 1e-9)
	hr, ok := s.Record.Float(constants.FieldHeartRate)
	require.True(t, ok)
	assert.Equal(t, 80.0, hr, "earlier document wins")
}

func TestParseBatchCanceled(t *testing.T) {
	o := newOrchestrator(t, &fakeRecognizer{texts: map[string]string{"1.png": fullReport}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := o.ParseBatch(ctx, []*Document{doc("1.png"), doc("2.png")})
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Nil(t, r.Report)
	}
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMIME("PDF", nil))
	assert.Equal(t, "image/png", DetectMIME("", []byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "application/octet-stream", DetectMIME("", nil))
}
