// Package export renders parsed reports as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/repository"
)

const (
	SheetReports = "Reports"
	SheetVitals  = "Vitals"
)

// Service produces XLSX bytes for exports.
type Service struct {
	jobs   repository.ReportJobRepository
	logger *slog.Logger
}

// NewService returns an export service. jobs is only needed by JobsXLSX.
func NewService(jobs repository.ReportJobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// summaryVitals are the vital columns of the Reports sheet.
var summaryVitals = []string{
	constants.FieldSystolic, constants.FieldDiastolic, constants.FieldTotalCholesterol,
	constants.FieldFastingGlucose, constants.FieldHeartRate, constants.FieldTemperature,
	constants.FieldOxygenSaturation,
}

// ReportsXLSX writes one row per report on "Reports" and one row per
// classified metric on "Vitals".
func (s *Service) ReportsXLSX(ctx context.Context, reports []*entity.ParsedHealthReport) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_failed", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetReports); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetVitals); err != nil {
		return nil, err
	}

	headers := []any{
		"Document ID", "File Path", "Test Date", "Source", "Template",
		"Confidence", "Completeness", "Age", "Sex", "BMI",
	}
	for _, v := range summaryVitals {
		headers = append(headers, v)
	}
	headers = append(headers, "Smoking", "Parsing Errors")
	if err := f.SetSheetRow(SheetReports, "A1", &headers); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(SheetVitals, "A1", &[]any{
		"Document ID", "Metric", "Value", "Unit", "Reference Range", "Risk Level",
	}); err != nil {
		return nil, err
	}

	row, vrow := 2, 2
	for _, r := range reports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		testDate := ""
		if r.TestDate != nil {
			testDate = r.TestDate.String()
		}
		vals := []any{
			r.DocumentID, r.Path, testDate, string(r.Source), r.TemplateID,
			round(r.ConfidenceScore), round(r.Completeness),
			r.PatientInfo[constants.FieldAge], r.PatientInfo[constants.FieldSex], r.PatientInfo[constants.FieldBMI],
		}
		for _, name := range summaryVitals {
			if m, ok := r.VitalSigns[name]; ok {
				vals = append(vals, m.Value)
			} else {
				vals = append(vals, nil)
			}
		}
		vals = append(vals, r.LifestyleFactors[constants.FieldSmokingStatus], truncate(strings.Join(r.ParsingErrors, "; "), 240))
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetReports, cell, &vals); err != nil {
			return nil, err
		}
		row++

		for _, name := range constants.VitalFields {
			m, ok := r.VitalSigns[name]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(1, vrow)
			if err := f.SetSheetRow(SheetVitals, cell, &[]any{
				r.DocumentID, name, m.Value, m.Unit, m.ReferenceRange, string(m.RiskLevel),
			}); err != nil {
				return nil, err
			}
			vrow++
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(SheetReports, "A", "A", 38) // id
	_ = f.SetColWidth(SheetReports, "B", "B", 48) // path
	_ = f.SetColWidth(SheetReports, "C", "C", 12) // date
	_ = f.SetColWidth(SheetVitals, "A", "A", 38)
	_ = f.SetColWidth(SheetVitals, "B", "B", 22)
	_ = f.SetColWidth(SheetVitals, "E", "F", 16)
	_ = f.SetPanes(SheetReports, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"reports", row-2,
		"metrics", vrow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// JobsXLSX exports the reports of finished jobs in the store.
func (s *Service) JobsXLSX(ctx context.Context, filter repository.ListFilter) ([]byte, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("export: no job store configured")
	}
	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	reports := make([]*entity.ParsedHealthReport, 0, len(jobs))
	for _, j := range jobs {
		if j.Status != string(constants.JobStatusDone) {
			continue
		}
		rep, err := repository.Report(j)
		if err != nil {
			s.logger.Warn("export.job.skipped", "job_id", j.ID, "error", err)
			continue
		}
		reports = append(reports, rep)
	}
	return s.ReportsXLSX(ctx, reports)
}

func round(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
