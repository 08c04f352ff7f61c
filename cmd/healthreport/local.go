package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/app"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/completeness"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/export"
	"github.com/joseph-ayodele/health-report-parser/internal/ingest"
	"github.com/joseph-ayodele/health-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/health-report-parser/internal/repository"
)

// setup loads configuration and a stderr logger, applying flag overrides.
func setup(cmd *cobra.Command) (*common.Config, *slog.Logger, error) {
	cfg := common.LoadConfig()
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := common.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse one report and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			p, err := app.NewPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			doc, err := ingest.NewLoader(cfg.Pipeline.MaxFileSize, logger).LoadFile(args[0])
			if err != nil {
				return err
			}
			rep, err := p.Parse(ctx, doc)
			if err != nil {
				return err
			}
			if noRaw, _ := cmd.Flags().GetBool("no-raw"); noRaw {
				rep.RawText = ""
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().Bool("no-raw", false, "omit the recognized text from the output")
	return cmd
}

type batchSummary struct {
	Root         string            `json:"root"`
	Stats        ingest.DirStats   `json:"stats"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Completeness float64           `json:"completeness"`
	Missing      []string          `json:"missing"`
	Errors       map[string]string `json:"errors,omitempty"`
	Output       string            `json:"output,omitempty"`
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Parse every report under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out, _ := cmd.Flags().GetString("out")
			store, _ := cmd.Flags().GetBool("store")
			includeHidden, _ := cmd.Flags().GetBool("include-hidden")
			if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
				cfg.Pipeline.BatchConcurrency = c
			}

			p, err := app.NewPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			loader := ingest.NewLoader(cfg.Pipeline.MaxFileSize, logger)
			scanned, stats, err := loader.ScanDirectory(ctx, args[0], !includeHidden)
			if err != nil {
				return err
			}
			docs := ingest.Documents(scanned)
			results := p.ParseBatch(ctx, docs)

			if store {
				db, err := app.OpenStore(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := record(ctx, repository.NewReportJobRepository(db, logger), docs, results); err != nil {
					return err
				}
			}

			sum := pipeline.Summarize(results)
			summary := batchSummary{
				Root:         args[0],
				Stats:        stats,
				Succeeded:    sum.Succeeded,
				Failed:       sum.Failed,
				Completeness: sum.Completeness,
				Missing:      completeness.Missing(sum.Record),
				Errors:       map[string]string{},
			}
			for _, r := range scanned {
				if r.Err != "" {
					summary.Errors[r.Path] = r.Err
				}
			}
			for _, r := range results {
				if r.Err != nil {
					summary.Errors[docs[r.Index].Path] = r.Err.Error()
				}
			}

			if out != "" {
				reports := make([]*entity.ParsedHealthReport, 0, len(results))
				for _, r := range results {
					if r.Report != nil {
						reports = append(reports, r.Report)
					}
				}
				b, err := export.NewService(nil, logger).ReportsXLSX(ctx, reports)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, b, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				summary.Output, _ = filepath.Abs(out)
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().String("out", "", "write an XLSX workbook of the parsed reports")
	cmd.Flags().Bool("store", false, "record each document as a job in the configured database")
	cmd.Flags().Bool("include-hidden", false, "also parse hidden files and directories")
	cmd.Flags().Int("concurrency", 0, "documents parsed in parallel (overrides BATCH_CONCURRENCY)")
	return cmd
}

// record stores one finished job per parsed document.
func record(ctx context.Context, jobs repository.ReportJobRepository, docs []*pipeline.Document, results []pipeline.BatchResult) error {
	for _, r := range results {
		doc := docs[r.Index]
		job, err := jobs.Start(ctx, doc.Path, doc.SHA256, constants.MapExtToFormat(doc.Ext), constants.JobStatusRunning)
		if err != nil {
			return fmt.Errorf("record %s: %w", doc.Path, err)
		}
		if r.Err != nil {
			err = jobs.Fail(ctx, job.ID, r.Err.Error())
		} else {
			err = jobs.Finish(ctx, job.ID, r.Report)
		}
		if err != nil {
			return fmt.Errorf("record %s: %w", doc.Path, err)
		}
	}
	return nil
}
