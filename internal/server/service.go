// Package server exposes the parser over gRPC.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/export"
	"github.com/joseph-ayodele/health-report-parser/internal/ingest"
	"github.com/joseph-ayodele/health-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/health-report-parser/internal/repository"
)

// Parser parses one document synchronously.
type Parser interface {
	Parse(ctx context.Context, doc *pipeline.Document) (*entity.ParsedHealthReport, error)
}

// Submitter queues a document and returns the job ID.
type Submitter interface {
	Submit(ctx context.Context, doc *pipeline.Document) (uuid.UUID, error)
}

// ParserService implements ParserServer.
//
// Document requests carry either "path" (a file readable by the server) or
// "content" (base64) plus "ext". Parse answers {"report": {...}}, Submit
// {"job_id": "..."}, GetJob {"job": {...}} and ListJobs {"jobs": [...]};
// ListJobs and ExportJobs take optional "status" and "limit". ExportJobs
// answers {"xlsx": "<base64>"}.
type ParserService struct {
	parser    Parser
	loader    *ingest.Loader
	submitter Submitter
	jobs      repository.ReportJobRepository
	exporter  *export.Service
	logger    *slog.Logger
}

// NewParserService wires the service. submitter, jobs and exporter may be
// nil; the methods that need them then answer Unimplemented.
func NewParserService(parser Parser, loader *ingest.Loader, submitter Submitter, jobs repository.ReportJobRepository, exporter *export.Service, logger *slog.Logger) *ParserService {
	if logger == nil {
		logger = slog.Default()
	}
	if loader == nil {
		loader = ingest.NewLoader(0, logger)
	}
	return &ParserService{parser: parser, loader: loader, submitter: submitter, jobs: jobs, exporter: exporter, logger: logger}
}

func (s *ParserService) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := s.document(req)
	if err != nil {
		return nil, err
	}
	rep, err := s.parser.Parse(ctx, doc)
	if err != nil {
		s.logger.Error("parse failed", "doc_id", doc.ID, "error", err)
		return nil, common.ToStatus(err)
	}
	v, err := toValue(rep)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"report": v}}, nil
}

func (s *ParserService) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.submitter == nil {
		return nil, common.UnimplementedError("async processing is not configured")
	}
	doc, err := s.document(req)
	if err != nil {
		return nil, err
	}
	id, err := s.submitter.Submit(ctx, doc)
	if err != nil {
		s.logger.Error("submit failed", "doc_id", doc.ID, "error", err)
		return nil, common.ToStatus(err)
	}
	s.logger.Info("document submitted", "doc_id", doc.ID, "job_id", id)
	return structpb.NewStruct(map[string]any{"job_id": id.String()})
}

func (s *ParserService) GetJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.jobs == nil {
		return nil, common.UnimplementedError("job store is not configured")
	}
	raw := strings.TrimSpace(req.GetFields()["job_id"].GetStringValue())
	if raw == "" {
		return nil, common.InvalidArgumentError("job_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, common.InvalidArgumentError("job_id must be a UUID")
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	v, err := toValue(job)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"job": v}}, nil
}

func (s *ParserService) ListJobs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.jobs == nil {
		return nil, common.UnimplementedError("job store is not configured")
	}
	filter, err := listFilter(req)
	if err != nil {
		return nil, err
	}
	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	if jobs == nil {
		jobs = []*entity.ReportJob{}
	}
	v, err := toValue(jobs)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"jobs": v}}, nil
}

func (s *ParserService) ExportJobs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.exporter == nil {
		return nil, common.UnimplementedError("export is not configured")
	}
	filter, err := listFilter(req)
	if err != nil {
		return nil, err
	}
	xlsx, err := s.exporter.JobsXLSX(ctx, filter)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"xlsx": base64.StdEncoding.EncodeToString(xlsx)})
}

func (s *ParserService) document(req *structpb.Struct) (*pipeline.Document, error) {
	f := req.GetFields()
	path := strings.TrimSpace(f["path"].GetStringValue())
	content := f["content"].GetStringValue()
	switch {
	case path != "" && content != "":
		return nil, common.InvalidArgumentError("path and content are mutually exclusive")
	case path != "":
		doc, err := s.loader.LoadFile(path)
		if err != nil {
			if errors.Is(err, common.ErrUnsupportedFormat) {
				return nil, common.ToStatus(err)
			}
			return nil, common.InvalidArgumentErrorf("load %s: %v", path, err)
		}
		return doc, nil
	case content != "":
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, common.InvalidArgumentError("content must be base64")
		}
		if int64(len(data)) > s.loader.MaxFileSize {
			return nil, common.InvalidArgumentErrorf("content too large: %d bytes", len(data))
		}
		id := strings.TrimSpace(f["document_id"].GetStringValue())
		if id == "" {
			id = uuid.NewString()
		}
		return &pipeline.Document{ID: id, Data: data, Ext: constants.NormalizeExt(f["ext"].GetStringValue())}, nil
	}
	return nil, common.InvalidArgumentError("path or content is required")
}

func listFilter(req *structpb.Struct) (repository.ListFilter, error) {
	f := req.GetFields()
	filter := repository.ListFilter{Limit: int(f["limit"].GetNumberValue())}
	if st := strings.ToUpper(strings.TrimSpace(f["status"].GetStringValue())); st != "" {
		valid := false
		for _, s := range constants.JobStatuses {
			valid = valid || s == st
		}
		if !valid {
			return filter, common.InvalidArgumentErrorf("unknown status %q", st)
		}
		filter.Status = constants.JobStatus(st)
	}
	return filter, nil
}

// toValue converts v through its JSON form.
func toValue(v any) (*structpb.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return structpb.NewValue(generic)
}
