package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

const DefaultListLimit = 50

// ListFilter narrows List. Zero values mean no filter and DefaultListLimit.
type ListFilter struct {
	Status constants.JobStatus
	Limit  int
}

type ReportJobRepository interface {
	Start(ctx context.Context, path, contentHash, format string, status constants.JobStatus) (*entity.ReportJob, error)
	SetStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus) error
	Finish(ctx context.Context, jobID uuid.UUID, report *entity.ParsedHealthReport) error
	Fail(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ReportJob, error)
	List(ctx context.Context, filter ListFilter) ([]*entity.ReportJob, error)
}

type reportJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewReportJobRepository(db *DB, log *slog.Logger) ReportJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &reportJobRepo{db: db, log: log}
}

var jobColumns = []string{
	"id", "path", "content_hash", "format", "status", "source", "confidence",
	"completeness", "error_message", "report_json", "started_at", "finished_at",
}

func (r *reportJobRepo) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := r.db.drv.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *reportJobRepo) Start(ctx context.Context, path, contentHash, format string, status constants.JobStatus) (*entity.ReportJob, error) {
	if err := reportJobTable.validate(map[string]string{
		"path": path, "content_hash": contentHash, "format": format, "status": string(status),
	}); err != nil {
		return nil, fmt.Errorf("invalid report job: %w", errors.Join(common.ErrInvalidInput, err))
	}

	job := &entity.ReportJob{
		ID:          uuid.New(),
		Path:        path,
		ContentHash: contentHash,
		Format:      format,
		Status:      string(status),
		StartedAt:   time.Now().UTC(),
	}
	q, args := entsql.Dialect(r.db.dialect).
		Insert(reportJobTable.name).
		Columns("id", "path", "content_hash", "format", "status", "started_at").
		Values(job.ID.String(), job.Path, job.ContentHash, job.Format, job.Status, job.StartedAt).
		Query()
	if _, err := r.exec(ctx, q, args); err != nil {
		r.log.Error("report_job start failed", "path", path, "err", err)
		return nil, err
	}
	r.log.Info("report_job started", "job_id", job.ID, "format", format, "status", status)
	return job, nil
}

func (r *reportJobRepo) SetStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus) error {
	if err := reportJobTable.validate(map[string]string{"status": string(status)}); err != nil {
		return errors.Join(common.ErrInvalidInput, err)
	}
	return r.update(ctx, jobID, map[string]any{"status": string(status)})
}

func (r *reportJobRepo) Finish(ctx context.Context, jobID uuid.UUID, report *entity.ParsedHealthReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	err = r.update(ctx, jobID, map[string]any{
		"status":       string(constants.JobStatusDone),
		"source":       string(report.Source),
		"confidence":   report.ConfidenceScore,
		"completeness": report.Completeness,
		"report_json":  string(body),
		"finished_at":  time.Now().UTC(),
	})
	if err != nil {
		r.log.Error("report_job finish(DONE) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("report_job finished (DONE)", "job_id", jobID, "source", report.Source, "completeness", report.Completeness)
	return nil
}

func (r *reportJobRepo) Fail(ctx context.Context, jobID uuid.UUID, message string) error {
	err := r.update(ctx, jobID, map[string]any{
		"status":        string(constants.JobStatusFailed),
		"error_message": message,
		"finished_at":   time.Now().UTC(),
	})
	if err != nil {
		r.log.Error("report_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("report_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *reportJobRepo) update(ctx context.Context, jobID uuid.UUID, set map[string]any) error {
	u := entsql.Dialect(r.db.dialect).Update(reportJobTable.name)
	for _, col := range jobColumns {
		if v, ok := set[col]; ok {
			u.Set(col, v)
		}
	}
	q, args := u.Where(entsql.EQ("id", jobID.String())).Query()
	n, err := r.exec(ctx, q, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("report job %s: %w", jobID, common.ErrNotFound)
	}
	return nil
}

func (r *reportJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ReportJob, error) {
	b := entsql.Dialect(r.db.dialect)
	t := b.Table(reportJobTable.name)
	q, args := b.Select(jobColumns...).From(t).Where(entsql.EQ("id", jobID.String())).Query()
	jobs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("report job %s: %w", jobID, common.ErrNotFound)
	}
	return jobs[0], nil
}

// List returns jobs newest first.
func (r *reportJobRepo) List(ctx context.Context, filter ListFilter) ([]*entity.ReportJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	b := entsql.Dialect(r.db.dialect)
	t := b.Table(reportJobTable.name)
	sel := b.Select(jobColumns...).From(t)
	if filter.Status != "" {
		sel.Where(entsql.EQ("status", string(filter.Status)))
	}
	q, args := sel.OrderBy(entsql.Desc(t.C("started_at"))).Limit(limit).Query()
	return r.query(ctx, q, args)
}

func (r *reportJobRepo) query(ctx context.Context, q string, args []any) ([]*entity.ReportJob, error) {
	rows, err := r.db.drv.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.log.Warn("report_job rows close failed", "err", err)
		}
	}()

	var out []*entity.ReportJob
	for rows.Next() {
		var (
			id, path, hash, format, status string
			source, errMsg                 sql.NullString
			conf, compl                    sql.NullFloat64
			body                           []byte
			started                        time.Time
			finished                       sql.NullTime
		)
		if err := rows.Scan(&id, &path, &hash, &format, &status, &source, &conf, &compl, &errMsg, &body, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan report_job: %w", err)
		}
		job := &entity.ReportJob{
			Path:        path,
			ContentHash: hash,
			Format:      format,
			Status:      status,
			StartedAt:   started,
		}
		if job.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("report_job id: %w", err)
		}
		if source.Valid {
			job.Source = &source.String
		}
		if errMsg.Valid {
			job.ErrorMessage = &errMsg.String
		}
		if conf.Valid {
			job.Confidence = &conf.Float64
		}
		if compl.Valid {
			job.Completeness = &compl.Float64
		}
		if len(body) > 0 {
			job.ReportJSON = json.RawMessage(body)
		}
		if finished.Valid {
			job.FinishedAt = &finished.Time
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Report decodes the stored report of a finished job.
func Report(job *entity.ReportJob) (*entity.ParsedHealthReport, error) {
	if job == nil || len(job.ReportJSON) == 0 {
		return nil, fmt.Errorf("report job has no report: %w", common.ErrNotFound)
	}
	var rep entity.ParsedHealthReport
	if err := json.Unmarshal(job.ReportJSON, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}
