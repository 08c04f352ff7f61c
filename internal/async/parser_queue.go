package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/health-report-parser/internal/repository"
)

type ParserQueue struct {
	parser  Parser
	jobs    repository.ReportJobRepository
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*ParserQueue)(nil)

type Option func(*ParserQueue)

func WithWorkers(n int) Option {
	return func(q *ParserQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ParserQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ParserQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewParserQueue starts the workers. jobs may be nil, in which case outcomes
// are only logged.
func NewParserQueue(parser Parser, jobs repository.ReportJobRepository, logger *slog.Logger, opts ...Option) *ParserQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ParserQueue{
		parser:  parser,
		jobs:    jobs,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ParserQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)
				for job := range q.ch {
					q.process(workerID, job)
				}
				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ParserQueue) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}
	log := q.logger.With("worker_id", workerID, "job_id", job.JobID)

	if q.jobs != nil {
		if err := q.jobs.SetStatus(ctx, job.JobID, constants.JobStatusRunning); err != nil {
			log.Error("job status update failed", "error", err)
		}
	}

	start := time.Now()
	rep, err := q.parser.Parse(ctx, job.Document)
	if err != nil {
		log.Error("processing failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if q.jobs != nil {
			if ferr := q.jobs.Fail(ctx, job.JobID, err.Error()); ferr != nil {
				log.Error("job fail update failed", "error", ferr)
			}
		}
		return
	}
	log.Info("processed document successfully",
		"source", rep.Source, "completeness", rep.Completeness, "elapsed_ms", time.Since(start).Milliseconds())
	if q.jobs != nil {
		if ferr := q.jobs.Finish(ctx, job.JobID, rep); ferr != nil {
			log.Error("job finish update failed", "error", ferr)
		}
	}
}

// Submit records a QUEUED job for doc and enqueues it. The returned ID can be
// polled through the job store.
func (q *ParserQueue) Submit(ctx context.Context, doc *pipeline.Document) (uuid.UUID, error) {
	if doc == nil {
		return uuid.Nil, pipeline.ErrEmptyDocument
	}
	ext := doc.ResolvedExt()
	format := constants.MapExtToFormat(ext)
	if format == "" {
		return uuid.Nil, common.NewAppError(common.CodeUnsupportedFormat, fmt.Sprintf("unsupported file type %q", ext), nil)
	}

	id := uuid.New()
	if q.jobs != nil {
		path := doc.Path
		if path == "" {
			path = doc.ID
		}
		row, err := q.jobs.Start(ctx, path, doc.SHA256, format, constants.JobStatusQueued)
		if err != nil {
			return uuid.Nil, fmt.Errorf("record job: %w", err)
		}
		id = row.ID
	}
	job := Job{JobID: id, Document: doc, SubmittedAt: time.Now(), TraceID: common.RequestIDFromContext(ctx)}
	if err := q.Enqueue(ctx, job); err != nil {
		if q.jobs != nil {
			_ = q.jobs.Fail(context.WithoutCancel(ctx), id, err.Error())
		}
		return uuid.Nil, err
	}
	return id, nil
}

// Enqueue blocks while the queue is full until ctx is done.
func (q *ParserQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "job_id", job.JobID)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job_id", job.JobID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *ParserQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
