// Package async runs report parsing on a bounded worker pool and records each
// job's outcome in the report job store.
package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one queued parse.
type Job struct {
	JobID       uuid.UUID
	Document    *pipeline.Document
	SubmittedAt time.Time
	TraceID     string
}

// Queue accepts jobs until it is shut down.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Parser is the part of the pipeline the workers need.
type Parser interface {
	Parse(ctx context.Context, doc *pipeline.Document) (*entity.ParsedHealthReport, error)
}
