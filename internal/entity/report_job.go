package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReportJob represents one parse run over a document for data transfer between layers.
type ReportJob struct {
	ID           uuid.UUID       `json:"id"`
	Path         string          `json:"path"`
	ContentHash  string          `json:"content_hash"`
	Format       string          `json:"format"`
	Status       string          `json:"status"`
	Source       *string         `json:"source,omitempty"`
	Confidence   *float64        `json:"confidence,omitempty"`
	Completeness *float64        `json:"completeness,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ReportJSON   json.RawMessage `json:"report_json,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}
