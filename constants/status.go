package constants

// JobStatus is the canonical status for rows in report_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED" // terminal failure, no report produced
)

// JobStatuses holds the allowed values for the status column in report_job.
var JobStatuses = []string{
	string(JobStatusQueued), string(JobStatusRunning), string(JobStatusDone), string(JobStatusFailed),
}

// Stage names one step of the per-document state machine.
type Stage string

const (
	StageDetect        Stage = "DETECT"
	StageConvert       Stage = "CONVERT"
	StageTemplateMatch Stage = "TEMPLATE_MATCH"
	StageOCRExtract    Stage = "OCR_EXTRACT"
	StageScore         Stage = "SCORE"
	StageFallback      Stage = "FALLBACK"
	StageMerge         Stage = "MERGE"
	StageClassify      Stage = "CLASSIFY"
	StageDone          Stage = "DONE"

	StageUnsupportedFormat Stage = "UNSUPPORTED_FORMAT"
	StageConversionFailed  Stage = "CONVERSION_FAILED"
	StageRecognitionFailed Stage = "RECOGNITION_FAILED"
)

// Source identifies which extraction pass produced a record.
type Source string

const (
	SourceTemplate Source = "TEMPLATE"
	SourceOCR      Source = "OCR"
	SourceFallback Source = "FALLBACK"
	SourceMerged   Source = "MERGED"
)

// RiskLevel is the severity bracket assigned to a metric value.
type RiskLevel string

const (
	RiskNormal     RiskLevel = "NORMAL"
	RiskBorderline RiskLevel = "BORDERLINE"
	RiskHigh       RiskLevel = "HIGH"
	RiskCritical   RiskLevel = "CRITICAL"
)

// Valid reports whether r is one of the four known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskNormal, RiskBorderline, RiskHigh, RiskCritical:
		return true
	}
	return false
}
