// Package fallback runs the model-assisted extraction pass for documents
// whose deterministic extraction came out incomplete.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/completeness"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

const (
	DefaultThreshold      = 0.70
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = time.Second
	DefaultAttemptTimeout = 30 * time.Second
	DefaultConfidence     = 0.8
)

// Input is what a provider gets to look at. Data is the original document
// when the provider can read it directly; Text is the normalized OCR text.
type Input struct {
	DocumentID string
	Path       string
	Text       string
	Data       []byte
	MIMEType   string
}

// Extractor is a generative extraction service. It returns the model's raw
// reply, which may wrap the JSON object in prose or code fences. Calls must be
// safe to repeat.
type Extractor interface {
	Extract(ctx context.Context, in Input) ([]byte, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, in Input) ([]byte, error)

func (f ExtractorFunc) Extract(ctx context.Context, in Input) ([]byte, error) { return f(ctx, in) }

// retryable is implemented by provider errors that know whether a repeat
// call can succeed, such as HTTP status errors.
type retryable interface {
	Retryable() bool
}

// Result is the outcome of Run. Errors holds recoverable problems
// (coercion failures, exhaustion) for the report's parsing errors.
type Result struct {
	Record    entity.ExtractionRecord
	Attempts  int
	Exhausted bool
	Errors    []string
}

// Orchestrator decides whether the fallback runs and drives the retries.
type Orchestrator struct {
	extractor      Extractor
	enabled        bool
	threshold      float64
	maxRetries     int
	initialBackoff time.Duration
	attemptTimeout time.Duration
	confidence     float64
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithEnabled(enabled bool) Option { return func(o *Orchestrator) { o.enabled = enabled } }

// WithThreshold sets the completeness score below which the fallback runs.
func WithThreshold(t float64) Option { return func(o *Orchestrator) { o.threshold = t } }

// WithMaxRetries caps the number of attempts per document.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithInitialBackoff sets the wait before the second attempt; it doubles after that.
func WithInitialBackoff(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.initialBackoff = d
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithConfidence sets the record confidence used when the model reports none.
func WithConfidence(c float64) Option { return func(o *Orchestrator) { o.confidence = c } }

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns an Orchestrator. A nil extractor disables the fallback.
func New(extractor Extractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:      extractor,
		enabled:        true,
		threshold:      DefaultThreshold,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		attemptTimeout: DefaultAttemptTimeout,
		confidence:     DefaultConfidence,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Threshold() float64 { return o.threshold }

// ShouldTrigger reports whether rec is incomplete enough to call the model.
// A score exactly at the threshold does not trigger.
func (o *Orchestrator) ShouldTrigger(rec completeness.Fields) bool {
	if o == nil || !o.enabled || o.extractor == nil {
		return false
	}
	return completeness.Score(rec) < o.threshold
}

// Run calls the extractor until it returns a usable reply or the attempts run
// out. Each attempt gets its own timeout that ignores caller cancellation, so
// an in-flight call is never cut short; cancellation only prevents further
// attempts. Run never fails: exhaustion yields an empty record and a
// FALLBACK_EXHAUSTED message.
func (o *Orchestrator) Run(ctx context.Context, in Input) Result {
	reqID := uuid.NewString()
	log := common.LoggerWith(ctx, o.logger).With("req_id", reqID)
	start := time.Now()
	log.Info("fallback.run.start", "max_retries", o.maxRetries, "text_len", len(in.Text), "has_data", len(in.Data) > 0)

	var res Result
	op := func() (response, error) {
		if err := ctx.Err(); err != nil {
			return response{}, backoff.Permanent(err)
		}
		res.Attempts++
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.attemptTimeout)
		defer cancel()

		raw, err := o.extractor.Extract(actx, in)
		if err != nil {
			err = fmt.Errorf("extract: %w", err)
			var r retryable
			if errors.As(err, &r) && !r.Retryable() {
				return response{}, backoff.Permanent(err)
			}
			return response{}, err
		}
		return parseResponse(raw)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("fallback.attempt.failed", "attempt", res.Attempts, "error", err, "retry_in_ms", wait.Milliseconds())
	}

	resp, err := backoff.RetryNotifyWithData(op, backoff.WithContext(o.policy(), ctx), notify)
	if err != nil {
		res.Exhausted = true
		res.Record = entity.NewRecord(constants.SourceFallback, 0)
		ae := common.NewAppError(common.CodeFallbackExhausted,
			fmt.Sprintf("model extraction gave no usable result after %d attempt(s)", res.Attempts), unwrapPermanent(err))
		res.Errors = append(res.Errors, ae.Error())
		log.Warn("fallback.run.exhausted", "attempts", res.Attempts, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return res
	}

	conf := o.confidence
	if resp.confidence != nil {
		conf = *resp.confidence
	}
	rec, problems := Coerce(resp.fields, conf)
	problems = append(resp.rejected, problems...)
	res.Record = rec
	res.Errors = append(res.Errors, problems...)
	if len(resp.ignored) > 0 {
		log.Debug("fallback.response.ignored_keys", "keys", resp.ignored)
	}
	log.Info("fallback.run.ok", "attempts", res.Attempts, "fields", rec.Len(), "dropped", len(problems),
		"elapsed_ms", time.Since(start).Milliseconds())
	return res
}

func (o *Orchestrator) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = o.initialBackoff << o.maxRetries
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(o.maxRetries-1))
}

func unwrapPermanent(err error) error {
	var p *backoff.PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}
