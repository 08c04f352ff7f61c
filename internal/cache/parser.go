package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
	"github.com/joseph-ayodele/health-report-parser/internal/pipeline"
)

const (
	DefaultTTL    = 24 * time.Hour
	defaultPrefix = "healthreport:report:"
)

// Parser parses one document.
type Parser interface {
	Parse(ctx context.Context, doc *pipeline.Document) (*entity.ParsedHealthReport, error)
}

// CachingParser serves repeated documents from a Store. Documents are keyed
// by the SHA-256 of their content; path-only documents without a known hash
// bypass the cache. Store failures are logged and never fail a parse.
type CachingParser struct {
	next      Parser
	store     Store
	ttl       time.Duration
	namespace string
	logger    *slog.Logger
}

type Option func(*CachingParser)

func WithTTL(d time.Duration) Option {
	return func(c *CachingParser) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithNamespace separates entries built with different guideline or template
// tables.
func WithNamespace(ns string) Option { return func(c *CachingParser) { c.namespace = ns } }

func WithLogger(l *slog.Logger) Option {
	return func(c *CachingParser) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCachingParser(next Parser, store Store, opts ...Option) *CachingParser {
	c := &CachingParser{next: next, store: store, ttl: DefaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachingParser) key(doc *pipeline.Document) string {
	sum := doc.SHA256
	if sum == "" && len(doc.Data) > 0 {
		h := sha256.Sum256(doc.Data)
		sum = hex.EncodeToString(h[:])
	}
	if sum == "" {
		return ""
	}
	if c.namespace != "" {
		return defaultPrefix + c.namespace + ":" + sum
	}
	return defaultPrefix + sum
}

func (c *CachingParser) Parse(ctx context.Context, doc *pipeline.Document) (*entity.ParsedHealthReport, error) {
	if doc == nil {
		return c.next.Parse(ctx, doc)
	}
	key := c.key(doc)
	if key == "" {
		return c.next.Parse(ctx, doc)
	}
	log := common.LoggerWith(ctx, c.logger).With("cache_key", key)

	b, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		rep, derr := decode(b)
		if derr == nil {
			rep.DocumentID, rep.Path = doc.ID, doc.Path
			log.Info("cache.hit", "doc_id", doc.ID)
			return rep, nil
		}
		log.Warn("cache.decode.failed", "error", derr)
	case errors.Is(err, ErrMiss):
		log.Debug("cache.miss", "doc_id", doc.ID)
	default:
		log.Warn("cache.get.failed", "error", err)
	}

	rep, err := c.next.Parse(ctx, doc)
	if err != nil || !cacheable(rep) {
		return rep, err
	}
	enc, err := json.Marshal(rep)
	if err != nil {
		log.Warn("cache.encode.failed", "error", err)
		return rep, nil
	}
	if err := c.store.Set(ctx, key, enc, c.ttl); err != nil {
		log.Warn("cache.set.failed", "error", err)
	}
	return rep, nil
}

func decode(b []byte) (*entity.ParsedHealthReport, error) {
	rep := entity.NewReport("", "")
	if err := json.Unmarshal(b, rep); err != nil {
		return nil, err
	}
	for name, m := range rep.VitalSigns {
		m.Name = name
		rep.VitalSigns[name] = m
	}
	return rep, nil
}

// cacheable rejects reports shaped by a transient failure.
func cacheable(rep *entity.ParsedHealthReport) bool {
	if rep == nil {
		return false
	}
	for _, msg := range rep.ParsingErrors {
		if strings.HasPrefix(msg, common.CodeRecognitionFailed) || strings.HasPrefix(msg, common.CodeFallbackExhausted) {
			return false
		}
	}
	return true
}
