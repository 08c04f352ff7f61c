package common

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	OCR       OCRConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
	Queue     QueueConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "sqlite" | "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	Pdftoppm      string
	DPI           int
	MaxPages      int
	Timeout       time.Duration

	Preprocess bool // rotate, resize and contrast-correct JPG/PNG input
	MinEdge    int
	MaxEdge    int
}

// LLMConfig holds configuration for the model-assisted fallback providers.
type LLMConfig struct {
	Provider      string // "gemini" | "openai"
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	Temperature   float32
	Timeout       time.Duration
}

// PipelineConfig holds the extraction pipeline knobs. The completeness
// threshold here is independent of the per-template acceptance thresholds.
type PipelineConfig struct {
	FallbackEnabled   bool
	FallbackThreshold float64
	MaxRetries        int
	InitialBackoff    time.Duration
	AttemptTimeout    time.Duration
	BatchConcurrency  int
	MaxFileSize       int64
	GuidelinesFile    string
	TemplatesFile     string
}

// QueueConfig holds async worker pool configuration
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// CacheConfig locates the optional report cache. An empty RedisAddr
// disables it.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// TelemetryConfig holds tracing export settings. An empty OTLPEndpoint
// disables export.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"DB_DRIVER":                   "sqlite",
	"DB_URL":                      "file:healthreports.db?_pragma=busy_timeout(5000)",
	"DB_MAX_CONNS":                20,
	"DB_MIN_CONNS":                2,
	"DB_MAX_CONN_LIFETIME":        30 * time.Minute,
	"DB_MAX_CONN_IDLE_TIME":       5 * time.Minute,
	"DB_DIAL_TIMEOUT":             3 * time.Second,
	"DB_STATEMENT_TIMEOUT":        time.Duration(0),
	"GRPC_ADDR":                   ":8080",
	"TESSERACT_BIN":               "tesseract",
	"TESSERACT_LANG":              "chi_tra+eng",
	"TESSDATA_PREFIX":             "",
	"PDFTOPPM_BIN":                "pdftoppm",
	"OCR_DPI":                     300,
	"OCR_MAX_PAGES":               0,
	"OCR_TIMEOUT":                 2 * time.Minute,
	"OCR_PREPROCESS":              true,
	"OCR_MIN_EDGE":                1000,
	"OCR_MAX_EDGE":                2000,
	"FALLBACK_PROVIDER":           "gemini",
	"GEMINI_API_KEY":              "",
	"GEMINI_MODEL":                "gemini-2.5-flash",
	"OPENAI_API_KEY":              "",
	"OPENAI_MODEL":                "gpt-4o-mini",
	"OPENAI_BASE_URL":             "https://api.openai.com/v1",
	"LLM_TEMPERATURE":             0.1,
	"LLM_TIMEOUT":                 45 * time.Second,
	"FALLBACK_ENABLED":            true,
	"FALLBACK_THRESHOLD":          0.70,
	"FALLBACK_MAX_RETRIES":        3,
	"FALLBACK_INITIAL_BACKOFF":    time.Second,
	"FALLBACK_ATTEMPT_TIMEOUT":    30 * time.Second,
	"BATCH_CONCURRENCY":           4,
	"MAX_FILE_SIZE":               int64(100 << 20),
	"GUIDELINES_FILE":             "",
	"TEMPLATES_FILE":              "",
	"QUEUE_WORKERS":               4,
	"QUEUE_SIZE":                  256,
	"QUEUE_PROCESS_TIMEOUT":       3 * time.Minute,
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"CACHE_TTL":                   24 * time.Hour,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_SERVICE_NAME":           "healthreportd",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
}

// LoadConfig loads configuration from environment variables, falling back to
// a .env file in the working directory when one exists.
func LoadConfig() *Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	// missing .env is fine
	_ = v.ReadInConfig()
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:              v.GetString("DB_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			MinConns:         v.GetInt32("DB_MIN_CONNS"),
			MaxConnLifetime:  v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime:  v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			DialTimeout:      v.GetDuration("DB_DIAL_TIMEOUT"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		},
		Server: ServerConfig{
			GRPCAddr: v.GetString("GRPC_ADDR"),
		},
		OCR: OCRConfig{
			Tesseract:     v.GetString("TESSERACT_BIN"),
			TesseractLang: v.GetString("TESSERACT_LANG"),
			TessdataDir:   v.GetString("TESSDATA_PREFIX"),
			Pdftoppm:      v.GetString("PDFTOPPM_BIN"),
			DPI:           v.GetInt("OCR_DPI"),
			MaxPages:      v.GetInt("OCR_MAX_PAGES"),
			Timeout:       v.GetDuration("OCR_TIMEOUT"),
			Preprocess:    v.GetBool("OCR_PREPROCESS"),
			MinEdge:       v.GetInt("OCR_MIN_EDGE"),
			MaxEdge:       v.GetInt("OCR_MAX_EDGE"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(v.GetString("FALLBACK_PROVIDER")),
			GeminiAPIKey:  v.GetString("GEMINI_API_KEY"),
			GeminiModel:   v.GetString("GEMINI_MODEL"),
			OpenAIAPIKey:  v.GetString("OPENAI_API_KEY"),
			OpenAIModel:   v.GetString("OPENAI_MODEL"),
			OpenAIBaseURL: v.GetString("OPENAI_BASE_URL"),
			Temperature:   float32(v.GetFloat64("LLM_TEMPERATURE")),
			Timeout:       v.GetDuration("LLM_TIMEOUT"),
		},
		Pipeline: PipelineConfig{
			FallbackEnabled:   v.GetBool("FALLBACK_ENABLED"),
			FallbackThreshold: v.GetFloat64("FALLBACK_THRESHOLD"),
			MaxRetries:        v.GetInt("FALLBACK_MAX_RETRIES"),
			InitialBackoff:    v.GetDuration("FALLBACK_INITIAL_BACKOFF"),
			AttemptTimeout:    v.GetDuration("FALLBACK_ATTEMPT_TIMEOUT"),
			BatchConcurrency:  v.GetInt("BATCH_CONCURRENCY"),
			MaxFileSize:       v.GetInt64("MAX_FILE_SIZE"),
			GuidelinesFile:    v.GetString("GUIDELINES_FILE"),
			TemplatesFile:     v.GetString("TEMPLATES_FILE"),
		},
		Queue: QueueConfig{
			Workers:        v.GetInt("QUEUE_WORKERS"),
			Size:           v.GetInt("QUEUE_SIZE"),
			ProcessTimeout: v.GetDuration("QUEUE_PROCESS_TIMEOUT"),
		},
		Cache: CacheConfig{
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			TTL:           v.GetDuration("CACHE_TTL"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

// APIKey returns the key of the configured fallback provider.
func (c LLMConfig) APIKey() string {
	if c.Provider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_DRIVER", c.Database.Driver, OneOf("sqlite", "postgres")).
		Field("FALLBACK_PROVIDER", c.LLM.Provider, OneOf("gemini", "openai")).
		Field("FALLBACK_THRESHOLD", c.Pipeline.FallbackThreshold, Range(0, 1)).
		Field("FALLBACK_MAX_RETRIES", c.Pipeline.MaxRetries, Range(1, 10)).
		Field("FALLBACK_INITIAL_BACKOFF", c.Pipeline.InitialBackoff, NonNegativeDuration).
		Field("FALLBACK_ATTEMPT_TIMEOUT", c.Pipeline.AttemptTimeout, NonNegativeDuration).
		Field("BATCH_CONCURRENCY", c.Pipeline.BatchConcurrency, Range(1, 256)).
		Field("QUEUE_WORKERS", c.Queue.Workers, Range(1, 256)).
		Field("OCR_DPI", c.OCR.DPI, Range(72, 1200)).
		Field("OCR_MIN_EDGE", c.OCR.MinEdge, Range(0, 10000)).
		Field("OCR_MAX_EDGE", c.OCR.MaxEdge, Range(0, 10000)).
		Field("CACHE_TTL", c.Cache.TTL, NonNegativeDuration)
	if err := v.Error(); err != nil {
		return NewAppError(CodeConfigError, "invalid configuration", err)
	}
	return nil
}
