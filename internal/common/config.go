package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Queue     QueueConfig
	Extractor ExtractorConfig
	LLM       LLMConfig
	Scheduler SchedulerConfig
	Ingest    IngestConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	// SQLitePath is used when DSN is empty; the daemon runs standalone
	// against a local file in that case.
	SQLitePath       string
	DSN              string // Postgres DSN; takes precedence when set
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// QueueConfig holds work-queue tuning knobs
type QueueConfig struct {
	BatchSize       int
	Workers         int
	RetryCeiling    int
	BackoffBase     time.Duration
	BackoffFactor   float64
	BackoffMax      time.Duration
	ItemTimeout     time.Duration
	DefaultPriority int
}

// ExtractorConfig holds text/table extraction configuration
type ExtractorConfig struct {
	PdftotextBin string
	MaxPages     int
	ScoutPages   int // pages fetched for the table-of-contents pass
	ScanPages    int // pages fetched for the heuristic scan pass
	Timeout      time.Duration
}

// LLMConfig holds language-model configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
}

// SchedulerConfig holds the poll loop and per-task defaults
type SchedulerConfig struct {
	CheckInterval   time.Duration
	ExtractInterval time.Duration
	SweepInterval   time.Duration
	TaskTimeout     time.Duration
	FailureCeiling  int
}

// IngestConfig holds discovery-source configuration
type IngestConfig struct {
	WatchRoots  []string
	Debounce    time.Duration
	InitialScan bool
	NATSURL     string
	NATSSubject string
}

// TelemetryConfig holds the metrics endpoint configuration
type TelemetryConfig struct {
	Addr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			SQLitePath:       getEnv("SQLITE_PATH", "./docpipe.db"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Queue: QueueConfig{
			BatchSize:       getEnvAsInt("QUEUE_BATCH_SIZE", 10),
			Workers:         getEnvAsInt("QUEUE_WORKERS", 4),
			RetryCeiling:    getEnvAsInt("QUEUE_RETRY_CEILING", 3),
			BackoffBase:     getEnvAsDuration("QUEUE_BACKOFF_BASE", 30*time.Second),
			BackoffFactor:   getEnvAsFloat64("QUEUE_BACKOFF_FACTOR", 2.0),
			BackoffMax:      getEnvAsDuration("QUEUE_BACKOFF_MAX", 30*time.Minute),
			ItemTimeout:     getEnvAsDuration("QUEUE_ITEM_TIMEOUT", 3*time.Minute),
			DefaultPriority: getEnvAsInt("QUEUE_DEFAULT_PRIORITY", 0),
		},
		Extractor: ExtractorConfig{
			PdftotextBin: getEnv("PDFTOTEXT_BIN", "pdftotext"),
			MaxPages:     getEnvAsInt("EXTRACT_MAX_PAGES", 120),
			ScoutPages:   getEnvAsInt("EXTRACT_SCOUT_PAGES", 8),
			ScanPages:    getEnvAsInt("EXTRACT_SCAN_PAGES", 60),
			Timeout:      getEnvAsDuration("EXTRACT_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			RatePerSec:  getEnvAsFloat64("OPENAI_RATE_PER_SEC", 2),
			Burst:       getEnvAsInt("OPENAI_BURST", 4),
		},
		Scheduler: SchedulerConfig{
			CheckInterval:   getEnvAsDuration("SCHED_CHECK_INTERVAL", 5*time.Second),
			ExtractInterval: getEnvAsDuration("SCHED_EXTRACT_INTERVAL", time.Minute),
			SweepInterval:   getEnvAsDuration("SCHED_SWEEP_INTERVAL", 5*time.Minute),
			TaskTimeout:     getEnvAsDuration("SCHED_TASK_TIMEOUT", 10*time.Minute),
			FailureCeiling:  getEnvAsInt("SCHED_FAILURE_CEILING", 3),
		},
		Ingest: IngestConfig{
			WatchRoots:  getEnvAsList("WATCH_ROOTS", nil),
			Debounce:    getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
			InitialScan: getEnvAsBool("WATCH_INITIAL_SCAN", true),
			NATSURL:     getEnv("NATS_URL", ""),
			NATSSubject: getEnv("NATS_SUBJECT", "docpipe.discovered"),
		},
		Telemetry: TelemetryConfig{
			Addr: getEnv("METRICS_ADDR", ":9090"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" && c.Database.SQLitePath == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL or SQLITE_PATH is required", ErrInvalidInput)
	}
	if c.Queue.BatchSize <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_BATCH_SIZE must be positive", ErrInvalidInput)
	}
	if c.Queue.RetryCeiling < 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_RETRY_CEILING must not be negative", ErrInvalidInput)
	}
	return nil
}
