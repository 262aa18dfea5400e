package common

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
)

// Config holds all application configuration
type Config struct {
	Pipeline PipelineConfig
	Retry    RetryConfig
	Storage  StorageConfig
	Ledger   LedgerConfig
	Gemini   GeminiConfig
}

// PipelineConfig holds the key-prefix convention and the summary schema
// version. These are explicit here so no path strings leak into stage code.
type PipelineConfig struct {
	UploadsPrefix    string
	ExtractionPrefix string
	EnrichmentPrefix string
	SchemaVersion    string
}

// RetryConfig holds the coordinator's retry and backoff policy.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	InvocationTimeout time.Duration
}

// StorageConfig selects the object store backend.
type StorageConfig struct {
	Backend string // "memory", "bolt" or "fs"
	Path    string // db file (bolt) or root directory (fs)
}

// LedgerConfig holds the attempt ledger location.
type LedgerConfig struct {
	Path string // sqlite file; ":memory:" for ephemeral
}

// GeminiConfig holds provider settings for both capabilities.
type GeminiConfig struct {
	APIKey          string
	ExtractionModel string
	GenerationModel string
	Timeout         time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			UploadsPrefix:    getEnv("UPLOADS_PREFIX", constants.DefaultUploadsPrefix),
			ExtractionPrefix: getEnv("EXTRACTION_PREFIX", constants.DefaultExtractionPrefix),
			EnrichmentPrefix: getEnv("ENRICHMENT_PREFIX", constants.DefaultEnrichmentPrefix),
			SchemaVersion:    getEnv("SUMMARY_SCHEMA_VERSION", constants.SummarySchemaVersion),
		},
		Retry: RetryConfig{
			MaxAttempts:       getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:         getEnvAsDuration("RETRY_BASE_DELAY", 1*time.Second),
			MaxDelay:          getEnvAsDuration("RETRY_MAX_DELAY", 30*time.Second),
			InvocationTimeout: getEnvAsDuration("INVOCATION_TIMEOUT", 2*time.Minute),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORE_BACKEND", "bolt"),
			Path:    getEnv("STORE_PATH", "receipts.db"),
		},
		Ledger: LedgerConfig{
			Path: getEnv("LEDGER_PATH", "pipeline-ledger.db"),
		},
		Gemini: GeminiConfig{
			APIKey:          getEnv("GEMINI_API_KEY", ""),
			ExtractionModel: getEnv("GEMINI_EXTRACTION_MODEL", "gemini-2.5-flash"),
			GenerationModel: getEnv("GEMINI_GENERATION_MODEL", "gemini-2.5-flash"),
			Timeout:         getEnvAsDuration("GEMINI_TIMEOUT", 45*time.Second),
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Pipeline.UploadsPrefix == "" || c.Pipeline.ExtractionPrefix == "" || c.Pipeline.EnrichmentPrefix == "" {
		return errors.New("all key prefixes are required")
	}
	if c.Pipeline.UploadsPrefix == c.Pipeline.ExtractionPrefix ||
		c.Pipeline.ExtractionPrefix == c.Pipeline.EnrichmentPrefix ||
		c.Pipeline.UploadsPrefix == c.Pipeline.EnrichmentPrefix {
		return errors.New("key prefixes must be distinct to keep stages decoupled")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Gemini.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}
