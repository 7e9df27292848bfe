/**
 * Configuration for the placeholder service
 *
 * Loads configuration from environment variables (optionally seeded from a
 * .env file) and an optional YAML render policy.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service and worker configuration
type Config struct {
	// HTTP API
	HTTPAddr string

	// Redis configuration; empty disables distributed locks and async generation
	RedisURL string

	// PostgreSQL configuration; empty selects the in-memory store
	DatabaseURL string

	// Blob directories
	UploadDir    string
	GeneratedDir string
	MaxFileSize  int64

	// OCR
	OCREngine          string // tesseract, documentai or none
	TesseractLanguages []string
	OCRWorkers         int
	OCRTimeout         time.Duration
	OCRScale           float64

	// Google Document AI
	DocumentAIProjectID   string
	DocumentAILocation    string
	DocumentAIProcessorID string
	GoogleCredentialsFile string

	// Generation locks
	LockTTL  time.Duration
	LockWait time.Duration

	// Worker configuration
	WorkerConcurrency int
	GenerationTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Typography policy for redrawn text
	RenderPolicyFile string
	Render           RenderPolicy
}

// LoadDotEnv loads the given .env files if present; missing files are not an error.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:              getEnvOrDefault("HTTP_ADDR", ":8000"),
		RedisURL:              getEnvOrDefault("REDIS_URL", ""),
		DatabaseURL:           getEnvOrDefault("DATABASE_URL", ""),
		UploadDir:             getEnvOrDefault("UPLOAD_DIR", "uploads"),
		GeneratedDir:          getEnvOrDefault("GENERATED_DIR", "generated"),
		MaxFileSize:           getEnvAsInt64OrDefault("MAX_FILE_SIZE_MB", 50) * 1024 * 1024,
		OCREngine:             strings.ToLower(getEnvOrDefault("OCR_ENGINE", "tesseract")),
		TesseractLanguages:    splitList(getEnvOrDefault("TESSERACT_LANGUAGES", "eng")),
		OCRWorkers:            getEnvAsIntOrDefault("OCR_WORKERS", 2),
		OCRTimeout:            getEnvAsDurationOrDefault("OCR_TIMEOUT", 20*time.Second),
		OCRScale:              getEnvAsFloatOrDefault("OCR_SCALE", 3),
		DocumentAIProjectID:   getEnvOrDefault("DOCUMENTAI_PROJECT_ID", ""),
		DocumentAILocation:    getEnvOrDefault("DOCUMENTAI_LOCATION", "us"),
		DocumentAIProcessorID: getEnvOrDefault("DOCUMENTAI_PROCESSOR_ID", ""),
		GoogleCredentialsFile: getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		LockTTL:               getEnvAsDurationOrDefault("LOCK_TTL", 2*time.Minute),
		LockWait:              getEnvAsDurationOrDefault("LOCK_WAIT", 30*time.Second),
		WorkerConcurrency:     getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		GenerationTimeout:     getEnvAsDurationOrDefault("GENERATION_TIMEOUT", 2*time.Minute),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "text"),
		RenderPolicyFile:      getEnvOrDefault("RENDER_POLICY_FILE", ""),
		Render:                DefaultRenderPolicy(),
	}

	if cfg.RenderPolicyFile != "" {
		policy, err := LoadRenderPolicy(cfg.RenderPolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Render = policy
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.OCREngine {
	case "tesseract", "none":
	case "documentai":
		if c.DocumentAIProjectID == "" || c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required for OCR_ENGINE=documentai")
		}
	default:
		return fmt.Errorf("OCR_ENGINE must be tesseract, documentai or none, got %q", c.OCREngine)
	}

	if c.OCRWorkers < 1 || c.OCRWorkers > 64 {
		return fmt.Errorf("OCR_WORKERS must be between 1 and 64, got %d", c.OCRWorkers)
	}

	if c.OCRTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive, got %v", c.OCRTimeout)
	}

	if c.OCRScale < 1 || c.OCRScale > 8 {
		return fmt.Errorf("OCR_SCALE must be between 1 and 8, got %g", c.OCRScale)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024*1024 || c.MaxFileSize > 1024*1024*1024 { // 1MB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE_MB must be between 1 and 1024, got %d bytes", c.MaxFileSize)
	}

	if c.LockTTL <= 0 || c.LockWait < 0 {
		return fmt.Errorf("LOCK_TTL must be positive and LOCK_WAIT non-negative")
	}

	return c.Render.Validate()
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("20s") or bare milliseconds ("20000").
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
