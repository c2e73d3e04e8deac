package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mingyu-ho/invoice-pipeline/constants"
)

// Config holds all application configuration
type Config struct {
	Dirs     DirConfig
	Vision   VisionConfig
	Pipeline PipelineConfig
}

// DirConfig holds the directory layout for a run.
type DirConfig struct {
	Input      string
	Output     string
	Duplicates string
	TripSheets string
}

// VisionConfig holds settings for the fallback OCR service.
type VisionConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	RetryMax    int // attempts per document; 1 = no automatic retry
}

// PipelineConfig holds concurrency settings for the orchestrator.
type PipelineConfig struct {
	Workers          int     // CPU-bound stage workers (text extraction, rasterization)
	FallbackInFlight int     // max simultaneously outstanding vision calls
	FallbackRPS      float64 // request rate toward the vision service
}

// LoadConfig loads configuration from the environment, reading a .env
// file first if one is present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Dirs: DirConfig{
			Input:      getEnv("INVOICE_INPUT_DIR", constants.DefaultInputDir),
			Output:     getEnv("INVOICE_OUTPUT_DIR", constants.DefaultOutputDir),
			Duplicates: getEnv("INVOICE_DUPLICATES_DIR", constants.DefaultDuplicatesDir),
			TripSheets: getEnv("INVOICE_TRIP_SHEETS_DIR", constants.DefaultTripSheetsDir),
		},
		Vision: VisionConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			RetryMax:    getEnvAsInt("FALLBACK_RETRY_MAX", 1),
		},
		Pipeline: PipelineConfig{
			Workers:          getEnvAsInt("PIPELINE_WORKERS", 4),
			FallbackInFlight: getEnvAsInt("FALLBACK_IN_FLIGHT", 3),
			FallbackRPS:      getEnvAsFloat64("FALLBACK_RPS", 2),
		},
	}
}

// Validate checks the configuration before any document is touched.
// stageNeedsVision must be true when the selected stage reaches the
// fallback OCR service; credentials are not required for a text-only run.
func (c *Config) Validate(stageNeedsVision bool) error {
	if c.Dirs.Input == "" {
		return NewAppError("CONFIG_ERROR", "input directory is required", ErrConfig)
	}
	if stageNeedsVision && c.Vision.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrConfig)
	}
	if c.Pipeline.FallbackInFlight <= 0 {
		return NewAppError("CONFIG_ERROR", "FALLBACK_IN_FLIGHT must be positive", ErrConfig)
	}
	if c.Vision.RetryMax <= 0 {
		return NewAppError("CONFIG_ERROR", "FALLBACK_RETRY_MAX must be positive", ErrConfig)
	}
	return nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
