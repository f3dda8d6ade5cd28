package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"doctools/internal/logger"
)

type Config struct {
	// Google Cloud Configuration
	GoogleCloudProject  string
	GoogleCloudLocation string

	// Document AI Configuration
	DocumentAITimeout time.Duration
	ProcessorConfig   string // Path to the YAML processor map

	// Cloud Storage Configuration
	GCSInputBucket   string
	GCSInputPrefix   string
	GCSSplitBucket   string
	GCSSplitPrefix   string
	GCSOutputBucket  string
	GCSOutputPrefix  string
	GCSArchiveBucket string

	// BigQuery Configuration
	BigQueryProjectID string
	BigQueryDataset   string
	BigQueryTable     string

	// Firestore Configuration
	FirestoreProjectID  string
	FirestoreCollection string

	// Redis Configuration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Workflow Configuration
	CallbackURL                       string
	BatchMaxFiles                     int
	BatchMaxRequests                  int
	BatchWorkers                      int
	ClassificationConfidenceThreshold float64
	ClassificationDefaultClass        string
	MetricsAddr                       string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	project := getEnv("GOOGLE_CLOUD_PROJECT", "")

	config := &Config{
		GoogleCloudProject:                project,
		GoogleCloudLocation:               getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAITimeout:                 getEnvDuration("DOCUMENT_AI_TIMEOUT", 200*time.Second),
		ProcessorConfig:                   getEnv("PROCESSOR_CONFIG", ""),
		GCSInputBucket:                    getEnv("GCS_INPUT_BUCKET", bucketName(project, "input-documents")),
		GCSInputPrefix:                    getEnv("GCS_INPUT_PREFIX", "upload"),
		GCSSplitBucket:                    getEnv("GCS_SPLIT_BUCKET", bucketName(project, "split-documents")),
		GCSSplitPrefix:                    getEnv("GCS_SPLIT_PREFIX", "split"),
		GCSOutputBucket:                   getEnv("GCS_OUTPUT_BUCKET", bucketName(project, "output-documents")),
		GCSOutputPrefix:                   getEnv("GCS_OUTPUT_PREFIX", "docai-output"),
		GCSArchiveBucket:                  getEnv("GCS_ARCHIVE_BUCKET", ""),
		BigQueryProjectID:                 getEnv("BIGQUERY_PROJECT_ID", project),
		BigQueryDataset:                   getEnv("BIGQUERY_DATASET", ""),
		BigQueryTable:                     getEnv("BIGQUERY_TABLE", "extracted_entities"),
		FirestoreProjectID:                getEnv("FIRESTORE_PROJECT_ID", project),
		FirestoreCollection:               getEnv("FIRESTORE_COLLECTION", ""),
		RedisAddr:                         getEnv("REDIS_ADDR", ""),
		RedisPassword:                     getEnv("REDIS_PASSWORD", ""),
		RedisDB:                           getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:                    getEnv("REDIS_KEY_PREFIX", "doctools:"),
		GoogleSheetURL:                    getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:              getEnv("GOOGLE_SHEET_WORKSHEET", "Extracted"),
		CallbackURL:                       getEnv("CALL_BACK_URL", ""),
		BatchMaxFiles:                     getEnvInt("BATCH_MAX_FILES", 50),
		BatchMaxRequests:                  getEnvInt("BATCH_MAX_REQUESTS", 5),
		BatchWorkers:                      getEnvInt("BATCH_WORKERS", 5),
		ClassificationConfidenceThreshold: getEnvFloat("CLASSIFICATION_CONFIDENCE_THRESHOLD", 0),
		ClassificationDefaultClass:        getEnv("CLASSIFICATION_DEFAULT_CLASS", "other"),
		MetricsAddr:                       getEnv("METRICS_ADDR", ""),
		LogLevel:                          getEnv("LOG_LEVEL", "info"),
		LogFormat:                         getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:                     getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                         getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}
	if c.BatchMaxFiles <= 0 || c.BatchMaxFiles > 50 {
		return fmt.Errorf("BATCH_MAX_FILES must be between 1 and 50, got %d", c.BatchMaxFiles)
	}
	if c.BatchMaxRequests <= 0 {
		return fmt.Errorf("BATCH_MAX_REQUESTS must be positive, got %d", c.BatchMaxRequests)
	}
	if c.ClassificationConfidenceThreshold < 0 || c.ClassificationConfidenceThreshold > 1 {
		return fmt.Errorf("CLASSIFICATION_CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.ClassificationConfidenceThreshold)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func bucketName(project, suffix string) string {
	if project == "" {
		return ""
	}
	return project + "-" + suffix
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		// Bare numbers are seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
