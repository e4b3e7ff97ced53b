package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	Server  ServerConfig
	GCP     GCPConfig
	Storage StorageConfig
	OCR     OCRConfig
	Jobs    JobsConfig
}

type ServerConfig struct {
	Port string
}

type GCPConfig struct {
	ProjectID string
	DatasetID string
}

type StorageConfig struct {
	Bucket string
	// Endpoint overrides the storage API endpoint (emulators, private
	// endpoints). Empty means the library default.
	Endpoint string
	// CredentialsFile is a service-account key file. Empty means
	// Application Default Credentials.
	CredentialsFile string
}

type OCRConfig struct {
	// CredentialsFile is the Vision API service-account key file.
	CredentialsFile string
}

type JobsConfig struct {
	QueueSize   int
	WorkerCount int
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present. Validation of required values is left
// to the per-binary Require* helpers so that, e.g., cmd/setup-storage does
// not demand OCR credentials.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		GCP: GCPConfig{
			ProjectID: os.Getenv("GCP_PROJECT_ID"),
			DatasetID: getEnv("BQ_DATASET", "statements"),
		},
		Storage: StorageConfig{
			Bucket:          getEnv("STORAGE_BUCKET", "statements"),
			Endpoint:        os.Getenv("STORAGE_ENDPOINT"),
			CredentialsFile: os.Getenv("STORAGE_CREDENTIALS_FILE"),
		},
		OCR: OCRConfig{
			CredentialsFile: os.Getenv("OCR_CREDENTIALS_FILE"),
		},
		Jobs: JobsConfig{
			QueueSize:   getEnvAsInt("JOB_QUEUE_SIZE", 100),
			WorkerCount: getEnvAsInt("JOB_WORKER_COUNT", 5),
		},
	}
}

// RequireGCP fails when the BigQuery project is not configured.
func (c *Config) RequireGCP() error {
	if c.GCP.ProjectID == "" {
		return fmt.Errorf("GCP_PROJECT_ID is required")
	}
	return nil
}

// RequireStorage fails when the upload bucket is not configured.
func (c *Config) RequireStorage() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}
	return nil
}

// RequireOCR fails when the Vision credentials are not configured.
func (c *Config) RequireOCR() error {
	if c.OCR.CredentialsFile == "" {
		return fmt.Errorf("OCR_CREDENTIALS_FILE is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
