package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "GCP_PROJECT_ID", "BQ_DATASET", "STORAGE_BUCKET",
		"STORAGE_ENDPOINT", "STORAGE_CREDENTIALS_FILE", "OCR_CREDENTIALS_FILE",
		"JOB_QUEUE_SIZE", "JOB_WORKER_COUNT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "statements", cfg.GCP.DatasetID)
	assert.Equal(t, "statements", cfg.Storage.Bucket)
	assert.Equal(t, 100, cfg.Jobs.QueueSize)
	assert.Equal(t, 5, cfg.Jobs.WorkerCount)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("GCP_PROJECT_ID", "my-project")
	t.Setenv("BQ_DATASET", "ingest")
	t.Setenv("JOB_WORKER_COUNT", "2")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "my-project", cfg.GCP.ProjectID)
	assert.Equal(t, "ingest", cfg.GCP.DatasetID)
	assert.Equal(t, 2, cfg.Jobs.WorkerCount)
}

func TestRequireHelpers(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	require.Error(t, cfg.RequireGCP())
	require.NoError(t, cfg.RequireStorage()) // bucket has a default
	require.Error(t, cfg.RequireOCR())

	cfg.GCP.ProjectID = "my-project"
	cfg.OCR.CredentialsFile = "/secrets/vision.json"
	require.NoError(t, cfg.RequireGCP())
	require.NoError(t, cfg.RequireOCR())

	cfg.Storage.Bucket = ""
	require.Error(t, cfg.RequireStorage())
}
