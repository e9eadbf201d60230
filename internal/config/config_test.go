package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.JobStore)
	assert.Equal(t, "pool", cfg.Dispatcher)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
	assert.Equal(t, 64, cfg.WorkerQueueSize)
	assert.Equal(t, time.Duration(0), cfg.JobTTL)
	assert.Equal(t, 10000, cfg.JobMaxEntries)
	assert.Equal(t, time.Minute, cfg.JobSweepInterval)
	assert.Equal(t, time.Duration(0), cfg.GenerationTimeout)
	assert.Equal(t, "ollama", cfg.AIProvider)
	assert.Equal(t, "post_jobs", cfg.RabbitQueue)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JOB_STORE", " SQLite ")
	t.Setenv("JOB_TTL", "30m")
	t.Setenv("GENERATION_TIMEOUT", "2m")
	t.Setenv("WORKER_CONCURRENCY", "500")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.JobStore)
	assert.Equal(t, 30*time.Minute, cfg.JobTTL)
	assert.Equal(t, 2*time.Minute, cfg.GenerationTimeout)
	assert.Equal(t, 50, cfg.WorkerConcurrency)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AI_PROVIDER=openai\nOPENAI_MODEL=gpt-4o\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("AI_PROVIDER")
		_ = os.Unsetenv("OPENAI_MODEL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AIProvider)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("JOB_TTL", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestSanitize_Negatives(t *testing.T) {
	cfg := Config{Port: -1, WorkerConcurrency: 0, WorkerQueueSize: -3, JobTTL: -time.Second, JobMaxEntries: -1}
	cfg.Sanitize()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
	assert.Equal(t, 4, cfg.WorkerQueueSize)
	assert.Equal(t, time.Duration(0), cfg.JobTTL)
	assert.Equal(t, 0, cfg.JobMaxEntries)
}
