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
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "http://localhost:3001", cfg.Site.BaseURL)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, BackendMemory, cfg.Queue.Backend)
	assert.Equal(t, 5*time.Second, cfg.Lalal.PollInterval)
	assert.Equal(t, 60, cfg.Lalal.PollAttempts)
	assert.Equal(t, "phoenix", cfg.Lalal.Splitter)
	assert.Equal(t, "cjwbw/demucs:07afea19d1001f8e7b3a2d5e9e3e6c8c", cfg.Replicate.Model)
	assert.Equal(t, time.Duration(0), cfg.Store.JobTTL)
	assert.Equal(t, 30*time.Minute, cfg.Job.Timeout)
	assert.Equal(t, 300, cfg.Spleeter.Timeout)
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SPLEETER_URL", "")
	t.Setenv("PYTHON_WORKER_URL", "http://worker:8001")
	t.Setenv("NEXT_PUBLIC_APP_URL", "https://app.example.com")
	t.Setenv("LALAL_API_KEY", "lalal-key")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("LALAL_POLL_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://worker:8001", cfg.Spleeter.URL)
	assert.Equal(t, "https://app.example.com", cfg.Site.BaseURL)
	assert.Equal(t, "lalal-key", cfg.Lalal.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Lalal.PollInterval)
	assert.True(t, cfg.UsesRedis())
}

func TestLoad_SpleeterTimeoutFitsJobTimeout(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JOB_TIMEOUT", "6m")
	t.Setenv("SPLEETER_TIMEOUT", "600")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6*time.Minute, cfg.Job.Timeout)
	assert.Equal(t, 120, cfg.Spleeter.Timeout)
}

func TestReadSecret(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(secretPath, []byte("  from-file\n"), 0o600))

	t.Setenv("REPLICATE_API_TOKEN", "")
	t.Setenv("REPLICATE_API_TOKEN_FILE", secretPath)

	readSecret("REPLICATE_API_TOKEN")
	assert.Equal(t, "from-file", os.Getenv("REPLICATE_API_TOKEN"))
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
