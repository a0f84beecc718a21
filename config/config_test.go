// mediaflow/config/config_test.go
package config_test

import (
	"testing"
	"time"

	"mediaflow/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		// Ensure no env vars are lingering from other tests
		t.Setenv("MEDIAFLOW_BACKEND_URL", "")
		t.Setenv("MEDIAFLOW_POLL_INTERVAL", "")
		t.Setenv("MEDIAFLOW_RETENTION", "")
		t.Setenv("MEDIAFLOW_LARGE_FILE_THRESHOLD", "")
		t.Setenv("MEDIAFLOW_PORT", "")

		cfg, err := config.Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "http://localhost:8080", cfg.BackendURL)
		assert.Equal(t, "/api/jobs", cfg.JobsPath)
		assert.Equal(t, 2*time.Second, cfg.PollInterval)
		assert.Equal(t, 2*time.Second, cfg.RefreshInterval)
		assert.Equal(t, 5*time.Minute, cfg.Retention)
		assert.Equal(t, int64(500*1024*1024), cfg.LargeFileThreshold)
		assert.Equal(t, int64(0), cfg.MinFreeDisk)
		assert.Equal(t, "ffprobe", cfg.FFProbeBin)
		assert.Contains(t, cfg.FFProbeArgs, "${INPUT_MEDIA}")
		assert.Equal(t, 256, cfg.ProbeCacheSize)
		assert.Equal(t, "8090", cfg.Port)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("MEDIAFLOW_BACKEND_URL", "https://jobs.example.com/")
		t.Setenv("MEDIAFLOW_POLL_INTERVAL", "500ms")
		t.Setenv("MEDIAFLOW_RETENTION", "1m")
		t.Setenv("MEDIAFLOW_LARGE_FILE_THRESHOLD", "1GB")
		t.Setenv("MEDIAFLOW_PROBE_CACHE_SIZE", "16")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "https://jobs.example.com", cfg.BackendURL)
		assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, time.Minute, cfg.Retention)
		assert.Equal(t, int64(1024*1024*1024), cfg.LargeFileThreshold)
		assert.Equal(t, 16, cfg.ProbeCacheSize)
	})
}

func TestUploadURL(t *testing.T) {
	cfg := &config.Config{BackendURL: "http://backend:8080", UploadPath: "/uploads/"}
	assert.Equal(t, "http://backend:8080/uploads/out.mp4", cfg.UploadURL("out.mp4"))
}
