package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "https://openapi.data.uwaterloo.ca/v3", cfg.UWAPI.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.UWAPI.Timeout)
	assert.Equal(t, "DM", cfg.UWAPI.ExamDateOrder)
	assert.Equal(t, 4, cfg.Scheduler.FetchConcurrency)
	assert.Equal(t, "FIRST", cfg.Scheduler.ExamPolicy)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("UW_API_BASE_URL", "http://localhost:9999/v3/")
	t.Setenv("UW_API_TIMEOUT", "3s")
	t.Setenv("SCHEDULER_EXAM_POLICY", "distinct")
	t.Setenv("SCHEDULER_FETCH_CONCURRENCY", "0")
	t.Setenv("SCHEDULER_SEARCH_TIMEOUT", "garbage")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("ENABLE_HISTORY", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/v3", cfg.UWAPI.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.UWAPI.Timeout)
	assert.Equal(t, "DISTINCT", cfg.Scheduler.ExamPolicy)
	assert.Equal(t, 4, cfg.Scheduler.FetchConcurrency)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.SearchTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.History.Enabled)
}
