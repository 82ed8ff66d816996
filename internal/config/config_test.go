package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

waterfall:
  confidence_threshold: 0.75
  premium_max_budget_percent: 0.20

scheduler:
  interval_minutes: 30
  batch_size: 100
  max_parallel: 5

jit:
  min_touch_gap_days: 3
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 0.75, cfg.Waterfall.ConfidenceThreshold)
	assert.Equal(t, 0.20, cfg.Waterfall.PremiumMaxBudgetPct)
	assert.Equal(t, 30, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, 5, cfg.Scheduler.MaxParallel)
	assert.Equal(t, 3, cfg.JIT.MinTouchGapDays)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Every default named in spec §6.1.
	assert.Equal(t, 0.70, cfg.Waterfall.ConfidenceThreshold)
	assert.Equal(t, 0.15, cfg.Waterfall.PremiumMaxBudgetPct)
	assert.Equal(t, 85, cfg.Scorer.HotThreshold)
	assert.Equal(t, 60, cfg.Scorer.WarmThreshold)
	assert.Equal(t, 70, cfg.JIT.VoiceMinALS)
	assert.Equal(t, 85, cfg.JIT.MailMinALS)
	assert.Equal(t, 2, cfg.JIT.MinTouchGapDays)
	assert.Equal(t, 5, cfg.JIT.ChannelCooldownDays)
	assert.Equal(t, 14, cfg.JIT.EmailWarmupDays)
	assert.Equal(t, 50, cfg.RateLedger.DailyCapEmailDomain)
	assert.Equal(t, 100, cfg.RateLedger.DailyCapSMSNumber)
	assert.Equal(t, 50, cfg.RateLedger.DailyCapVoiceNumber)
	assert.Equal(t, 17, cfg.RateLedger.DailyCapLinkedInSeat)
	assert.Equal(t, 1000, cfg.RateLedger.DailyCapMailSender)
	assert.Equal(t, 0.50, cfg.ReplyRouter.LifetimeReplyCapUSD)
	assert.Equal(t, 20, cfg.Patterns.MinConversions)
	assert.Equal(t, 0.70, cfg.Patterns.MinConfidence)
	assert.Equal(t, "v1", cfg.Cache.VersionPrefix)
	assert.Equal(t, 50, cfg.Scheduler.BatchSize)
	assert.Equal(t, 10, cfg.Scheduler.MaxParallel)
	assert.Equal(t, 15, cfg.TestMode.DailyEmailLimit)
	assert.False(t, cfg.TestMode.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8080\n"), 0644))

	os.Setenv("DATABASE_URL", "postgres://env/db")
	os.Setenv("TEST_MODE", "true")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("TEST_MODE")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Postgres.DSN)
	assert.True(t, cfg.TestMode.Enabled)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
