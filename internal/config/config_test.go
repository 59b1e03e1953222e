package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "data/beacon.db", cfg.Database.Path)
	assert.Equal(t, "0 * * * *", cfg.Scheduler.CronSpec)
	assert.Equal(t, 55*time.Second, cfg.Scheduler.TickBudget)
	assert.Equal(t, 10, cfg.Scheduler.WindowMinutes)
	assert.Equal(t, 2.0, cfg.Scheduler.UsersPerSecond)
	assert.Equal(t, 3000, cfg.TTS.MaxTextLen)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  scheduler_secret: "hunter2"
scheduler:
  tick_budget: 30s
  window_minutes: 15
llm:
  conversational:
    - provider: openai
      name: tier1
      model: gpt-5-mini
      cost_per_1k_in: 0.00025
      cost_per_1k_out: 0.002
  emergency:
    provider: anthropic
    name: emergency
    model: claude-haiku
tts:
  providers:
    - name: quality
      endpoint: https://tts.example.com/v1/speech
  silent_last: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "hunter2", cfg.Server.SchedulerSecret)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickBudget)
	assert.Equal(t, 15, cfg.Scheduler.WindowMinutes)
	require.Len(t, cfg.LLM.Conversational, 1)
	assert.Equal(t, "gpt-5-mini", cfg.LLM.Conversational[0].Model)
	require.NotNil(t, cfg.LLM.Emergency)
	assert.Equal(t, "anthropic", cfg.LLM.Emergency.Provider)
	assert.True(t, cfg.TTS.SilentLast)
	// defaults still fill the gaps
	assert.Equal(t, "data/beacon.db", cfg.Database.Path)
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Server.SchedulerSecret = "s"
	cfg.LLM.Conversational = []TierConfig{{Provider: "carrier-pigeon", Name: "t1"}}
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
