package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: test-key
  model: gpt-4o-mini
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "console", cfg.App.LogFormat)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.ActionTimeout())
	assert.Equal(t, 10, cfg.Runner.MaxAttempts)
	assert.Equal(t, 2000, cfg.Runner.ActionSettleMS)
	assert.Equal(t, "reports", cfg.Report.Dir)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
  log_format: json
provider:
  name: openrouter
  api_key: test-key
  model: some-model
  base_url: https://openrouter.test/api/v1
browser:
  headless: false
  action_timeout_seconds: 30
runner:
  max_attempts: 5
  action_settle_ms: 0
  policy:
    deny_selectors:
      - "delete"
store:
  path: runs.db
report:
  dir: out
scenarios:
  - name: login
    objective: log in with the test account
    start_url: https://example.test/login
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "openrouter", cfg.Provider.Name)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.ActionTimeout())
	assert.Equal(t, 5, cfg.Runner.MaxAttempts)
	assert.Equal(t, 0, cfg.Runner.ActionSettleMS)
	assert.Equal(t, []string{"delete"}, cfg.Runner.Policy.DenySelectors)
	assert.Equal(t, "runs.db", cfg.Store.Path)
	assert.Equal(t, "out", cfg.Report.Dir)
	require.Len(t, cfg.Scenarios, 1)
	assert.Equal(t, "login", cfg.Scenarios[0].Name)
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	path := writeConfig(t, `
provider:
  model: gpt-4o-mini
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "api_key")
}

func TestLoadRejectsMissingModel(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: test-key
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "model")
}

func TestLoadRejectsIncompleteScenario(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: test-key
  model: gpt-4o-mini
scenarios:
  - name: broken
    objective: has no url
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "scenario")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
