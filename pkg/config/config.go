// Package config loads the YAML configuration file and applies defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig      `yaml:"app"`
	Provider  ProviderConfig `yaml:"provider"`
	Browser   BrowserConfig  `yaml:"browser"`
	Runner    RunnerConfig   `yaml:"runner"`
	Store     StoreConfig    `yaml:"store"`
	Report    ReportConfig   `yaml:"report"`
	Scenarios []Scenario     `yaml:"scenarios"`
}

type AppConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type ProviderConfig struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type BrowserConfig struct {
	Headless             bool `yaml:"headless"`
	ActionTimeoutSeconds int  `yaml:"action_timeout_seconds"`
}

type RunnerConfig struct {
	MaxAttempts    int          `yaml:"max_attempts"`
	ActionSettleMS int          `yaml:"action_settle_ms"`
	OraclePauseMS  int          `yaml:"oracle_pause_ms"`
	ObserveRetryMS int          `yaml:"observe_retry_ms"`
	Policy         PolicyConfig `yaml:"policy"`
}

type PolicyConfig struct {
	DenySelectors []string `yaml:"deny_selectors"`
	DenyText      []string `yaml:"deny_text"`
}

type StoreConfig struct {
	// Path of the sqlite database. Empty disables persistence.
	Path string `yaml:"path"`
}

type ReportConfig struct {
	Dir string `yaml:"dir"`
}

// Scenario is one objective to run against a start URL.
type Scenario struct {
	Name      string `yaml:"name"`
	Objective string `yaml:"objective"`
	StartURL  string `yaml:"start_url"`
}

func (b BrowserConfig) ActionTimeout() time.Duration {
	return time.Duration(b.ActionTimeoutSeconds) * time.Second
}

// Load reads the config file and fills in defaults for omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
		Browser: BrowserConfig{
			Headless:             true,
			ActionTimeoutSeconds: 60,
		},
		Runner: RunnerConfig{
			MaxAttempts:    10,
			ActionSettleMS: 2000,
			OraclePauseMS:  1000,
			ObserveRetryMS: 1000,
		},
		Report: ReportConfig{
			Dir: "reports",
		},
	}
}

func (c *Config) validate() error {
	if c.Provider.APIKey == "" {
		return errors.New("provider.api_key is required")
	}
	if c.Provider.Model == "" {
		return errors.New("provider.model is required")
	}
	if c.Runner.MaxAttempts <= 0 {
		return errors.New("runner.max_attempts must be positive")
	}
	for i, s := range c.Scenarios {
		if s.Objective == "" || s.StartURL == "" {
			return fmt.Errorf("scenario %d needs both an objective and a start_url", i+1)
		}
	}
	return nil
}
