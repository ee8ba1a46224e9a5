// Package config loads zedlogin settings from ~/.zedlogin/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalConfig holds settings from ~/.zedlogin/config.yaml.
type GlobalConfig struct {
	Provider ProviderConfig `yaml:"provider"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Browser  BrowserConfig  `yaml:"browser"`
	Debug    DebugConfig    `yaml:"debug"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ProviderConfig holds the provider endpoints.
type ProviderConfig struct {
	SignInURL  string `yaml:"signin_url"`
	SuccessURL string `yaml:"success_url"`
}

// ExchangeConfig holds exchange timing.
type ExchangeConfig struct {
	CallbackTimeout time.Duration `yaml:"callback_timeout"`
	AccountDelay    time.Duration `yaml:"account_delay"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
}

// BrowserConfig holds Chrome settings.
type BrowserConfig struct {
	Headless    bool          `yaml:"headless"`
	ExecPath    string        `yaml:"exec_path"`
	PageTimeout time.Duration `yaml:"page_timeout"`
}

// DebugConfig holds debug log settings.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// AuditConfig holds exchange history settings.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig holds metrics settings. An empty Textfile disables metrics.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultGlobalConfig returns the default configuration.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Provider: ProviderConfig{
			SignInURL:  "https://zed.dev/native_app_signin",
			SuccessURL: "https://zed.dev/native_app_signin_succeeded",
		},
		Exchange: ExchangeConfig{
			CallbackTimeout: 2 * time.Minute,
			AccountDelay:    time.Second,
			SettleDelay:     2 * time.Second,
		},
		Browser: BrowserConfig{
			PageTimeout: 60 * time.Second,
		},
		Debug: DebugConfig{
			RetentionDays: 14,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

// LoadGlobal reads ~/.zedlogin/config.yaml and applies environment overrides.
// A missing file yields the defaults.
func LoadGlobal() (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	configPath := filepath.Join(GlobalConfigDir(), "config.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *GlobalConfig) error {
	if v := os.Getenv("ZEDLOGIN_SIGNIN_URL"); v != "" {
		cfg.Provider.SignInURL = v
	}
	if v := os.Getenv("ZEDLOGIN_SUCCESS_URL"); v != "" {
		cfg.Provider.SuccessURL = v
	}
	if v := os.Getenv("ZEDLOGIN_BROWSER_EXEC_PATH"); v != "" {
		cfg.Browser.ExecPath = v
	}
	if v := os.Getenv("ZEDLOGIN_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"ZEDLOGIN_CALLBACK_TIMEOUT", &cfg.Exchange.CallbackTimeout},
		{"ZEDLOGIN_ACCOUNT_DELAY", &cfg.Exchange.AccountDelay},
		{"ZEDLOGIN_SETTLE_DELAY", &cfg.Exchange.SettleDelay},
		{"ZEDLOGIN_PAGE_TIMEOUT", &cfg.Browser.PageTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.env, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("ZEDLOGIN_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ZEDLOGIN_HEADLESS: %w", err)
		}
		cfg.Browser.Headless = b
	}
	return nil
}

// GlobalConfigDir returns ~/.zedlogin, or $ZEDLOGIN_HOME when set.
func GlobalConfigDir() string {
	if dir := os.Getenv("ZEDLOGIN_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".zedlogin")
	}
	return filepath.Join(homeDir, ".zedlogin")
}

// DebugDir is where daily debug logs are written.
func DebugDir() string {
	return filepath.Join(GlobalConfigDir(), "debug")
}

// HistoryPath is the exchange history database.
func HistoryPath() string {
	return filepath.Join(GlobalConfigDir(), "history.db")
}
