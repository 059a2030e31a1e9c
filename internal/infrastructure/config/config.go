// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	token := cfg.Ledger.AccessToken
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Ledger        LedgerConfig        `yaml:"ledger"`
	Sync          SyncConfig          `yaml:"sync"`
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LedgerConfig holds external ledger service configuration
type LedgerConfig struct {
	BaseURL     string        `yaml:"base_url"`
	AccessToken string        `yaml:"access_token"`
	BudgetID    string        `yaml:"budget_id"`
	Timeout     time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts the timeout as a duration string ("30s", "1m").
func (l *LedgerConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		BaseURL     string `yaml:"base_url"`
		AccessToken string `yaml:"access_token"`
		BudgetID    string `yaml:"budget_id"`
		Timeout     string `yaml:"timeout"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	l.BaseURL = r.BaseURL
	l.AccessToken = r.AccessToken
	l.BudgetID = r.BudgetID
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return fmt.Errorf("ledger.timeout: %w", err)
		}
		l.Timeout = d
	}
	return nil
}

// SyncConfig holds sync and matching settings
type SyncConfig struct {
	LookbackDays int `yaml:"lookback_days"`
	WindowDays   int `yaml:"window_days"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// APIConfig holds HTTP server configuration
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${LEDGER_TOKEN})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Ledger: LedgerConfig{
			BaseURL:     getEnv("LEDGER_BASE_URL", ""),
			AccessToken: os.Getenv("LEDGER_TOKEN"),
			BudgetID:    os.Getenv("LEDGER_BUDGET_ID"),
		},
		Sync: SyncConfig{
			LookbackDays: getEnvInt("SYNC_LOOKBACK_DAYS", 0),
			WindowDays:   getEnvInt("SYNC_WINDOW_DAYS", 0),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("SYNC_DB_PATH", "budgetlens_sync.db"),
		},
		API: APIConfig{
			Port: getEnvInt("API_PORT", 0),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// applyDefaults fills zero values that have a sensible default.
func (c *Config) applyDefaults() {
	if c.Ledger.Timeout == 0 {
		c.Ledger.Timeout = 30 * time.Second
	}
	if c.Sync.LookbackDays == 0 {
		c.Sync.LookbackDays = 90
	}
	if c.Sync.WindowDays == 0 {
		c.Sync.WindowDays = 5
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "budgetlens_sync.db"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// Validate checks that everything required to talk to the ledger is present.
func (c *Config) Validate() error {
	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required")
	}
	if c.Ledger.AccessToken == "" {
		return fmt.Errorf("ledger.access_token is required (or set LEDGER_TOKEN)")
	}
	if c.Ledger.BudgetID == "" {
		return fmt.Errorf("ledger.budget_id is required (or set LEDGER_BUDGET_ID)")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}
