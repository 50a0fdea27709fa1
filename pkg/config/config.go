package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the Vahan dashboard fetcher
type Config struct {
	// Dashboard connection settings
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Fetch scope and mode
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DashboardConfig holds settings for the remote dashboard application
type DashboardConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// FetchConfig holds fetch scope and mode settings
type FetchConfig struct {
	// FetchAll fetches the full history for every tracked year. When false,
	// only the month immediately preceding the current month is fetched.
	FetchAll bool `yaml:"fetch_all" json:"fetch_all"`
	// States limits the run to the given state codes. Empty means all.
	States []string `yaml:"states" json:"states"`
	// Years is the tracked year list, newest first
	Years []string `yaml:"years" json:"years"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	// RawDirectory is where fetched fragments are stored
	RawDirectory string `yaml:"raw_directory" json:"raw_directory"`
	// DataDirectory is where the parse stage writes combined records
	DataDirectory string `yaml:"data_directory" json:"data_directory"`
	// LedgerPath is the completion ledger file
	LedgerPath string `yaml:"ledger_path" json:"ledger_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultStates is the set of state codes served by the dashboard
var DefaultStates = []string{
	"AP", "AR", "AS", "BR", "CG", "GA", "GJ", "HR", "HP", "JH",
	"KA", "KL", "MP", "MH", "MN", "ML", "MZ", "NL", "OD", "PB",
	"RJ", "SK", "TN", "TS", "TR", "UK", "UP", "WB", "AN", "CH",
	"DN", "DD", "DL", "LD", "PY", "JK",
}

// DefaultYears is the tracked year list, newest first. The dashboard renders
// year links in this order after the leading "till today" link.
var DefaultYears = []string{"2025", "2024", "2023", "2022", "2021"}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Dashboard: DashboardConfig{
			BaseURL:        "https://vahan.parivahan.gov.in/vahan4dashboard/",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Fetch: FetchConfig{
			FetchAll: false,
			States:   DefaultStates,
			Years:    DefaultYears,
		},
		Output: OutputConfig{
			RawDirectory:  "raw",
			DataDirectory: "data",
			LedgerPath:    ".completed.json",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("VAHANFETCH_BASE_URL"); baseURL != "" {
		c.Dashboard.BaseURL = baseURL
	}
	if userAgent := os.Getenv("VAHANFETCH_USER_AGENT"); userAgent != "" {
		c.Dashboard.UserAgent = userAgent
	}
	if rpm := os.Getenv("VAHANFETCH_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if rawDir := os.Getenv("VAHANFETCH_RAW_DIR"); rawDir != "" {
		c.Output.RawDirectory = rawDir
	}
	if states := os.Getenv("VAHANFETCH_STATES"); states != "" {
		c.Fetch.States = splitList(states)
	}
	if fetchAll := os.Getenv("VAHANFETCH_FETCH_ALL"); fetchAll != "" {
		c.Fetch.FetchAll = strings.ToLower(fetchAll) == "true"
	}
	if logLevel := os.Getenv("VAHANFETCH_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".vahanfetch.yaml",
		".vahanfetch.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "vahanfetch", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "vahanfetch", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".vahanfetch.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Dashboard.BaseURL == "" {
		errs = append(errs, errors.New("dashboard base URL is required"))
	}
	if c.Dashboard.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if len(c.Fetch.States) == 0 {
		errs = append(errs, errors.New("at least one state is required"))
	}
	if len(c.Fetch.Years) == 0 {
		errs = append(errs, errors.New("at least one tracked year is required"))
	}
	if c.Output.RawDirectory == "" {
		errs = append(errs, errors.New("raw directory is required"))
	}
	if c.Output.LedgerPath == "" {
		errs = append(errs, errors.New("ledger path is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if states, ok := flags["states"].(string); ok && states != "" {
		c.Fetch.States = splitList(states)
	}
	if fetchAll, ok := flags["fetch-all"].(bool); ok && fetchAll {
		c.Fetch.FetchAll = true
	}
	if rateLimit, ok := flags["rate-limit"].(int); ok && rateLimit > 0 {
		c.RateLimit.RequestsPerMinute = rateLimit
	}
	if rawDir, ok := flags["raw-dir"].(string); ok && rawDir != "" {
		c.Output.RawDirectory = rawDir
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".vahanfetch.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
