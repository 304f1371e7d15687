// Package config provides CLI configuration management for the docchat
// command-line tool. It supports loading configuration from YAML files and
// environment variables, with command-line flags layered on top by main.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
)

// Default configuration values.
const (
	DefaultServerURL    = "http://localhost:8000"
	DefaultTimeout      = 2 * time.Minute
	DefaultPollInterval = 3 * time.Second
	DefaultOutputFormat = OutputFormatText
	DefaultConfigDir    = ".docchat"
	DefaultConfigFile   = "config.yaml"
)

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// ServerURL is the base URL of the DocChat backend.
	ServerURL string `yaml:"server_url"`

	// Timeout is the default deadline for REST requests. Streaming turns
	// are not bounded by it.
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is the spacing between document status poll cycles.
	PollInterval time.Duration `yaml:"poll_interval"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// IncludeTimestamps asks the backend to attach media timestamps to
	// answers by default.
	IncludeTimestamps bool `yaml:"include_timestamps"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// JSONLogs switches log output from console format to JSON.
	JSONLogs bool `yaml:"json_logs,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		ServerURL:         DefaultServerURL,
		Timeout:           DefaultTimeout,
		PollInterval:      DefaultPollInterval,
		OutputFormat:      DefaultOutputFormat,
		IncludeTimestamps: true,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $DOCCHAT_CONFIG_DIR if set, otherwise ~/.docchat
func ConfigDir() (string, error) {
	if dir := os.Getenv("DOCCHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.docchat/config.yaml or $DOCCHAT_CONFIG_DIR/config.yaml)
// 3. Environment variables (DOCCHAT_SERVER_URL, DOCCHAT_TIMEOUT, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// A temp struct is needed to unmarshal durations given as strings.
	type configFile struct {
		ServerURL         string       `yaml:"server_url"`
		Timeout           string       `yaml:"timeout"`
		PollInterval      string       `yaml:"poll_interval"`
		OutputFormat      OutputFormat `yaml:"output_format"`
		IncludeTimestamps *bool        `yaml:"include_timestamps"`
		Debug             bool         `yaml:"debug"`
		JSONLogs          bool         `yaml:"json_logs"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.ServerURL != "" {
		cfg.ServerURL = fileCfg.ServerURL
	}
	if fileCfg.Timeout != "" {
		d, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", fileCfg.Timeout, err)
		}
		cfg.Timeout = d
	}
	if fileCfg.PollInterval != "" {
		d, err := time.ParseDuration(fileCfg.PollInterval)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", fileCfg.PollInterval, err)
		}
		cfg.PollInterval = d
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.IncludeTimestamps != nil {
		cfg.IncludeTimestamps = *fileCfg.IncludeTimestamps
	}
	if fileCfg.Debug {
		cfg.Debug = true
	}
	if fileCfg.JSONLogs {
		cfg.JSONLogs = true
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("DOCCHAT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("DOCCHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("DOCCHAT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("DOCCHAT_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if v := os.Getenv("DOCCHAT_INCLUDE_TIMESTAMPS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IncludeTimestamps = b
		}
	}
	if v := os.Getenv("DOCCHAT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("DOCCHAT_JSON_LOGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.JSONLogs = b
		}
	}
}

// Validate checks that the configuration values are usable.
func (c *CLIConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must not be empty")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server_url must start with http:// or https://, got %q", c.ServerURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	switch c.OutputFormat {
	case OutputFormatText, OutputFormatJSON:
	default:
		return fmt.Errorf("output_format must be text or json, got %q", c.OutputFormat)
	}
	return nil
}

// Save writes the configuration to the config file, creating the directory
// if needed.
func (c *CLIConfig) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Durations are written as strings ("2m0s") so the file stays
	// hand-editable and round-trips through loadFromFile.
	out := struct {
		ServerURL         string       `yaml:"server_url"`
		Timeout           string       `yaml:"timeout"`
		PollInterval      string       `yaml:"poll_interval"`
		OutputFormat      OutputFormat `yaml:"output_format"`
		IncludeTimestamps bool         `yaml:"include_timestamps"`
		Debug             bool         `yaml:"debug,omitempty"`
		JSONLogs          bool         `yaml:"json_logs,omitempty"`
	}{
		ServerURL:         c.ServerURL,
		Timeout:           c.Timeout.String(),
		PollInterval:      c.PollInterval.String(),
		OutputFormat:      c.OutputFormat,
		IncludeTimestamps: c.IncludeTimestamps,
		Debug:             c.Debug,
		JSONLogs:          c.JSONLogs,
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
