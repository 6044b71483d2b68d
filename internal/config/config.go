// Package config provides configuration for the care assistant.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigFile names an optional YAML file loaded before the environment.
	EnvConfigFile = "CAREASSIST_CONFIG"
	// EnvMode selects the completion service implementation.
	EnvMode = "CAREASSIST_MODE"
	// ModeMock selects the in-memory completion service.
	ModeMock = "MOCK"

	mockAPIKey      = "sk-mock"
	mockAssistantID = "asst_mock"
)

// Config holds the care assistant configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Completion service
	Mode        string `yaml:"mode"`
	BaseURL     string `yaml:"openai_base_url"`
	APIKey      string `yaml:"openai_api_key"`
	AssistantID string `yaml:"openai_assistant_id"`

	// Polling and timeouts. A zero RunTimeout or HTTPTimeout disables that bound.
	PollInterval time.Duration `yaml:"-"`
	RunTimeout   time.Duration `yaml:"-"`
	HTTPTimeout  time.Duration `yaml:"-"`
	MaxPolls     int           `yaml:"max_polls"`

	// Admission
	MaxMessageChars int    `yaml:"max_message_chars"`
	PolicyFile      string `yaml:"policy_file"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// fileConfig mirrors Config for YAML decoding; durations are in milliseconds.
// An explicit 0 disables the run and HTTP timeouts.
type fileConfig struct {
	Config         `yaml:",inline"`
	PollIntervalMs *int `yaml:"poll_interval_ms"`
	RunTimeoutMs   *int `yaml:"run_timeout_ms"`
	HTTPTimeoutMs  *int `yaml:"http_timeout_ms"`
}

// Credentials is the pair of values the completion service requires.
type Credentials struct {
	APIKey      string
	AssistantID string
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPPort:        8080,
		DatabaseURL:     "file:careassist.db?cache=shared&mode=rwc",
		BaseURL:         "https://api.openai.com",
		PollInterval:    1000 * time.Millisecond,
		RunTimeout:      120000 * time.Millisecond,
		HTTPTimeout:     30000 * time.Millisecond,
		MaxMessageChars: 32000,
		LogLevel:        "info",
	}
}

// Load loads configuration from the optional YAML file and then from
// environment variables. Environment values win.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	fc := fileConfig{Config: *c}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if fc.PollIntervalMs != nil && *fc.PollIntervalMs > 0 {
		fc.Config.PollInterval = time.Duration(*fc.PollIntervalMs) * time.Millisecond
	}
	if fc.RunTimeoutMs != nil && *fc.RunTimeoutMs >= 0 {
		fc.Config.RunTimeout = time.Duration(*fc.RunTimeoutMs) * time.Millisecond
	}
	if fc.HTTPTimeoutMs != nil && *fc.HTTPTimeoutMs >= 0 {
		fc.Config.HTTPTimeout = time.Duration(*fc.HTTPTimeoutMs) * time.Millisecond
	}
	*c = fc.Config
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.Mode = getEnv(EnvMode, c.Mode)
	c.BaseURL = getEnv("OPENAI_BASE_URL", c.BaseURL)
	c.APIKey = strings.TrimSpace(getEnv("OPENAI_API_KEY", c.APIKey))
	c.AssistantID = strings.TrimSpace(getEnv("OPENAI_ASSISTANT_ID", c.AssistantID))
	if ms := getEnvMillis("POLL_INTERVAL_MS", c.PollInterval); ms > 0 {
		c.PollInterval = ms
	}
	c.RunTimeout = getEnvMillis("RUN_TIMEOUT_MS", c.RunTimeout)
	c.HTTPTimeout = getEnvMillis("HTTP_TIMEOUT_MS", c.HTTPTimeout)
	c.MaxPolls = getEnvInt("MAX_POLLS", c.MaxPolls)
	c.MaxMessageChars = getEnvInt("MAX_MESSAGE_CHARS", c.MaxMessageChars)
	c.PolicyFile = getEnv("POLICY_FILE", c.PolicyFile)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	if c.MockMode() {
		if c.APIKey == "" {
			c.APIKey = mockAPIKey
		}
		if c.AssistantID == "" {
			c.AssistantID = mockAssistantID
		}
	}
}

// Credentials returns the completion service credentials.
func (c *Config) Credentials() Credentials {
	return Credentials{APIKey: c.APIKey, AssistantID: c.AssistantID}
}

// MockMode reports whether the in-memory completion service is selected.
func (c *Config) MockMode() bool {
	return strings.EqualFold(c.Mode, ModeMock)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvMillis reads a millisecond count. 0 is a valid value; negative or
// malformed values keep the default.
func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil && intVal >= 0 {
			return time.Duration(intVal) * time.Millisecond
		}
	}
	return defaultVal
}
