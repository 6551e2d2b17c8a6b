// Package config loads the front-end settings from YAML or JSON with
// ULIFT_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"ulift/internal/roster"
)

// Config is the complete front-end configuration.
type Config struct {
	ListenAddr    string          `yaml:"listen_addr" json:"listen_addr"`
	API           APIConfig       `yaml:"api" json:"api"`
	Chat          ChatConfig      `yaml:"chat" json:"chat"`
	Upload        UploadConfig    `yaml:"upload" json:"upload"`
	Log           LogConfig       `yaml:"log" json:"log"`
	MasterKeyPath string          `yaml:"master_key_path" json:"master_key_path"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Session       SessionConfig   `yaml:"session" json:"session"`
	TLS           TLSConfig       `yaml:"tls" json:"tls"`
}

// APIConfig points at the uLift users API.
type APIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// ChatConfig locates the chat service relative to the page host.
type ChatConfig struct {
	Port   int    `yaml:"port" json:"port"`
	Path   string `yaml:"path" json:"path"`
	Secure bool   `yaml:"secure" json:"secure"`
}

// UploadConfig bounds the photo uploads.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

// LogConfig selects the zap level and an optional log file.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// RateLimitConfig throttles form posts per client address.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// SessionConfig controls the lifetime of idle form instances.
type SessionConfig struct {
	IdleTTL string `yaml:"idle_ttl" json:"idle_ttl"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":3000",
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: "30s",
		},
		Chat: ChatConfig{
			Port: roster.DefaultPort,
			Path: "/",
		},
		Upload: UploadConfig{MaxBytes: 10 << 20},
		Log:    LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			PerSecond: 2,
			Burst:     5,
		},
		Session:       SessionConfig{IdleTTL: "30m"},
		MasterKeyPath: "master.key",
	}
}

// Load reads path as JSON when it ends in .json and as YAML otherwise.
// A missing file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	case strings.EqualFold(filepath.Ext(path), ".json"):
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	config     *Config
	configErr  error
	configOnce sync.Once
)

// LoadConfig loads the process-wide configuration once. The file is taken
// from ULIFT_CONFIG, else config.yaml, else config.json in the working directory.
func LoadConfig() (*Config, error) {
	configOnce.Do(func() {
		config, configErr = Load(DefaultPath())
	})
	return config, configErr
}

// DefaultPath picks the config file LoadConfig reads.
func DefaultPath() string {
	if p := os.Getenv("ULIFT_CONFIG"); p != "" {
		return p
	}
	for _, p := range []string{"config.yaml", "config.yml", "config.json"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "config.yaml"
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ULIFT_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("ULIFT_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ULIFT_API_TIMEOUT"); v != "" {
		c.API.Timeout = v
	}
	if v := os.Getenv("ULIFT_CHAT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ULIFT_CHAT_PORT: %w", err)
		}
		c.Chat.Port = port
	}
	if v := os.Getenv("ULIFT_CHAT_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ULIFT_CHAT_SECURE: %w", err)
		}
		c.Chat.Secure = secure
	}
	if v := os.Getenv("ULIFT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ULIFT_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("ULIFT_TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("ULIFT_TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}
	if v := os.Getenv("ULIFT_MASTER_KEY_PATH"); v != "" {
		c.MasterKeyPath = v
	}
	return nil
}

// GetAPITimeout returns the users API timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetSessionIdleTTL returns how long an untouched form instance is kept.
func (c *Config) GetSessionIdleTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.IdleTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is empty")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}
	if c.Chat.Port <= 0 || c.Chat.Port > 65535 {
		return fmt.Errorf("invalid chat.port: %d", c.Chat.Port)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}
