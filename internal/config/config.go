// Package config handles configuration loading and management for appforge.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Commit modes for the repository publisher.
const (
	CommitModeAtomic  = "atomic"
	CommitModePerFile = "per_file"
)

// Config holds all configuration for appforge.
type Config struct {
	// VerificationSecret is the shared value callers must present.
	VerificationSecret string         `mapstructure:"verification_secret" yaml:"verification_secret"`
	Server             ServerConfig   `mapstructure:"server" yaml:"server"`
	LLM                LLMConfig      `mapstructure:"llm" yaml:"llm"`
	GitHub             GitHubConfig   `mapstructure:"github" yaml:"github"`
	Publish            PublishConfig  `mapstructure:"publish" yaml:"publish"`
	Notify             NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Pipeline           PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// Async acknowledges requests before the pipeline runs.
	Async bool `mapstructure:"async" yaml:"async"`
	// RunRetention caps the finished runs kept in the journal; 0 keeps all.
	RunRetention int `mapstructure:"run_retention" yaml:"run_retention"`
}

// LLMConfig holds language model settings.
type LLMConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Model      string `mapstructure:"model" yaml:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
	UseBedrock bool   `mapstructure:"use_bedrock" yaml:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region" yaml:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"`
}

// GitHubConfig holds source-control API settings.
type GitHubConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
	// BaseURL overrides the REST endpoint (GitHub Enterprise, tests).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// PublishConfig holds repository publishing settings.
type PublishConfig struct {
	CommitMode  string `mapstructure:"commit_mode" yaml:"commit_mode"`
	Rollback    bool   `mapstructure:"rollback" yaml:"rollback"`
	EnablePages bool   `mapstructure:"enable_pages" yaml:"enable_pages"`
}

// NotifyConfig holds evaluation callback retry settings.
type NotifyConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffUnit    time.Duration `mapstructure:"backoff_unit" yaml:"backoff_unit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (GITHUB_PAT, LLM_API_KEY, VERIFICATION_SECRET, APPFORGE_*)
// 2. Project config (.appforge.yaml in current directory or parent)
// 3. User config (~/.config/appforge/config.yaml)
// 4. Built-in defaults
//
// The returned viper instance is the one that read the files; it is needed
// for watching secret rotation.
func Load() (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// The project file takes precedence; when present it becomes the
	// watched file.
	if projectConfig := findProjectConfig(); projectConfig != "" {
		v.SetConfigFile(projectConfig)
		if err := v.MergeInConfig(); err != nil {
			return nil, nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.VerificationSecret = expandEnv(cfg.VerificationSecret)
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.GitHub.Token = expandEnv(cfg.GitHub.Token)

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return cfg, nil
}

// bindEnv maps the environment variables the service is deployed with.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("APPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("github.token", "GITHUB_PAT")
	v.BindEnv("llm.api_key", "LLM_API_KEY")
	v.BindEnv("verification_secret", "VERIFICATION_SECRET")
}

// Validate fails fast when a required value is missing or malformed.
func (c *Config) Validate() error {
	var missing []string
	if c.GitHub.Token == "" {
		missing = append(missing, "GITHUB_PAT")
	}
	if c.LLM.APIKey == "" && !c.LLM.UseBedrock {
		missing = append(missing, "LLM_API_KEY")
	}
	if c.VerificationSecret == "" {
		missing = append(missing, "VERIFICATION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
	}

	switch c.Publish.CommitMode {
	case CommitModeAtomic, CommitModePerFile:
	default:
		return fmt.Errorf("invalid publish.commit_mode %q: want %q or %q",
			c.Publish.CommitMode, CommitModeAtomic, CommitModePerFile)
	}

	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1, got %d", c.Notify.MaxAttempts)
	}
	if c.Server.RunRetention < 0 {
		return fmt.Errorf("server.run_retention must not be negative, got %d", c.Server.RunRetention)
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be positive, got %s", c.Pipeline.Timeout)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("verification_secret", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.async", false)
	v.SetDefault("server.run_retention", 1000)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.use_bedrock", false)
	v.SetDefault("llm.aws_region", "")
	v.SetDefault("llm.aws_profile", "")

	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "")

	v.SetDefault("publish.commit_mode", CommitModeAtomic)
	v.SetDefault("publish.rollback", true)
	v.SetDefault("publish.enable_pages", true)

	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("notify.backoff_unit", "1s")
	v.SetDefault("notify.request_timeout", "30s")

	v.SetDefault("pipeline.timeout", "10m")
}

// getUserConfigDir returns the XDG config directory for appforge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "appforge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "appforge")
	}
	return filepath.Join(home, ".config", "appforge")
}

// findProjectConfig searches for .appforge.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".appforge.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values and no secrets.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			RunRetention: 1000,
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 8192,
		},
		Publish: PublishConfig{
			CommitMode:  CommitModeAtomic,
			Rollback:    true,
			EnablePages: true,
		},
		Notify: NotifyConfig{
			MaxAttempts:    5,
			BackoffUnit:    time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Timeout: 10 * time.Minute,
		},
	}
}
