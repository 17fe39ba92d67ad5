// Package config handles configuration loading for the jarvis engine.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Paths        PathsConfig        `mapstructure:"paths"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Supervisor   SupervisorConfig   `mapstructure:"supervisor"`
	Intervention InterventionConfig `mapstructure:"intervention"`
}

// GatewayConfig holds the remote gateway connection settings. An empty URL
// makes the engine fall back to the direct Anthropic transport.
type GatewayConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// AnthropicConfig holds direct-API settings for the fallback transport.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the Claude model id; empty uses the SDK default.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// Anthropic API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// PathsConfig holds filesystem locations the engine reads and writes.
type PathsConfig struct {
	// DataDir holds tasks.json, runtime.json, and intervention state.
	DataDir string `mapstructure:"data_dir"`
	// ReportsDir is where intervention reports are written.
	ReportsDir string `mapstructure:"reports_dir"`
	// HistoryDB is the sqlite run-history database path.
	HistoryDB string `mapstructure:"history_db"`
	// AgentsFile is the yaml agent roster.
	AgentsFile string `mapstructure:"agents_file"`
}

// SchedulerConfig holds the tick and cooldown policy.
type SchedulerConfig struct {
	// TickInterval is the fixed re-evaluation period.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// RunTimeout bounds a single agent call.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	// ContinueCooldown defers a task after a continue outcome.
	ContinueCooldown time.Duration `mapstructure:"continue_cooldown"`
	// BlockedCooldown defers a task after an internal blocker.
	BlockedCooldown time.Duration `mapstructure:"blocked_cooldown"`
	// ExternalBlockedCooldown defers a task whose blocker needs a human.
	ExternalBlockedCooldown time.Duration `mapstructure:"external_blocked_cooldown"`
	// RateLimitCooldown defers a task after a rate-limit transport error.
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	// TimeoutCooldown defers a task after a transport timeout.
	TimeoutCooldown time.Duration `mapstructure:"timeout_cooldown"`
	// ErrorCooldown defers a task after any other transport error.
	ErrorCooldown time.Duration `mapstructure:"error_cooldown"`
	// StallThreshold is how long the queue may sit idle before the
	// dead-man switch force-dispatches.
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
	// NormalizeCooldown defers a task pulled back from a stale
	// in-progress state at startup.
	NormalizeCooldown time.Duration `mapstructure:"normalize_cooldown"`
}

// SupervisorConfig names the agent that receives status and escalation
// notifications.
type SupervisorConfig struct {
	Name string `mapstructure:"name"`
}

// InterventionConfig holds the recurring-failure escalation policy.
type InterventionConfig struct {
	// Window is how long a fired fingerprint suppresses re-escalation.
	Window time.Duration `mapstructure:"window"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (JARVIS_GATEWAY_URL, JARVIS_GATEWAY_TOKEN, ANTHROPIC_API_KEY)
// 2. Project config (.jarvis.yaml in current directory or parent)
// 3. User config (~/.config/jarvis/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("gateway.url", "JARVIS_GATEWAY_URL")
	v.BindEnv("gateway.token", "JARVIS_GATEWAY_TOKEN")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Gateway.Token = os.ExpandEnv(cfg.Gateway.Token)
	cfg.applyPathDefaults()

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Gateway.Token = os.ExpandEnv(cfg.Gateway.Token)
	cfg.applyPathDefaults()

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// applyPathDefaults fills path fields that derive from the data directory.
func (c *Config) applyPathDefaults() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = defaultDataDir()
	}
	if c.Paths.ReportsDir == "" {
		c.Paths.ReportsDir = filepath.Join(c.Paths.DataDir, "reports")
	}
	if c.Paths.HistoryDB == "" {
		c.Paths.HistoryDB = filepath.Join(c.Paths.DataDir, "history.db")
	}
	if c.Paths.AgentsFile == "" {
		c.Paths.AgentsFile = filepath.Join(getUserConfigDir(), "agents.yaml")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.token", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("paths.data_dir", "")
	v.SetDefault("paths.reports_dir", "")
	v.SetDefault("paths.history_db", "")
	v.SetDefault("paths.agents_file", "")

	v.SetDefault("scheduler.tick_interval", "4s")
	v.SetDefault("scheduler.run_timeout", "180s")
	v.SetDefault("scheduler.continue_cooldown", "120s")
	v.SetDefault("scheduler.blocked_cooldown", "60s")
	v.SetDefault("scheduler.external_blocked_cooldown", "1h")
	v.SetDefault("scheduler.rate_limit_cooldown", "1h")
	v.SetDefault("scheduler.timeout_cooldown", "60s")
	v.SetDefault("scheduler.error_cooldown", "10m")
	v.SetDefault("scheduler.stall_threshold", "20s")
	v.SetDefault("scheduler.normalize_cooldown", "30s")

	v.SetDefault("supervisor.name", "jarvis")

	v.SetDefault("intervention.window", "24h")
}

// getUserConfigDir returns the XDG config directory for jarvis.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "jarvis")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "jarvis")
	}
	return filepath.Join(home, ".config", "jarvis")
}

// defaultDataDir returns the XDG data directory for jarvis.
func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "jarvis")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "jarvis")
	}
	return filepath.Join(home, ".local", "share", "jarvis")
}

// findProjectConfig searches for .jarvis.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".jarvis.yaml")
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

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{
		Scheduler: SchedulerConfig{
			TickInterval:            4 * time.Second,
			RunTimeout:              180 * time.Second,
			ContinueCooldown:        120 * time.Second,
			BlockedCooldown:         60 * time.Second,
			ExternalBlockedCooldown: time.Hour,
			RateLimitCooldown:       time.Hour,
			TimeoutCooldown:         60 * time.Second,
			ErrorCooldown:           10 * time.Minute,
			StallThreshold:          20 * time.Second,
			NormalizeCooldown:       30 * time.Second,
		},
		Supervisor: SupervisorConfig{
			Name: "jarvis",
		},
		Intervention: InterventionConfig{
			Window: 24 * time.Hour,
		},
	}
	cfg.applyPathDefaults()
	return cfg
}
