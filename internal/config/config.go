package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete tabgroup configuration
type Config struct {
	AI       AIConfig       `mapstructure:"ai"`
	Grouping GroupingConfig `mapstructure:"grouping"`
	Debug    DebugConfig    `mapstructure:"debug"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Host     HostConfig     `mapstructure:"host"`
}

// AIConfig selects and configures the classifier backend
type AIConfig struct {
	// Provider is the backend protocol. Options: "openai", "ollama"
	Provider string `mapstructure:"provider"`
	// Endpoint is the base URL of the provider API
	Endpoint string `mapstructure:"endpoint"`
	// APIKey is sent as a bearer token. Not required for ollama.
	APIKey string `mapstructure:"api_key"`
	// Model is the model identifier passed to the provider
	Model string `mapstructure:"model"`
	// TimeoutSeconds bounds a single classification request (default: 120)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// ReasoningEffort is forwarded to reasoning models.
	// Options: "off", "low", "medium", "high"
	ReasoningEffort string `mapstructure:"reasoning_effort"`
}

// RequestTimeout returns the classification timeout as a Duration
func (c *AIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GroupingConfig controls how groups are applied
type GroupingConfig struct {
	// CollapseOthers collapses every new group except the one holding the
	// previously active tab (default: true)
	CollapseOthers bool `mapstructure:"collapse_others"`
}

// DebugConfig controls the per-run debug trace
type DebugConfig struct {
	// Enabled collects a debug trace for each organize run and returns it
	// with the result (default: false)
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig controls the host log file
type LoggingConfig struct {
	// Level is the minimum log level. Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// MaxSizeMB is the size at which host.log is rotated (default: 5)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept (default: 2)
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls on-disk locations
type PathsConfig struct {
	// StateDir holds the task state document and the host log.
	// Empty means the platform state directory.
	StateDir string `mapstructure:"state_dir"`
}

// HostConfig controls the native messaging host
type HostConfig struct {
	// MCPAddr, when set, serves the task operations as MCP tools over
	// streamable HTTP on this address (e.g. "127.0.0.1:7331")
	MCPAddr string `mapstructure:"mcp_addr"`
	// AllowedOrigins lists the chrome-extension:// origins allowed to start
	// the host. Empty accepts any caller.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ResolveStateDir returns the resolved state directory.
// A leading ~ expands to the user's home directory.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir == "" {
		return StateDir()
	}
	path := p.StateDir
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// Default values mirror the browser extension's defaults.
const (
	DefaultProvider  = ProviderOpenAI
	DefaultEndpoint  = "https://openrouter.ai/api/v1"
	DefaultModel     = "x-ai/grok-4.1-fast"
	DefaultTimeout   = 120
	DefaultReasoning = "off"
)

// Supported AI providers
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Provider:        DefaultProvider,
			Endpoint:        DefaultEndpoint,
			APIKey:          "",
			Model:           DefaultModel,
			TimeoutSeconds:  DefaultTimeout,
			ReasoningEffort: DefaultReasoning,
		},
		Grouping: GroupingConfig{
			CollapseOthers: true,
		},
		Debug: DebugConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 2,
		},
		Paths: PathsConfig{
			StateDir: "",
		},
		Host: HostConfig{
			MCPAddr:        "",
			AllowedOrigins: []string{},
		},
	}
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// AI defaults
	v.SetDefault("ai.provider", defaults.AI.Provider)
	v.SetDefault("ai.endpoint", defaults.AI.Endpoint)
	v.SetDefault("ai.api_key", defaults.AI.APIKey)
	v.SetDefault("ai.model", defaults.AI.Model)
	v.SetDefault("ai.timeout_seconds", defaults.AI.TimeoutSeconds)
	v.SetDefault("ai.reasoning_effort", defaults.AI.ReasoningEffort)

	v.SetDefault("grouping.collapse_others", defaults.Grouping.CollapseOthers)
	v.SetDefault("debug.enabled", defaults.Debug.Enabled)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	v.SetDefault("paths.state_dir", defaults.Paths.StateDir)

	v.SetDefault("host.mcp_addr", defaults.Host.MCPAddr)
	v.SetDefault("host.allowed_origins", defaults.Host.AllowedOrigins)
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the configuration held by the global viper instance, falling
// back to defaults if it cannot be loaded
func Get() *Config {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tabgroup")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tabgroup"
	}
	return filepath.Join(home, ".config", "tabgroup")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the default state directory
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "tabgroup")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tabgroup", "state")
	}
	return filepath.Join(home, ".local", "state", "tabgroup")
}

// ValidProviders returns the list of supported AI providers
func ValidProviders() []string {
	return []string{ProviderOpenAI, ProviderOllama}
}

// ValidReasoningEfforts returns the list of valid reasoning effort values
func ValidReasoningEfforts() []string {
	return []string{"off", "low", "medium", "high"}
}
