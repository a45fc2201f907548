package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.AI.Provider != ProviderOpenAI {
		t.Errorf("AI.Provider = %q, want %q", cfg.AI.Provider, ProviderOpenAI)
	}
	if cfg.AI.Endpoint != "https://openrouter.ai/api/v1" {
		t.Errorf("AI.Endpoint = %q", cfg.AI.Endpoint)
	}
	if cfg.AI.Model != "x-ai/grok-4.1-fast" {
		t.Errorf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.APIKey != "" {
		t.Error("AI.APIKey should default to empty")
	}
	if !cfg.Grouping.CollapseOthers {
		t.Error("Grouping.CollapseOthers should default to true")
	}
	if cfg.Debug.Enabled {
		t.Error("Debug.Enabled should default to false")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.MaxSizeMB != 5 || cfg.Logging.MaxBackups != 2 {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Host.MCPAddr != "" {
		t.Error("Host.MCPAddr should default to empty")
	}
}

func TestAIConfig_RequestTimeout(t *testing.T) {
	c := AIConfig{TimeoutSeconds: 90}
	if got := c.RequestTimeout(); got != 90*time.Second {
		t.Errorf("RequestTimeout() = %v, want 90s", got)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		cfg, err := Load(v)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.AI.TimeoutSeconds != DefaultTimeout {
			t.Errorf("AI.TimeoutSeconds = %d, want %d", cfg.AI.TimeoutSeconds, DefaultTimeout)
		}
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `ai:
  provider: ollama
  endpoint: http://localhost:11434
  model: llama3.2
grouping:
  collapse_others: false
debug:
  enabled: true
host:
  allowed_origins:
    - chrome-extension://abcdefghijklmnop/
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		v := viper.New()
		SetDefaults(v)
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(v)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.AI.Provider != ProviderOllama || cfg.AI.Model != "llama3.2" {
			t.Errorf("AI = %+v", cfg.AI)
		}
		if cfg.Grouping.CollapseOthers {
			t.Error("collapse_others from file was ignored")
		}
		if !cfg.Debug.Enabled {
			t.Error("debug.enabled from file was ignored")
		}
		if len(cfg.Host.AllowedOrigins) != 1 {
			t.Errorf("AllowedOrigins = %v", cfg.Host.AllowedOrigins)
		}
		// Values not in the file keep their defaults.
		if cfg.Logging.MaxBackups != 2 {
			t.Errorf("Logging.MaxBackups = %d, want default 2", cfg.Logging.MaxBackups)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("ai.provider", "anthropic")
		v.Set("logging.max_size_mb", 0)

		_, err := Load(v)
		if err == nil {
			t.Fatal("expected validation error")
		}
		verrs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("error type = %T, want ValidationErrors", err)
		}
		if len(verrs) != 2 {
			t.Errorf("got %d errors, want 2: %v", len(verrs), verrs)
		}
	})
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults(viper.GetViper())

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.AI.Model != DefaultModel {
		t.Errorf("Get().AI.Model = %q, want %q", cfg.AI.Model, DefaultModel)
	}
}

func TestGetFallsBackToDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults(viper.GetViper())
	viper.Set("ai.provider", "bogus")

	if cfg := Get(); cfg.AI.Provider != DefaultProvider {
		t.Errorf("Get().AI.Provider = %q, want default", cfg.AI.Provider)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/tabgroup" {
			t.Errorf("ConfigDir() = %q", got)
		}
		if got := ConfigFile(); got != "/custom/config/tabgroup/config.yaml" {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := ConfigDir(), filepath.Join(home, ".config", "tabgroup"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestStateDir(t *testing.T) {
	t.Run("with XDG_STATE_HOME", func(t *testing.T) {
		t.Setenv("XDG_STATE_HOME", "/var/state")
		if got := StateDir(); got != "/var/state/tabgroup" {
			t.Errorf("StateDir() = %q", got)
		}
	})

	t.Run("without XDG_STATE_HOME", func(t *testing.T) {
		t.Setenv("XDG_STATE_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := StateDir(), filepath.Join(home, ".local", "state", "tabgroup"); got != want {
			t.Errorf("StateDir() = %q, want %q", got, want)
		}
	})
}

func TestResolveStateDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	t.Setenv("XDG_STATE_HOME", "/xdg")

	tests := []struct {
		in   string
		want string
	}{
		{"", "/xdg/tabgroup"},
		{"/srv/tabgroup", "/srv/tabgroup"},
		{"~/tg", filepath.Join(home, "tg")},
		{"~", home},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := PathsConfig{StateDir: tt.in}
			if got := p.ResolveStateDir(); got != tt.want {
				t.Errorf("ResolveStateDir(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidProviders(t *testing.T) {
	got := strings.Join(ValidProviders(), ",")
	if got != "openai,ollama" {
		t.Errorf("ValidProviders() = %s", got)
	}
}
