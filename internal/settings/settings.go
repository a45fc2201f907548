// Package settings exposes the user-editable AI and grouping settings the
// organizer reads at the start of every run.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/tabgroup/internal/config"
)

// ErrNotConfigured is returned by Validate when the settings cannot reach a
// provider.
var ErrNotConfigured = errors.New("api settings not configured")

// NotConfiguredMessage is what the user sees for ErrNotConfigured.
const NotConfiguredMessage = "Please configure API settings in the extension options"

// Settings is a snapshot of the user's settings.
type Settings struct {
	Provider        string        `json:"provider" yaml:"provider"`
	Endpoint        string        `json:"apiEndpoint" yaml:"endpoint"`
	APIKey          string        `json:"apiKey" yaml:"api_key"`
	Model           string        `json:"model" yaml:"model"`
	ReasoningEffort string        `json:"reasoningEffort" yaml:"reasoning_effort"`
	Timeout         time.Duration `json:"-" yaml:"-"`
	DebugMode       bool          `json:"debugMode" yaml:"debug_mode"`
	CollapseGroups  bool          `json:"collapseGroups" yaml:"collapse_groups"`
}

// Validate reports ErrNotConfigured when the endpoint is missing, or when the
// key is missing for a provider that needs one.
func (s Settings) Validate() error {
	if s.Endpoint == "" {
		return ErrNotConfigured
	}
	if s.APIKey == "" && s.Provider != config.ProviderOllama {
		return ErrNotConfigured
	}
	return nil
}

// Redacted returns a copy with the API key masked, for display.
func (s Settings) Redacted() Settings {
	if len(s.APIKey) > 4 {
		s.APIKey = "****" + s.APIKey[len(s.APIKey)-4:]
	} else if s.APIKey != "" {
		s.APIKey = "****"
	}
	return s
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Provider        *string `json:"provider,omitempty"`
	Endpoint        *string `json:"apiEndpoint,omitempty"`
	APIKey          *string `json:"apiKey,omitempty"`
	Model           *string `json:"model,omitempty"`
	ReasoningEffort *string `json:"reasoningEffort,omitempty"`
	DebugMode       *bool   `json:"debugMode,omitempty"`
	CollapseGroups  *bool   `json:"collapseGroups,omitempty"`
}

// Store reads and updates settings.
type Store interface {
	Get() (Settings, error)
	Set(p Patch) error
}

// Viper keys backing each setting.
const (
	KeyProvider        = "ai.provider"
	KeyEndpoint        = "ai.endpoint"
	KeyAPIKey          = "ai.api_key"
	KeyModel           = "ai.model"
	KeyReasoningEffort = "ai.reasoning_effort"
	KeyTimeout         = "ai.timeout_seconds"
	KeyDebugMode       = "debug.enabled"
	KeyCollapseGroups  = "grouping.collapse_others"
)

// ViperStore is a Store over a viper instance. Set merges the patch into v
// and writes the whole configuration to configFile.
type ViperStore struct {
	mu         sync.Mutex
	v          *viper.Viper
	configFile string
}

// NewViperStore creates a ViperStore. An empty configFile keeps updates in
// memory only.
func NewViperStore(v *viper.Viper, configFile string) *ViperStore {
	return &ViperStore{v: v, configFile: configFile}
}

// Get returns the current settings.
func (s *ViperStore) Get() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Settings{
		Provider:        s.v.GetString(KeyProvider),
		Endpoint:        s.v.GetString(KeyEndpoint),
		APIKey:          s.v.GetString(KeyAPIKey),
		Model:           s.v.GetString(KeyModel),
		ReasoningEffort: s.v.GetString(KeyReasoningEffort),
		Timeout:         time.Duration(s.v.GetInt(KeyTimeout)) * time.Second,
		DebugMode:       s.v.GetBool(KeyDebugMode),
		CollapseGroups:  s.v.GetBool(KeyCollapseGroups),
	}, nil
}

// Set applies p and persists the result. The merged configuration is
// validated before anything is written.
func (s *ViperStore) Set(p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := map[string]any{}
	setString := func(key string, val *string) {
		if val != nil {
			updates[key] = *val
		}
	}
	setBool := func(key string, val *bool) {
		if val != nil {
			updates[key] = *val
		}
	}
	setString(KeyProvider, p.Provider)
	setString(KeyEndpoint, p.Endpoint)
	setString(KeyAPIKey, p.APIKey)
	setString(KeyModel, p.Model)
	setString(KeyReasoningEffort, p.ReasoningEffort)
	setBool(KeyDebugMode, p.DebugMode)
	setBool(KeyCollapseGroups, p.CollapseGroups)
	if len(updates) == 0 {
		return nil
	}

	previous := make(map[string]any, len(updates))
	for key, val := range updates {
		previous[key] = s.v.Get(key)
		s.v.Set(key, val)
	}
	restore := func() {
		for key, val := range previous {
			s.v.Set(key, val)
		}
	}

	var cfg config.Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		restore()
		return fmt.Errorf("apply settings: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		restore()
		return config.ValidationErrors(errs)
	}

	if s.configFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.configFile), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.configFile); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
