package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/tabgroup/internal/config"
	"github.com/Iron-Ham/tabgroup/internal/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify tabgroup configuration",
	Long: `View or modify tabgroup configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  tabgroup config set ai.api_key sk-or-...
  tabgroup config set ai.provider ollama
  tabgroup config set host.allowed_origins chrome-extension://abc/,chrome-extension://def/

Valid keys:
  ai.provider              - AI backend (openai, ollama)
  ai.endpoint              - Provider base URL
  ai.api_key               - Bearer token for the provider
  ai.model                 - Model identifier
  ai.timeout_seconds       - Per-request timeout in seconds
  ai.reasoning_effort      - off, low, medium, high
  grouping.collapse_others - Collapse groups other than the active tab's (true/false)
  debug.enabled            - Return a debug trace with each result (true/false)
  logging.level            - debug, info, warn, error
  logging.max_size_mb      - Rotate host.log at this size
  logging.max_backups      - Rotated logs kept
  paths.state_dir          - Directory for task state and logs
  host.mcp_addr            - Serve MCP tools on this address
  host.allowed_origins     - Comma-separated extension origins allowed to start the host`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/tabgroup/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// keyKind is the value type of a settable key.
type keyKind int

const (
	kindString keyKind = iota
	kindBool
	kindInt
	kindList
)

var settableKeys = map[string]keyKind{
	settings.KeyProvider:        kindString,
	settings.KeyEndpoint:        kindString,
	settings.KeyAPIKey:          kindString,
	settings.KeyModel:           kindString,
	settings.KeyTimeout:         kindInt,
	settings.KeyReasoningEffort: kindString,
	settings.KeyCollapseGroups:  kindBool,
	settings.KeyDebugMode:       kindBool,
	"logging.level":             kindString,
	"logging.max_size_mb":       kindInt,
	"logging.max_backups":       kindInt,
	"paths.state_dir":           kindString,
	"host.mcp_addr":             kindString,
	"host.allowed_origins":      kindList,
}

// parseConfigValue converts a command-line value to the key's type.
func parseConfigValue(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'tabgroup config set --help' to see valid keys", key)
	}

	switch kind {
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	case kindList:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	}
	return value, nil
}

// redactedSettings returns the merged configuration as a nested map with
// the API key masked.
func redactedSettings(v *viper.Viper) map[string]any {
	all := v.AllSettings()
	delete(all, "config")
	if ai, ok := all["ai"].(map[string]any); ok {
		if key, _ := ai["api_key"].(string); key != "" {
			ai["api_key"] = settings.Settings{APIKey: key}.Redacted().APIKey
		}
	}
	return all
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(redactedSettings(viper.GetViper()))
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	value, err := parseConfigValue(key, raw)
	if err != nil {
		return err
	}

	previous := viper.Get(key)
	viper.Set(key, value)
	if _, err := config.Load(viper.GetViper()); err != nil {
		viper.Set(key, previous)
		return err
	}

	configFile := writableConfigFile()
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	shown := value
	if key == settings.KeyAPIKey {
		shown = settings.Settings{APIKey: raw}.Redacted().APIKey
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, shown)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

// defaultConfigTemplate is written by config init.
const defaultConfigTemplate = `# tabgroup configuration

# AI provider used to cluster tabs
ai:
  # Backend protocol. Options: openai (any OpenAI-compatible API), ollama
  provider: openai
  # Provider base URL
  endpoint: https://openrouter.ai/api/v1
  # Bearer token. Not needed for ollama.
  api_key: ""
  model: x-ai/grok-4.1-fast
  # Per-request timeout in seconds
  timeout_seconds: 120
  # Reasoning effort for reasoning models. Options: off, low, medium, high
  reasoning_effort: "off"

grouping:
  # Collapse every new group except the one holding the active tab
  collapse_others: true

debug:
  # Return a step-by-step trace with each organize result
  enabled: false

logging:
  # Options: debug, info, warn, error
  level: info
  max_size_mb: 5
  max_backups: 2

paths:
  # Task state and host.log. Empty means ~/.local/state/tabgroup
  state_dir: ""

host:
  # Serve the task operations as MCP tools, e.g. 127.0.0.1:7331
  mcp_addr: ""
  # Extension origins allowed to start the host. Empty allows any.
  allowed_origins: []
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := writableConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'tabgroup config set' to modify values", configFile)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// 0600: the file may hold an API key.
	if err := os.WriteFile(configFile, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Set ai.api_key with 'tabgroup config set ai.api_key <key>'.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			fmt.Fprintf(out, "Active config: %s\n", used)
		} else {
			fmt.Fprintf(out, "Config path: %s (not created)\n", used)
		}
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nEnvironment variables: TABGROUP_* (e.g., TABGROUP_AI_API_KEY for ai.api_key)")
	return nil
}
