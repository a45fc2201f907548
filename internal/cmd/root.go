package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/tabgroup/internal/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=v1.2.3".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tabgroup [origin]",
	Short: "AI tab grouping host for the tabgroup browser extension",
	Long: `tabgroup is the native messaging host behind the tabgroup browser
extension. The extension asks the host to organize the tabs of the focused
window; the host fetches the tabs, asks an AI provider to cluster them and
creates tab groups through the extension.

When the browser launches the host it passes the caller's origin as the
only argument, which runs the host. Subcommands inspect and configure it.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && isExtensionOrigin(args[0]) {
			return runHost(cmd, args[0])
		}
		if len(args) > 0 {
			return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
		}
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Chrome on Windows adds --parent-window=<handle>.
	rootCmd.FParseErrWhitelist.UnknownFlags = true
	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/tabgroup/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults(viper.GetViper())

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TABGROUP")
	// e.g., TABGROUP_AI_API_KEY for ai.api_key
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig returns the validated configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// writableConfigFile is where settings changes are saved: the file that was
// read, or the default location when none exists yet.
func writableConfigFile() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return config.ConfigFile()
}

func isExtensionOrigin(arg string) bool {
	return strings.HasPrefix(arg, "chrome-extension://")
}
