package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/spf13/cobra"
)

// HostName is the native messaging host name the extension connects to.
const HostName = "io.github.ironham.tabgroup"

// HostManifest is the native messaging host manifest read by the browser.
type HostManifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

var extensionIDPattern = regexp.MustCompile(`^[a-p]{32}$`)

var (
	manifestExtensionIDs []string
	manifestInstall      bool
	manifestBrowser      string
	manifestBinary       string
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print or install the native messaging host manifest",
	Long: `Print the native messaging host manifest that lets the extension start
this binary, or install it into the browser's NativeMessagingHosts directory.

  tabgroup manifest --extension-id abcdefghijklmnopabcdefghijklmnop --install`,
	Args: cobra.NoArgs,
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().StringSliceVar(&manifestExtensionIDs, "extension-id", nil, "extension id allowed to connect (repeatable)")
	manifestCmd.Flags().BoolVar(&manifestInstall, "install", false, "write the manifest into the browser's host directory")
	manifestCmd.Flags().StringVar(&manifestBrowser, "browser", "chrome", "browser to install for: chrome, chromium, brave, edge")
	manifestCmd.Flags().StringVar(&manifestBinary, "path", "", "host binary path (default: this executable)")
	_ = manifestCmd.MarkFlagRequired("extension-id")
}

func buildManifest(binary string, extensionIDs []string) (HostManifest, error) {
	if !filepath.IsAbs(binary) {
		return HostManifest{}, fmt.Errorf("host path must be absolute: %s", binary)
	}
	origins := make([]string, 0, len(extensionIDs))
	for _, id := range extensionIDs {
		if !extensionIDPattern.MatchString(id) {
			return HostManifest{}, fmt.Errorf("invalid extension id %q: want 32 characters a-p", id)
		}
		origins = append(origins, "chrome-extension://"+id+"/")
	}
	return HostManifest{
		Name:           HostName,
		Description:    "tabgroup AI tab grouping host",
		Path:           binary,
		Type:           "stdio",
		AllowedOrigins: origins,
	}, nil
}

// manifestDir returns the per-user NativeMessagingHosts directory.
func manifestDir(browser, goos, home string) (string, error) {
	type dirs struct{ darwin, linux string }
	known := map[string]dirs{
		"chrome":   {"Google/Chrome", "google-chrome"},
		"chromium": {"Chromium", "chromium"},
		"brave":    {"BraveSoftware/Brave-Browser", "BraveSoftware/Brave-Browser"},
		"edge":     {"Microsoft Edge", "microsoft-edge"},
	}
	d, ok := known[browser]
	if !ok {
		return "", fmt.Errorf("unknown browser %q", browser)
	}
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", d.darwin, "NativeMessagingHosts"), nil
	case "linux":
		return filepath.Join(home, ".config", d.linux, "NativeMessagingHosts"), nil
	}
	return "", fmt.Errorf("installing manifests is not supported on %s; register %s manually", goos, HostName)
}

func runManifest(cmd *cobra.Command, args []string) error {
	binary := manifestBinary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
		if binary, err = filepath.EvalSymlinks(exe); err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
	}

	m, err := buildManifest(binary, manifestExtensionIDs)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if !manifestInstall {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("locate home directory: %w", err)
	}
	dir, err := manifestDir(manifestBrowser, runtime.GOOS, home)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	path := filepath.Join(dir, HostName+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", path)
	return nil
}
