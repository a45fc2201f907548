package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/tabgroup/internal/kvstore"
	"github.com/Iron-Ham/tabgroup/internal/statusview"
	"github.com/Iron-Ham/tabgroup/internal/task"
)

var (
	statusWatch bool
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current task state",
	Long: `Show the persisted state of the current or last organize task.

With --watch, the view follows the state file and updates as the host
moves through its phases. --json prints the state in its wire form.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "follow state changes")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the state as JSON")
}

// openTasks returns a controller over the configured state document and
// the document's path.
func openTasks() (*task.Controller, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	stateDir := cfg.Paths.ResolveStateDir()
	store := kvstore.New(filepath.Join(stateDir, kvstore.FileName))
	return task.NewController(store), store.Path(), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	tasks, statePath, err := openTasks()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	state, err := tasks.Query()
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := task.Encode(state)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	interactive := isTerminal(out)
	if !interactive {
		_, err = fmt.Fprint(out, statusview.RenderPlain(state, time.Now()))
		return err
	}
	if !statusWatch {
		_, err = fmt.Fprint(out, statusview.Render(state, time.Now()))
		return err
	}

	return statusview.Run(cmd.Context(), tasks.Query, statePath, cmd.InOrStdin(), out)
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
