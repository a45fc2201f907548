package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errResetWhileRunning = errors.New("a task is running; cancel it from the extension before resetting")

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a finished task",
	Long: `Return a completed, cancelled or failed task to idle. A running task
is left alone.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	tasks, _, err := openTasks()
	if err != nil {
		return err
	}
	ok, err := tasks.Reset()
	if err != nil {
		return err
	}
	if !ok {
		return errResetWhileRunning
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "Task reset")
	return err
}
