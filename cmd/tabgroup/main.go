package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/tabgroup/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tabgroup:", err)
		os.Exit(1)
	}
}
