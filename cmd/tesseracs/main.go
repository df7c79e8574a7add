package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tesseracs",
	Short: "Tesseracs - sandboxed code execution service",
	Long: `Tesseracs runs untrusted code inside disposable, resource-capped
containers and streams the output back live, including interactive stdin.

Use 'serve' to expose the engine over WebSocket, or 'run' to execute a
local file from the terminal.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
