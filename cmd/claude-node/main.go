package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "claude-node",
		Short: "Claude Code node - run Claude Code sessions over batches of records",
		Long: `claude-node executes the Claude Code workflow node outside a workflow engine.
Each input record runs either a Claude Code CLI agent session or a direct
Messages API call, and the shaped results are written as JSON.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
