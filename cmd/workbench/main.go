// Package main provides the workbench CLI for generating, scoring and optimizing system prompts.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

// version is set at build time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "workbench",
	Short: "Prompt optimization workbench",
	Long: `Workbench generates research reports from a system prompt, scores them with an evaluator model,
and iteratively rewrites the prompt from the evaluator's feedback.

Configuration is layered: environment variables, then the --config file, then explicit flags.`,
	SilenceUsage: true,
	Version:      version,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
