package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/observability"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the selectable models",
	Long:  "Lists the model display names accepted by --generator-model, --evaluator-model and --optimizer-model with their provider ids.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		observability.NewPrinter(cmd.OutOrStdout()).PrintModels(llm.Models())
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
