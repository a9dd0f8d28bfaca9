package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the workbench as MCP tools over stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing parse_evaluation, evaluate_report,
optimize_prompt, library_list, library_load and library_save. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, appOptions{models: true, history: true})
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("serving MCP tools on stdio", "version", version)
	return mcptools.ServeStdio(a.svc, version, a.logger)
}
