package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/observability"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a report from a system prompt",
	Long:  "Renders the user query from the inputs file and asks the generator model for a report using the selected system prompt.",
	RunE:  runGenerate,
}

var (
	generatePrompt promptFlags
	generateInputs inputFlags
	generateOut    string
	generateRaw    bool
)

func init() {
	generatePrompt.register(generateCmd)
	generateInputs.register(generateCmd)
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "Write the raw report to this file")
	generateCmd.Flags().BoolVar(&generateRaw, "raw", false, "Print the raw report instead of a table")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, appOptions{models: true})
	if err != nil {
		return err
	}
	defer a.Close()

	prompt, err := generatePrompt.resolve(a.svc.Library())
	if err != nil {
		return err
	}
	in, err := generateInputs.load(cmd.Context(), a.svc)
	if err != nil {
		return err
	}

	res, err := a.svc.Generate(cmd.Context(), workbench.GenerateRequest{Prompt: prompt, Inputs: in})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if generateOut != "" {
		if err := writeOutput(generateOut, []byte(res.Report)); err != nil {
			return err
		}
		a.logger.Info("report written", "path", generateOut)
	}

	out := cmd.OutOrStdout()
	if generateRaw {
		_, _ = fmt.Fprintln(out, res.Report)
		return nil
	}
	observability.NewPrinter(out).PrintReport(res.Report)
	return nil
}

// writeOutput writes data to path, creating its directory.
func writeOutput(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
