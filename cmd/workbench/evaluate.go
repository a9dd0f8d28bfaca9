package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/observability"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a report against its system prompt",
	Long: `Asks the evaluator model to score a report produced by the selected system prompt.
Without --report a report is generated first.`,
	RunE: runEvaluate,
}

var (
	evaluatePrompt promptFlags
	evaluateInputs inputFlags
	evaluateReport string
	evaluateJSON   bool
)

func init() {
	evaluatePrompt.register(evaluateCmd)
	evaluateInputs.register(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&evaluateReport, "report", "r", "", "Path to a report to score (optional)")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Print the result as JSON")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, appOptions{models: true})
	if err != nil {
		return err
	}
	defer a.Close()

	prompt, err := evaluatePrompt.resolve(a.svc.Library())
	if err != nil {
		return err
	}
	in, err := evaluateInputs.load(cmd.Context(), a.svc)
	if err != nil {
		return err
	}

	req := workbench.EvaluateRequest{Prompt: prompt, Inputs: in}
	if evaluateReport != "" {
		data, err := os.ReadFile(evaluateReport)
		if err != nil {
			return fmt.Errorf("failed to read report file: %w", err)
		}
		req.Report = string(data)
	}

	res, err := a.svc.Evaluate(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to evaluate report: %w", err)
	}

	out := cmd.OutOrStdout()
	if evaluateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	p := observability.NewPrinter(out)
	if evaluateReport == "" {
		p.PrintReport(res.Report)
	}
	p.PrintEvaluation(res.Evaluation)
	return nil
}
