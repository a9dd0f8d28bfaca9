package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/observability"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Iteratively improve a system prompt",
	Long: `Runs the generate -> evaluate -> rewrite loop. A baseline evaluation of the starting prompt seeds
the best result unless --seed-score is given. The run stops when a step reaches --target or after
--steps steps. Interrupting (Ctrl-C) stops the run after the current step.

Runs are recorded in the database when DATABASE_URL or --db-url is set.`,
	RunE: runOptimize,
}

var (
	optimizePrompt   promptFlags
	optimizeInputs   inputFlags
	optimizeSteps    int
	optimizeTarget   int
	optimizeSeed     int
	optimizeName     string
	optimizeSave     bool
	optimizeSaveName string
	optimizeOut      string
)

func init() {
	optimizePrompt.register(optimizeCmd)
	optimizeInputs.register(optimizeCmd)
	optimizeCmd.Flags().IntVarP(&optimizeSteps, "steps", "s", optimization.DefaultMaxSteps, "Maximum optimization steps (1-20)")
	optimizeCmd.Flags().IntVarP(&optimizeTarget, "target", "t", optimization.DefaultTargetScore, "Target score (0-100)")
	optimizeCmd.Flags().IntVar(&optimizeSeed, "seed-score", 0, "Known score of the starting prompt; skips the baseline evaluation")
	optimizeCmd.Flags().StringVarP(&optimizeName, "name", "n", "", "Run name recorded in history")
	optimizeCmd.Flags().BoolVar(&optimizeSave, "save", false, "Save the best prompt to the library")
	optimizeCmd.Flags().StringVar(&optimizeSaveName, "save-name", "", "Library name for the best prompt (default: suggested from score and step)")
	optimizeCmd.Flags().StringVarP(&optimizeOut, "out", "o", "", "Write the run result JSON to this file")

	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	a, err := newApp(cmd, appOptions{models: true, history: true})
	if err != nil {
		return err
	}
	defer a.Close()

	prompt, err := optimizePrompt.resolve(a.svc.Library())
	if err != nil {
		return err
	}
	in, err := optimizeInputs.load(ctx, a.svc)
	if err != nil {
		return err
	}

	req := workbench.OptimizeRequest{
		Name:     optimizeName,
		Prompt:   prompt,
		Inputs:   in,
		MaxSteps: a.cfg.MaxSteps,
	}
	target := a.cfg.TargetScore
	if cmd.Flags().Changed("steps") {
		req.MaxSteps = optimizeSteps
	}
	if cmd.Flags().Changed("target") {
		target = optimizeTarget
	}
	req.TargetScore = &target
	if cmd.Flags().Changed("seed-score") {
		req.Seed = &optimization.BestResult{Score: optimizeSeed, Rationale: "Seed score supplied on the command line."}
	}

	progress := cmd.ErrOrStderr()
	res, err := a.svc.Optimize(ctx, req, func(ev optimization.ProgressEvent) {
		if ev.Stage == optimization.StageFinished {
			return
		}
		_, _ = fmt.Fprintf(progress, "[%d/%d] %s\n", ev.Step, ev.Total, ev.Message)
	})
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintRunResult(res)

	if optimizeOut != "" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal run result: %w", err)
		}
		if err := writeOutput(optimizeOut, data); err != nil {
			return err
		}
		a.logger.Info("run result written", "path", optimizeOut)
	}

	if optimizeSave {
		name, err := a.svc.SaveBest(res, in, optimizeSaveName)
		if err != nil {
			return fmt.Errorf("failed to save best prompt: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved best prompt as %q\n", name)
	}
	return nil
}
