package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/schemas"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run several optimizations from a batch file",
	Long: `Runs independent optimizations described by a JSON array of {"name", "config"} items, where config holds
initial_prompt, inputs, max_steps, target_score and an optional seed. The file is validated against the
batch schema (see "workbench schema batch"). Runs overlap up to batch_concurrency; each run stays sequential.`,
	RunE: runBatch,
}

var (
	batchFile   string
	batchOutDir string
	batchSave   bool
)

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "Path to batch JSON file (required)")
	batchCmd.Flags().StringVarP(&batchOutDir, "out-dir", "o", "", "Write each run result to <out-dir>/<name>.json")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "Save each run's best prompt to the library")

	if err := batchCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("failed to mark file flag as required: %v", err))
	}

	rootCmd.AddCommand(batchCmd)
}

// loadBatch reads and schema-validates a batch file.
func loadBatch(path string) ([]optimization.BatchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	if err := schemas.Validate(schemas.NameBatch, data); err != nil {
		return nil, err
	}

	var items []optimization.BatchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch file: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("batch file %s has no items", path)
	}
	return items, nil
}

func runBatch(cmd *cobra.Command, _ []string) error {
	items, err := loadBatch(batchFile)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, appOptions{models: true, history: true})
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting batch", "items", len(items))
	results := a.svc.Batch(cmd.Context(), items)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Name", "Termination", "Best Score", "Best Step", "Saved As", "Error"})
	failed := 0
	for i, r := range results {
		row := []string{r.Name, "", "", "", "", ""}
		if r.Err != nil {
			failed++
			row[5] = r.Err.Error()
			table.Append(row)
			continue
		}

		row[1] = string(r.Result.Termination)
		if r.Result.Best != nil {
			row[2] = strconv.Itoa(r.Result.Best.Score)
			row[3] = strconv.Itoa(r.Result.Best.Step)
		}
		if batchSave {
			name, err := a.svc.SaveBest(r.Result, items[i].Config.Inputs, r.Name)
			if err != nil {
				a.logger.Warn("failed to save best prompt", "name", r.Name, "error", err)
			}
			row[4] = name
		}
		if batchOutDir != "" {
			if err := writeBatchResult(batchOutDir, r); err != nil {
				row[5] = err.Error()
			}
		}
		table.Append(row)
	}
	table.Render()

	if failed == len(results) {
		return fmt.Errorf("all %d batch runs failed", failed)
	}
	return nil
}

func writeBatchResult(dir string, r optimization.BatchResult) error {
	data, err := json.MarshalIndent(r.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}
	return writeOutput(filepath.Join(dir, library.SanitizeName(r.Name)+".json"), data)
}
