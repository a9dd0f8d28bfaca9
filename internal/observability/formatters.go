// Package observability provides formatted terminal output for evaluations, runs and reports.
package observability

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/report"
	"github.com/jonathan/prompt-workbench/internal/scoring"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxLinesInBox caps long text sections in boxes
	maxLinesInBox = 12
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		runes := []rune(line)
		if len(runes) > boxWidth-4 {
			line = string(runes[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func clip(text string, maxLines int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
}

// ScoreLabel formats a score for display.
func ScoreLabel(eval scoring.Evaluation) string {
	if score, ok := eval.ScoreValue(); ok {
		return fmt.Sprintf("%d/100", score)
	}
	return "N/A (Error or Parse Issue)"
}

// PrintEvaluation outputs a parsed evaluation.
func (p *Printer) PrintEvaluation(eval scoring.Evaluation) {
	var sb strings.Builder
	sb.WriteString("Score: " + ScoreLabel(eval) + "\n\n")
	sb.WriteString("Scoring Description:\n")
	sb.WriteString(clip(eval.Rationale, maxLinesInBox))
	sb.WriteString("\n\nSystem Prompt Improvement Feedback:\n")
	sb.WriteString(clip(eval.Feedback, maxLinesInBox))
	p.printBox("EVALUATION", sb.String())
}

// PrintRunResult outputs the run summary, the best result and the history newest first with the
// prompt changes between consecutive steps.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintRunResult(res *optimization.RunResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:          %s\n", res.RunID))
	sb.WriteString(fmt.Sprintf("Termination:  %s\n", res.Termination))
	sb.WriteString(fmt.Sprintf("Steps:        %d of %d (target %d)\n", len(res.History), res.MaxSteps, res.TargetScore))
	if res.Best != nil {
		where := fmt.Sprintf("step %d", res.Best.Step)
		if res.Best.Step == 0 {
			where = "initial evaluation"
		}
		sb.WriteString(fmt.Sprintf("Best score:   %d/100 (%s)\n", res.Best.Score, where))
	} else {
		sb.WriteString("Best score:   none\n")
	}
	if res.FinalPrompt != res.InitialPrompt {
		sb.WriteString("Final prompt: changed")
	} else {
		sb.WriteString("Final prompt: unchanged")
	}
	p.printBox("OPTIMIZATION RESULT", sb.String())

	p.PrintHistory(res)
}

// PrintHistory prints a table of steps, newest first, followed by per-step prompt diffs.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintHistory(res *optimization.RunResult) {
	if len(res.History) == 0 {
		fmt.Fprintln(p.out, "No optimization steps recorded.")
		return
	}

	rows := make([][]string, 0, len(res.History))
	for _, rec := range res.HistoryNewestFirst() {
		marker := ""
		if res.IsBest(rec) {
			marker = "★"
		}
		note := rec.Warning
		if rec.Failed {
			note = rec.Evaluation.Rationale
		}
		rows = append(rows, []string{strconv.Itoa(rec.Step), ScoreLabel(rec.Evaluation), marker, updatedLabel(rec), note})
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"Step", "Score", "Best", "Prompt", "Notes"})
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()

	for i := len(res.History) - 1; i > 0; i-- {
		prev, cur := res.History[i-1], res.History[i]
		if prev.PromptUsed == cur.PromptUsed {
			continue
		}
		p.PrintPromptDiff(fmt.Sprintf("PROMPT CHANGE: step %d → step %d", prev.Step, cur.Step), prev.PromptUsed, cur.PromptUsed)
	}
}

func updatedLabel(rec optimization.StepRecord) string {
	if rec.PromptUpdated {
		return "updated"
	}
	return "kept"
}

// PrintPromptDiff prints a line diff between two prompts.
func (p *Printer) PrintPromptDiff(title, oldPrompt, newPrompt string) {
	p.printBox(title, PromptDiff(oldPrompt, newPrompt))
}

// PrintReport renders a generated report as a table, or as raw text when it cannot be parsed.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintReport(text string) {
	tbl, err := report.Parse(text)
	if err != nil {
		fmt.Fprintf(p.out, "Could not parse report as a table (%v). Raw text:\n%s\n", err, text)
		return
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader(tbl.Header)
	table.SetAutoWrapText(true)
	table.SetColWidth(28)
	table.SetRowLine(true)
	table.AppendBulk(tbl.Rows)
	table.Render()
}

// PrintModels prints the model catalogue.
func (p *Printer) PrintModels(models []llm.ModelOption) {
	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"Name", "Model ID"})
	for _, m := range models {
		table.Append([]string{m.DisplayName, m.ID})
	}
	table.Render()
}

// PrintLibrary prints saved prompt entries, newest first.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintLibrary(entries []*library.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(p.out, "No saved prompts yet.")
		return
	}

	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"Name", "Score", "Saved At", "Context"})
	table.SetAutoWrapText(false)
	for _, e := range entries {
		score := ""
		if e.Score != nil {
			score = strconv.Itoa(*e.Score)
		}
		saved := ""
		if !e.SavedAt.IsZero() {
			saved = e.SavedAt.Format("2006-01-02 15:04")
		}
		table.Append([]string{e.Name, score, saved, contextSummary(e.Context)})
	}
	table.Render()
}

func contextSummary(ctx map[string]string) string {
	var parts []string
	for _, k := range library.ContextKeys {
		if v, ok := ctx[k]; ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " / ")
}
