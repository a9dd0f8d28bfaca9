package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/scoring"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

const inputsDescription = "Research inputs: industry, region, transformational_journey and program_area are required, " +
	"plus at least one of google_agent_output, bard_outputs, web_content, url_output, gnews_output"

func (t *Tools) parseEvaluationTool() *ToolDefinition {
	return &ToolDefinition{
		Name:        "parse_evaluation",
		Description: "Extract the rationale, overall score and improvement feedback from evaluator output",
		Parameters: []mcp.ToolOption{
			mcp.WithString("raw", mcp.Required(), mcp.Description("Raw evaluator response text")),
		},
		Handler: t.handleParseEvaluation,
	}
}

func (t *Tools) handleParseEvaluation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("raw")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid raw: %v", err)), nil
	}
	return jsonResult(scoring.Parse(raw))
}

func (t *Tools) evaluateReportTool() *ToolDefinition {
	return &ToolDefinition{
		Name:        "evaluate_report",
		Description: "Score a report against the system prompt that produced it. Without a report one is generated first",
		Parameters: []mcp.ToolOption{
			mcp.WithObject("inputs", mcp.Required(), mcp.Description(inputsDescription)),
			mcp.WithString("prompt", mcp.Description("System prompt; defaults to the built-in initial prompt")),
			mcp.WithString("report", mcp.Description("Report to score")),
		},
		Handler: t.handleEvaluateReport,
	}
}

func (t *Tools) handleEvaluateReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := inputsArg(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.svc.Evaluate(ctx, workbench.EvaluateRequest{
		Prompt: req.GetString("prompt", ""),
		Inputs: in,
		Report: req.GetString("report", ""),
	})
	if err != nil {
		return toolError("evaluation failed", err), nil
	}
	return jsonResult(res)
}

func (t *Tools) optimizePromptTool() *ToolDefinition {
	return &ToolDefinition{
		Name: "optimize_prompt",
		Description: "Run the generate, evaluate and rewrite loop on a system prompt and return the best result. " +
			"A baseline evaluation seeds the run unless seed_score is given",
		Parameters: []mcp.ToolOption{
			mcp.WithObject("inputs", mcp.Required(), mcp.Description(inputsDescription)),
			mcp.WithString("prompt", mcp.Description("Initial system prompt; defaults to the built-in prompt")),
			mcp.WithNumber("max_steps", mcp.Description("Optimization steps"), mcp.DefaultNumber(optimization.DefaultMaxSteps), mcp.Min(1), mcp.Max(20)),
			mcp.WithNumber("target_score", mcp.Description("Stop once a step scores at least this"), mcp.DefaultNumber(optimization.DefaultTargetScore), mcp.Min(0), mcp.Max(100)),
			mcp.WithNumber("seed_score", mcp.Description("Known score of the initial prompt; skips the baseline"), mcp.Min(0), mcp.Max(100)),
			mcp.WithString("name", mcp.Description("Run name recorded in history")),
			mcp.WithBoolean("save", mcp.Description("Save the best prompt to the library")),
			mcp.WithString("save_name", mcp.Description("Library name for the saved prompt")),
		},
		Handler: t.handleOptimizePrompt,
	}
}

// OptimizeOutput is the optimize_prompt result.
type OptimizeOutput struct {
	Termination optimization.Termination `json:"termination"`
	Best        *optimization.BestResult `json:"best,omitempty"`
	FinalPrompt string                   `json:"final_prompt"`
	Steps       int                      `json:"steps"`
	RunID       string                   `json:"run_id"`
	SavedAs     string                   `json:"saved_as,omitempty"`
}

func (t *Tools) handleOptimizePrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in, err := inputsArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	oreq := workbench.OptimizeRequest{
		Name:     req.GetString("name", ""),
		Prompt:   req.GetString("prompt", ""),
		Inputs:   in,
		MaxSteps: int(req.GetFloat("max_steps", optimization.DefaultMaxSteps)),
	}
	if _, ok := args["target_score"]; ok {
		target := int(req.GetFloat("target_score", optimization.DefaultTargetScore))
		oreq.TargetScore = &target
	}
	if _, ok := args["seed_score"]; ok {
		oreq.Seed = &optimization.BestResult{
			Score:     int(req.GetFloat("seed_score", 0)),
			Rationale: "Seed score supplied by the caller.",
		}
	}

	res, err := t.svc.Optimize(ctx, oreq, func(ev optimization.ProgressEvent) {
		t.logger.Debug(ev.Message, "run_id", ev.RunID, "step", ev.Step, "stage", ev.Stage)
	})
	if err != nil {
		return toolError("optimization failed", err), nil
	}

	out := OptimizeOutput{
		Termination: res.Termination,
		Best:        res.Best,
		FinalPrompt: res.FinalPrompt,
		Steps:       len(res.History),
		RunID:       res.RunID.String(),
	}
	if req.GetBool("save", false) {
		name, err := t.svc.SaveBest(res, in, req.GetString("save_name", ""))
		if err != nil {
			t.logger.Warn("failed to save best prompt", "run_id", res.RunID, "error", err)
		}
		out.SavedAs = name
	}
	return jsonResult(out)
}

func (t *Tools) libraryListTool() *ToolDefinition {
	return &ToolDefinition{
		Name:        "library_list",
		Description: "List saved prompts with their scores",
		Handler:     t.handleLibraryList,
	}
}

func (t *Tools) handleLibraryList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := t.svc.Library().Entries()
	if err != nil {
		return toolError("failed to list prompts", err), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("The prompt library is empty."), nil
	}

	var sb strings.Builder
	sb.WriteString("Saved prompts:\n")
	for _, e := range entries {
		if e.Score != nil {
			fmt.Fprintf(&sb, "- %s (score %d)\n", e.Name, *e.Score)
		} else {
			fmt.Fprintf(&sb, "- %s\n", e.Name)
		}
	}
	sb.WriteString("\nUse library_load with a name to read one.")
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) libraryLoadTool() *ToolDefinition {
	return &ToolDefinition{
		Name:        "library_load",
		Description: "Load a saved prompt by name",
		Parameters: []mcp.ToolOption{
			mcp.WithString("name", mcp.Required(), mcp.Description("Prompt name as listed by library_list")),
		},
		Handler: t.handleLibraryLoad,
	}
}

func (t *Tools) handleLibraryLoad(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid name: %v", err)), nil
	}

	entry, err := t.svc.Library().LoadEntry(name)
	if errors.Is(err, library.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Prompt '%s' not found. Use library_list to see saved prompts.", name)), nil
	}
	if err != nil {
		return toolError("failed to load prompt", err), nil
	}
	return mcp.NewToolResultText(entry.Content), nil
}

func (t *Tools) librarySaveTool() *ToolDefinition {
	return &ToolDefinition{
		Name:        "library_save",
		Description: "Save a system prompt to the library",
		Parameters: []mcp.ToolOption{
			mcp.WithString("name", mcp.Required(), mcp.Description("Prompt name; unsafe characters become underscores")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Prompt text")),
			mcp.WithNumber("score", mcp.Description("Score the prompt achieved"), mcp.Min(0), mcp.Max(100)),
		},
		Handler: t.handleLibrarySave,
	}
}

func (t *Tools) handleLibrarySave(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid name: %v", err)), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid content: %v", err)), nil
	}

	var score *int
	if _, ok := req.GetArguments()["score"]; ok {
		s := int(req.GetFloat("score", 0))
		if s < scoring.MinScore || s > scoring.MaxScore {
			return mcp.NewToolResultError(fmt.Sprintf("score must be between %d and %d", scoring.MinScore, scoring.MaxScore)), nil
		}
		score = &s
	}

	saved, err := t.svc.Library().SaveEntry(name, content, score, nil)
	if err != nil {
		return toolError("failed to save prompt", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Saved prompt as '%s'.", saved)), nil
}

// inputsArg decodes the inputs argument, given either as an object or a JSON string.
func inputsArg(args map[string]any) (inputs.UserInputSet, error) {
	var in inputs.UserInputSet
	raw, ok := args["inputs"]
	if !ok || raw == nil {
		return in, fmt.Errorf("inputs is required")
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return in, fmt.Errorf("invalid inputs: %w", err)
		}
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("invalid inputs: %w", err)
	}
	return in, nil
}

// toolError reports err to the client, including field details for input problems.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var verr *inputs.ValidationError
	if errors.As(err, &verr) {
		lines := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			lines = append(lines, fmt.Sprintf("- %s: %s", f.Field, f.Message))
		}
		return mcp.NewToolResultError(fmt.Sprintf("%s: invalid inputs\n%s", prefix, strings.Join(lines, "\n")))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}
