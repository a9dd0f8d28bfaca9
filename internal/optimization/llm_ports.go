package optimization

import (
	"context"
	"errors"
	"strings"

	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/prompts"
)

// PromptRoleDescription tells the rewriting model what the optimized text is for.
const PromptRoleDescription = "System prompt being optimized. It instructs a report generator to produce a tab-delimited, quote-enclosed 9-column table from user inputs and external data."

// LLMGenerator implements Generator with the generator model.
type LLMGenerator struct {
	client llm.Client
}

// NewLLMGenerator creates a Generator backed by client.
func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client}
}

// Generate passes the system prompt verbatim as the system instruction.
func (g *LLMGenerator) Generate(ctx context.Context, systemPrompt, userQuery string) (string, error) {
	out, err := g.client.Generate(ctx, llm.Request{Role: llm.RoleGenerator, System: systemPrompt, Prompt: userQuery})
	if err != nil {
		return "", &GenerationError{Cause: err}
	}
	return out, nil
}

// LLMEvaluator implements Evaluator with the evaluator model.
type LLMEvaluator struct {
	client llm.Client
}

// NewLLMEvaluator creates an Evaluator backed by client.
func NewLLMEvaluator(client llm.Client) *LLMEvaluator {
	return &LLMEvaluator{client: client}
}

// Evaluate sends the instruction as a single user message.
func (e *LLMEvaluator) Evaluate(ctx context.Context, instruction string) (string, error) {
	out, err := e.client.Generate(ctx, llm.Request{Role: llm.RoleEvaluator, Prompt: instruction})
	if err != nil {
		return "", &EvaluationError{Cause: err}
	}
	return out, nil
}

// LLMOptimizer implements Optimizer as a textual-gradient rewrite: the current prompt and the
// evaluator's feedback go to the optimizer model, which returns the full revised prompt.
type LLMOptimizer struct {
	client llm.Client
}

// NewLLMOptimizer creates an Optimizer backed by client.
func NewLLMOptimizer(client llm.Client) *LLMOptimizer {
	return &LLMOptimizer{client: client}
}

type rewriteData struct {
	RoleDescription string
	Prompt          string
	Feedback        string
}

// Step returns the rewritten prompt.
func (o *LLMOptimizer) Step(ctx context.Context, currentPrompt, feedback string) (string, error) {
	instruction, err := prompts.RenderKey(prompts.KeyOptimizerRewrite, rewriteData{
		RoleDescription: PromptRoleDescription,
		Prompt:          currentPrompt,
		Feedback:        feedback,
	})
	if err != nil {
		return "", &OptimizationStepError{Cause: err}
	}

	out, err := o.client.Generate(ctx, llm.Request{Role: llm.RoleOptimizer, Prompt: instruction})
	if err != nil {
		return "", &OptimizationStepError{Cause: err}
	}

	revised, _ := llm.ExtractImprovedPrompt(out)
	if strings.TrimSpace(revised) == "" {
		return "", &OptimizationStepError{Cause: errors.New("optimizer returned an empty prompt")}
	}
	return revised, nil
}
