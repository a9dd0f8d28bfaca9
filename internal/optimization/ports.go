// Package optimization drives the generate, evaluate, parse and rewrite loop that improves a
// system prompt against an evaluator's score.
package optimization

import "context"

// Generator renders a report from a system prompt and a user query.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userQuery string) (string, error)
}

// Evaluator critiques a report. The instruction already embeds the prompt, query and report.
type Evaluator interface {
	Evaluate(ctx context.Context, instruction string) (string, error)
}

// Optimizer proposes a revised prompt from evaluator feedback. The result may equal the input.
type Optimizer interface {
	Step(ctx context.Context, currentPrompt, feedback string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt, userQuery string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userQuery string) (string, error) {
	return f(ctx, systemPrompt, userQuery)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, instruction string) (string, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, instruction string) (string, error) {
	return f(ctx, instruction)
}

// OptimizerFunc adapts a function to Optimizer.
type OptimizerFunc func(ctx context.Context, currentPrompt, feedback string) (string, error)

// Step calls f.
func (f OptimizerFunc) Step(ctx context.Context, currentPrompt, feedback string) (string, error) {
	return f(ctx, currentPrompt, feedback)
}
