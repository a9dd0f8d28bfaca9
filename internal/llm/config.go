// Package llm provides the language model clients used for report generation, evaluation and
// prompt rewriting, plus the catalogue of selectable models.
package llm

// Role is the job a model performs in the workbench.
type Role string

const (
	// RoleGenerator produces the table report from a system prompt and user query.
	RoleGenerator Role = "generator"
	// RoleEvaluator scores a report and writes improvement feedback.
	RoleEvaluator Role = "evaluator"
	// RoleOptimizer rewrites the system prompt from feedback.
	RoleOptimizer Role = "optimizer"
)

// Provider represents an LLM provider
type Provider string

const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOllama is a local Ollama server
	ProviderOllama Provider = "ollama"
)

// DefaultOllamaModel is used for every role when the ollama provider has no explicit models.
const DefaultOllamaModel = "llama3.1"

// Config holds the model configuration for each role.
type Config struct {
	Provider     Provider
	Models       map[Role]string
	Temperatures map[Role]float32

	// Host overrides OLLAMA_HOST for the ollama provider.
	Host string
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig uses the catalogue defaults. The optimizer shares the evaluator's model.
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[Role]string{
			RoleGenerator: MustResolveModel(DefaultGeneratorModel),
			RoleEvaluator: MustResolveModel(DefaultEvaluatorModel),
			RoleOptimizer: MustResolveModel(DefaultEvaluatorModel),
		},
		Temperatures: defaultTemperatures(),
	}
}

// DefaultOllamaConfig runs every role on one local model.
func DefaultOllamaConfig() *Config {
	return &Config{
		Provider: ProviderOllama,
		Models: map[Role]string{
			RoleGenerator: DefaultOllamaModel,
			RoleEvaluator: DefaultOllamaModel,
			RoleOptimizer: DefaultOllamaModel,
		},
		Temperatures: defaultTemperatures(),
	}
}

func defaultTemperatures() map[Role]float32 {
	return map[Role]float32{
		RoleGenerator: 0.2,
		RoleEvaluator: 0.1,
		RoleOptimizer: 0.4,
	}
}

// GetModel returns the model name for a role
func (c *Config) GetModel(role Role) string {
	if model, ok := c.Models[role]; ok && model != "" {
		return model
	}
	// Fallback chain: evaluator, then generator
	if model, ok := c.Models[RoleEvaluator]; ok && model != "" {
		return model
	}
	if model, ok := c.Models[RoleGenerator]; ok {
		return model
	}
	return ""
}

// Temperature returns the sampling temperature for a role, 0.1 when unset.
func (c *Config) Temperature(role Role) float32 {
	if t, ok := c.Temperatures[role]; ok {
		return t
	}
	return 0.1
}

// WithModel returns a new Config with a specific model for a role
func (c *Config) WithModel(role Role, model string) *Config {
	newConfig := &Config{
		Provider:     c.Provider,
		Models:       make(map[Role]string, len(c.Models)+1),
		Temperatures: make(map[Role]float32, len(c.Temperatures)),
		Host:         c.Host,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	for k, v := range c.Temperatures {
		newConfig.Temperatures[k] = v
	}
	newConfig.Models[role] = model
	return newConfig
}
