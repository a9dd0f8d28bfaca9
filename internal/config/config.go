// Package config provides configuration loading and validation for the CLI and server.
//
// Values are layered: environment variables (see Env) supply defaults, an optional JSON
// config file overrides them, and explicitly set CLI flags override both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/logging"
	"github.com/jonathan/prompt-workbench/internal/optimization"
)

// DefaultLibraryDir is where saved prompts live when nothing else is configured.
const DefaultLibraryDir = "saved_prompts"

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Models
	Provider       string `json:"provider,omitempty"`        // gemini or ollama
	GeneratorModel string `json:"generator_model,omitempty"` // display name or provider id
	EvaluatorModel string `json:"evaluator_model,omitempty"` // display name or provider id
	OptimizerModel string `json:"optimizer_model,omitempty"` // defaults to the evaluator model
	OllamaHost     string `json:"ollama_host,omitempty"`

	// Run parameters
	MaxSteps    int `json:"max_steps,omitempty"`
	TargetScore int `json:"target_score,omitempty"`

	// Batch
	BatchConcurrency     int `json:"batch_concurrency,omitempty"`
	BatchIntervalSeconds int `json:"batch_interval_seconds,omitempty"`

	// Storage
	LibraryDir  string `json:"library_dir,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`

	// Behavior
	APIKey     string `json:"api_key,omitempty"`
	UseBrowser bool   `json:"use_browser,omitempty"`
	LogLevel   string `json:"log_level,omitempty"`
	LogFile    string `json:"log_file,omitempty"`
	LogJSON    bool   `json:"log_json,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Zero values mean "not set" and are accepted.
func (c *Config) Validate() error {
	switch llm.Provider(strings.ToLower(c.Provider)) {
	case "", llm.ProviderGemini, llm.ProviderOllama:
	default:
		return fmt.Errorf("config error: unknown provider %q", c.Provider)
	}

	if c.MaxSteps != 0 && (c.MaxSteps < optimization.MinSteps || c.MaxSteps > optimization.MaxSteps) {
		return fmt.Errorf("config error: 'max_steps' must be between %d and %d", optimization.MinSteps, optimization.MaxSteps)
	}
	if c.TargetScore < 0 || c.TargetScore > 100 {
		return fmt.Errorf("config error: 'target_score' must be between 0 and 100")
	}
	if c.BatchConcurrency < 0 {
		return fmt.Errorf("config error: 'batch_concurrency' must be non-negative")
	}
	if c.BatchIntervalSeconds < 0 {
		return fmt.Errorf("config error: 'batch_interval_seconds' must be non-negative")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	for _, model := range []string{c.GeneratorModel, c.EvaluatorModel, c.OptimizerModel} {
		if model != "" && strings.TrimSpace(model) == "" {
			return fmt.Errorf("config error: model names cannot be blank")
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with unset fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	str := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	num := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}

	str(&result.Provider, defaults.Provider)
	str(&result.GeneratorModel, defaults.GeneratorModel)
	str(&result.EvaluatorModel, defaults.EvaluatorModel)
	str(&result.OptimizerModel, defaults.OptimizerModel)
	str(&result.OllamaHost, defaults.OllamaHost)
	str(&result.LibraryDir, defaults.LibraryDir)
	str(&result.DatabaseURL, defaults.DatabaseURL)
	str(&result.APIKey, defaults.APIKey)
	str(&result.LogLevel, defaults.LogLevel)
	str(&result.LogFile, defaults.LogFile)

	num(&result.MaxSteps, defaults.MaxSteps)
	num(&result.TargetScore, defaults.TargetScore)
	num(&result.BatchConcurrency, defaults.BatchConcurrency)
	num(&result.BatchIntervalSeconds, defaults.BatchIntervalSeconds)

	// Bool fields cannot distinguish unset from false; either source turning them on wins.
	result.UseBrowser = result.UseBrowser || defaults.UseBrowser
	result.LogJSON = result.LogJSON || defaults.LogJSON

	return result
}

// Builtin returns the values used when neither environment nor file sets them. Models are left
// to the provider defaults in llm.
func Builtin() Config {
	return Config{
		Provider:    string(llm.ProviderGemini),
		MaxSteps:    optimization.DefaultMaxSteps,
		TargetScore: optimization.DefaultTargetScore,
		LibraryDir:  DefaultLibraryDir,
		LogLevel:    "INFO",
	}
}

// Resolve layers an optional config file over the environment and the builtin defaults.
// An empty path skips the file.
func Resolve(path string, env *Env) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	merged := cfg.MergeWithDefaults(env.Config())
	merged = merged.MergeWithDefaults(Builtin())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// LLMConfig builds the provider configuration with every model name resolved to a provider id.
func (c *Config) LLMConfig() *llm.Config {
	var cfg *llm.Config
	if llm.Provider(strings.ToLower(c.Provider)) == llm.ProviderOllama {
		cfg = llm.DefaultOllamaConfig()
	} else {
		cfg = llm.DefaultConfig()
	}
	cfg.Host = c.OllamaHost

	set := func(role llm.Role, name string) {
		if name != "" {
			cfg.Models[role] = llm.ModelID(name)
		}
	}
	set(llm.RoleGenerator, c.GeneratorModel)
	set(llm.RoleEvaluator, c.EvaluatorModel)
	if c.OptimizerModel != "" {
		set(llm.RoleOptimizer, c.OptimizerModel)
	} else {
		set(llm.RoleOptimizer, c.EvaluatorModel)
	}
	return cfg
}

// LoggingOptions converts the log settings for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.Options{Level: level, JSON: c.LogJSON, File: c.LogFile}
}
