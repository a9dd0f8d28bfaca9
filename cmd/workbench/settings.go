package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/config"
	"github.com/jonathan/prompt-workbench/internal/db"
	"github.com/jonathan/prompt-workbench/internal/fetch"
	"github.com/jonathan/prompt-workbench/internal/inputs"
	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/logging"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

var (
	configPath     string
	provider       string
	generatorModel string
	evaluatorModel string
	optimizerModel string
	apiKeyFlag     string
	libraryDir     string
	databaseURL    string
	useBrowser     bool
	logLevel       string
	logFile        string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	flags.StringVar(&provider, "provider", "", "Model provider: gemini or ollama")
	flags.StringVar(&generatorModel, "generator-model", "", "Report generator model (display name or id)")
	flags.StringVar(&evaluatorModel, "evaluator-model", "", "Evaluator model (display name or id)")
	flags.StringVar(&optimizerModel, "optimizer-model", "", "Prompt rewriting model (defaults to the evaluator model)")
	flags.StringVar(&apiKeyFlag, "api-key", "", "Gemini API key (optional, defaults to GEMINI_API_KEY env var)")
	flags.StringVar(&libraryDir, "library-dir", "", "Directory of saved prompts")
	flags.StringVar(&databaseURL, "db-url", "", "PostgreSQL URL for run history (optional, defaults to DATABASE_URL env var)")
	flags.BoolVar(&useBrowser, "use-browser", false, "Use headless browser for pages that need JavaScript (requires Chrome)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR or OFF")
	flags.StringVar(&logFile, "log-file", "", "Also write logs to this file (rotated)")
}

// resolveConfig layers environment, config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command) (*config.Config, *config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, nil, err
	}

	overrides := flagOverrides(cmd)
	cfg, err := config.Resolve(configPath, env)
	if err != nil {
		return nil, nil, err
	}
	merged := overrides.MergeWithDefaults(*cfg)
	if err := merged.Validate(); err != nil {
		return nil, nil, err
	}
	return &merged, env, nil
}

// flagOverrides collects the persistent flags the user actually set.
func flagOverrides(cmd *cobra.Command) config.Config {
	var o config.Config
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}

	if changed("provider") {
		o.Provider = provider
	}
	if changed("generator-model") {
		o.GeneratorModel = generatorModel
	}
	if changed("evaluator-model") {
		o.EvaluatorModel = evaluatorModel
	}
	if changed("optimizer-model") {
		o.OptimizerModel = optimizerModel
	}
	if changed("api-key") {
		o.APIKey = apiKeyFlag
	}
	if changed("library-dir") {
		o.LibraryDir = libraryDir
	}
	if changed("db-url") {
		o.DatabaseURL = databaseURL
	}
	if changed("use-browser") {
		o.UseBrowser = useBrowser
	}
	if changed("log-level") {
		o.LogLevel = logLevel
	}
	if changed("log-file") {
		o.LogFile = logFile
	}
	return o
}

// newLogger builds the process logger. Logs go to stderr so stdout stays clean for results.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(os.Stderr, cfg.LoggingOptions())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// app bundles what a command needs and releases it on Close.
type app struct {
	cfg     *config.Config
	env     *config.Env
	logger  *slog.Logger
	svc     *workbench.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// models creates the provider client; library-only commands skip it.
	models bool
	// history connects the run store when a database URL is configured.
	history bool
}

// newApp resolves configuration and wires the workbench service.
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, env, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, env: env, logger: logger}
	a.closers = append(a.closers, func() { _ = closer.Close() })

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.Browser = cfg.UseBrowser
	fetchOpts.Logger = logger

	svcOpts := []workbench.Option{
		workbench.WithLogger(logger),
		workbench.WithFetchOptions(fetchOpts),
		workbench.WithBatchOptions(optimization.BatchOptions{
			Concurrency: cfg.BatchConcurrency,
			Interval:    time.Duration(cfg.BatchIntervalSeconds) * time.Second,
		}),
	}

	if opts.history && cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		if err := database.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		svcOpts = append(svcOpts, workbench.WithStore(database))
	}

	lib := library.New(cfg.LibraryDir, library.WithLogger(logger))

	if !opts.models {
		a.svc = workbench.New(nil, nil, nil, lib, svcOpts...)
		return a, nil
	}

	llmCfg := cfg.LLMConfig()
	if llmCfg.Provider != llm.ProviderOllama && cfg.APIKey == "" {
		a.Close()
		return nil, fmt.Errorf("API key is required (set GEMINI_API_KEY environment variable or use --api-key flag)")
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey, llm.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	logger.Debug("models selected",
		"generator", client.Model(llm.RoleGenerator),
		"evaluator", client.Model(llm.RoleEvaluator),
		"optimizer", client.Model(llm.RoleOptimizer),
	)

	a.svc = workbench.NewFromClient(client, lib, svcOpts...)
	return a, nil
}

// promptFlags selects the system prompt for a command.
type promptFlags struct {
	text        string
	file        string
	fromLibrary string
}

func (p *promptFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.text, "prompt", "p", "", "System prompt text")
	cmd.Flags().StringVar(&p.file, "prompt-file", "", "Read the system prompt from a file")
	cmd.Flags().StringVar(&p.fromLibrary, "from-library", "", "Load the system prompt from the library")
	cmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file", "from-library")
}

// resolve returns the selected prompt, or "" for the built-in initial prompt.
func (p *promptFlags) resolve(lib *library.Library) (string, error) {
	switch {
	case p.text != "":
		return p.text, nil
	case p.file != "":
		data, err := os.ReadFile(p.file)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case p.fromLibrary != "":
		entry, err := lib.LoadEntry(p.fromLibrary)
		if err != nil {
			return "", fmt.Errorf("failed to load prompt %q: %w", p.fromLibrary, err)
		}
		return entry.Content, nil
	default:
		return "", nil
	}
}

// inputFlags selects the research inputs for a command.
type inputFlags struct {
	path string
	urls []string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "inputs", "i", "", "Path to inputs JSON file (required)")
	cmd.Flags().StringSliceVar(&f.urls, "url", nil, "Fetch page text from URL into url_output (repeatable)")
	if err := cmd.MarkFlagRequired("inputs"); err != nil {
		panic(fmt.Sprintf("failed to mark inputs flag as required: %v", err))
	}
}

// load reads the inputs file and appends text fetched from --url pages.
func (f *inputFlags) load(ctx context.Context, svc *workbench.Service) (inputs.UserInputSet, error) {
	in, err := inputs.Load(f.path)
	if err != nil {
		return inputs.UserInputSet{}, err
	}
	if err := svc.AttachURLs(ctx, in, f.urls); err != nil {
		return inputs.UserInputSet{}, err
	}
	return *in, nil
}
