package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Request is a single model call.
type Request struct {
	Role Role
	// System is passed as the system instruction, verbatim.
	System string
	Prompt string
}

// Client is an abstraction over LLM providers
type Client interface {
	// Generate returns the text completion for req using the model configured for req.Role.
	Generate(ctx context.Context, req Request) (string, error)
	// Model returns the provider model id used for a role.
	Model(role Role) string
	// Close releases any resources held by the client
	Close() error
}

// Option configures a client.
type Option func(*clientOptions)

type clientOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string, opts ...Option) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderOllama:
		return NewOllamaClient(config, opts...)
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config, apiKey, opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string, opts ...Option) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required: %s", CredentialsHint)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
		logger: buildOptions(opts).logger,
	}, nil
}

// Generate sends one request to the model configured for req.Role.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	modelName := c.config.GetModel(req.Role)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for role %s", req.Role)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature(req.Role))
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	c.logger.Debug("gemini request",
		slog.String("role", string(req.Role)),
		slog.String("model", modelName),
		slog.Int("est_tokens", EstimateTokens(req.System)+EstimateTokens(req.Prompt)))

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", &APIError{Provider: ProviderGemini, Model: modelName, Role: req.Role, Cause: err}
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", &APIError{Provider: ProviderGemini, Model: modelName, Role: req.Role, Cause: err}
	}
	return text, nil
}

// Model returns the model name for a role
func (c *GeminiClient) Model(role Role) string {
	return c.config.GetModel(role)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
