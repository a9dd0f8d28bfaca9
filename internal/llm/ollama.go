package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// OllamaClient implements Client against a local Ollama server.
type OllamaClient struct {
	client *ollama.Client
	config *Config
	logger *slog.Logger
}

// NewOllamaClient connects to config.Host, or to OLLAMA_HOST (default http://127.0.0.1:11434)
// when no host is configured.
func NewOllamaClient(config *Config, opts ...Option) (*OllamaClient, error) {
	if config != nil && config.Host != "" {
		base, err := url.Parse(config.Host)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("invalid ollama host %q", config.Host)
		}
		return NewOllamaClientWith(ollama.NewClient(base, http.DefaultClient), config, opts...), nil
	}

	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}
	return NewOllamaClientWith(client, config, opts...), nil
}

// NewOllamaClientWith wraps an existing ollama API client.
func NewOllamaClientWith(client *ollama.Client, config *Config, opts ...Option) *OllamaClient {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	return &OllamaClient{client: client, config: config, logger: buildOptions(opts).logger}
}

// Generate sends a non-streaming chat request.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	modelName := c.config.GetModel(req.Role)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for role %s", req.Role)
	}

	messages := make([]ollama.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: req.Prompt})

	numCtx := EstimateTokens(req.System) + EstimateTokens(req.Prompt) + 4096
	if numCtx < 8192 {
		numCtx = 8192
	}

	stream := false
	chatReq := &ollama.ChatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": c.config.Temperature(req.Role),
			"num_ctx":     numCtx,
		},
	}

	c.logger.Debug("ollama request",
		slog.String("role", string(req.Role)),
		slog.String("model", modelName),
		slog.Int("num_ctx", numCtx))

	var sb strings.Builder
	err := c.client.Chat(ctx, chatReq, func(res ollama.ChatResponse) error {
		sb.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return "", &APIError{Provider: ProviderOllama, Model: modelName, Role: req.Role, Cause: err}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &APIError{Provider: ProviderOllama, Model: modelName, Role: req.Role, Cause: fmt.Errorf("empty response")}
	}
	return text, nil
}

// Model returns the model name for a role
func (c *OllamaClient) Model(role Role) string {
	return c.config.GetModel(role)
}

// Close is a no-op; the ollama client holds no persistent connection.
func (c *OllamaClient) Close() error {
	return nil
}
