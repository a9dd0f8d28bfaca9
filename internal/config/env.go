package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds settings read from environment variables.
type Env struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
	DatabaseURL  string `env:"DATABASE_URL"`
	Provider     string `env:"WORKBENCH_PROVIDER"`
	OllamaHost   string `env:"WORKBENCH_OLLAMA_HOST"`
	LibraryDir   string `env:"WORKBENCH_LIBRARY_DIR" envDefault:"saved_prompts"`
	UseBrowser   bool   `env:"WORKBENCH_USE_BROWSER"`

	LogLevel string `env:"WORKBENCH_LOG_LEVEL" envDefault:"INFO"`
	LogFile  string `env:"WORKBENCH_LOG_FILE"`
	LogJSON  bool   `env:"WORKBENCH_LOG_JSON"`

	Server ServerEnv
}

// ServerEnv holds HTTP server settings.
type ServerEnv struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// AdminUser and AdminPasswordHash are the credentials accepted by POST /auth/token.
	AdminUser         string `env:"WORKBENCH_ADMIN_USER" envDefault:"admin"`
	AdminPasswordHash string `env:"WORKBENCH_ADMIN_PASSWORD_HASH"`
}

// LoadEnv parses the environment.
func LoadEnv() (*Env, error) {
	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// APIKey prefers GEMINI_API_KEY and falls back to GOOGLE_API_KEY.
func (e *Env) APIKey() string {
	if e.GeminiAPIKey != "" {
		return e.GeminiAPIKey
	}
	return e.GoogleAPIKey
}

// Config converts the environment into file-shaped config for layering. A nil Env is empty.
func (e *Env) Config() Config {
	if e == nil {
		return Config{}
	}
	return Config{
		Provider:    e.Provider,
		OllamaHost:  e.OllamaHost,
		LibraryDir:  e.LibraryDir,
		DatabaseURL: e.DatabaseURL,
		APIKey:      e.APIKey(),
		UseBrowser:  e.UseBrowser,
		LogLevel:    e.LogLevel,
		LogFile:     e.LogFile,
		LogJSON:     e.LogJSON,
	}
}
