// Package server provides the HTTP REST API for the prompt workbench.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/prompt-workbench/internal/config"
	"github.com/jonathan/prompt-workbench/internal/server/middleware"
	"github.com/jonathan/prompt-workbench/internal/server/ratelimit"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

// maxBodyBytes caps request bodies. Inputs carry pasted research, so the cap is generous.
const maxBodyBytes = 10 << 20

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	svc         *workbench.Service
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	authHandler *AuthHandler
	validator   *validator.Validate
	logger      *slog.Logger
	corsOrigins []string
	shutdown    time.Duration
}

// Config holds server configuration
type Config struct {
	Port            int
	CORSOrigins     []string
	RateLimit       *ratelimit.Config
	ShutdownTimeout time.Duration

	// JWT enables bearer authentication on every route except health, models, schemas and
	// token issuance. Nil disables authentication.
	JWT               *config.JWTConfig
	Passwords         *config.PasswordConfig
	AdminUser         string
	AdminPasswordHash string

	Logger *slog.Logger
}

// ConfigFromEnv builds a server Config from the parsed environment. jwtCfg and passwords may be nil.
func ConfigFromEnv(env config.ServerEnv, jwtCfg *config.JWTConfig, passwords *config.PasswordConfig) Config {
	return Config{
		Port:              env.Port,
		CORSOrigins:       env.CORSOrigins,
		RateLimit:         ratelimit.NewConfig(env.RateLimitRPS, env.RateLimitBurst),
		ShutdownTimeout:   env.ShutdownTimeout,
		JWT:               jwtCfg,
		Passwords:         passwords,
		AdminUser:         env.AdminUser,
		AdminPasswordHash: env.AdminPasswordHash,
	}
}

// New creates a new server instance
func New(svc *workbench.Service, cfg Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server requires a workbench service")
	}

	s := &Server{
		svc:         svc,
		validator:   validator.New(),
		logger:      cfg.Logger,
		corsOrigins: cfg.CORSOrigins,
		shutdown:    cfg.ShutdownTimeout,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.shutdown <= 0 {
		s.shutdown = 30 * time.Second
	}

	s.rateLimiter = ratelimit.NewLimiter(cfg.RateLimit)

	if cfg.JWT.Enabled() {
		if cfg.AdminPasswordHash == "" {
			return nil, fmt.Errorf("WORKBENCH_ADMIN_PASSWORD_HASH is required when JWT_SECRET is set")
		}
		passwords := cfg.Passwords
		if passwords == nil {
			var err error
			if passwords, err = config.NewPasswordConfig(); err != nil {
				return nil, fmt.Errorf("failed to create password config: %w", err)
			}
		}
		s.jwtService = NewJWTService(cfg.JWT)
		s.authHandler = NewAuthHandler(cfg.AdminUser, cfg.AdminPasswordHash, passwords, s.jwtService)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute, // optimization runs make many model calls
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /schemas/{name}", s.handleSchema)
	if s.authHandler != nil {
		mux.HandleFunc("POST /auth/token", s.authHandler.Token)
	}

	// Model calls
	mux.Handle("POST /generate", s.protect(s.handleGenerate))
	mux.Handle("POST /evaluate", s.protect(s.handleEvaluate))
	mux.Handle("POST /parse", s.protect(s.handleParse))
	mux.Handle("POST /optimize", s.protect(s.handleOptimize))
	mux.Handle("POST /optimize/stream", s.protect(s.handleOptimizeStream))
	mux.Handle("POST /batch", s.protect(s.handleBatch))

	// Run history
	mux.Handle("GET /runs", s.protect(s.handleListRuns))
	mux.Handle("GET /runs/{id}", s.protect(s.handleGetRun))

	// Prompt library
	mux.Handle("GET /library", s.protect(s.handleListLibrary))
	mux.Handle("GET /library/{name}", s.protect(s.handleGetLibrary))
	mux.Handle("POST /library", s.protect(s.handleSaveLibrary))

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// protect requires a bearer token when authentication is configured.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.jwtService == nil {
		return h
	}
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr, "auth", s.jwtService != nil, "history", s.svc.HasStore())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers. "*" allows any origin; otherwise the request origin is echoed
// when listed.
func (s *Server) withCORS(next http.Handler) http.Handler {
	allowAll := len(s.corsOrigins) == 0 || slices.Contains(s.corsOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.corsOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging. It forwards Flush so SSE keeps working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes err with the status HTTPStatus maps it to.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody(err))
}

// extractClientID uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	s.logger.Warn("rate limit exceeded", "client", s.extractClientID(r), "path", r.URL.Path, "limit", info.Limit)
	writeJSON(w, http.StatusTooManyRequests, response)
}
