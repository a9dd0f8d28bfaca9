package ratelimit

import (
	"strings"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultRPS      float64
	DefaultBurst    int
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string  // Route pattern; "{name}" matches one segment, a trailing "/" matches by prefix
	Method string  // HTTP method
	RPS    float64 // Sustained requests per second; zero means unlimited
	Burst  int     // Burst capacity (defaults to 1 if 0)

	// Shared makes every path matching a pattern share one bucket.
	Shared bool
}

func (e *EndpointConfig) burst() int {
	if e.Burst <= 0 {
		return 1
	}
	return e.Burst
}

func (e *EndpointConfig) key(path string) string {
	if e.Shared && e.Path != "" {
		return e.Path
	}
	return path
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() *Config {
	return NewConfig(2, 5)
}

// NewConfig builds an enabled configuration with the given default rate and the standard
// endpoint tiers.
func NewConfig(rps float64, burst int) *Config {
	return &Config{
		Enabled:         rps > 0,
		DefaultRPS:      rps,
		DefaultBurst:    burst,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       make(map[string]bool),
		Blacklist:       make(map[string]bool),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific tiers. Requests that reach the model
// providers are limited hardest.
func DefaultEndpointConfigs() []EndpointConfig {
	perMinute := func(n float64) float64 { return n / 60 }
	return []EndpointConfig{
		// Tier 1: multi-call runs
		{Path: "/optimize", Method: "POST", RPS: perMinute(6), Burst: 2},
		{Path: "/optimize/stream", Method: "POST", RPS: perMinute(6), Burst: 2},
		{Path: "/batch", Method: "POST", RPS: perMinute(2), Burst: 1},

		// Tier 2: single model calls
		{Path: "/generate", Method: "POST", RPS: perMinute(30), Burst: 5},
		{Path: "/evaluate", Method: "POST", RPS: perMinute(30), Burst: 5},

		// Tier 3: writes and credential checks
		{Path: "/library", Method: "POST", RPS: 1, Burst: 10},
		{Path: "/auth/token", Method: "POST", RPS: perMinute(10), Burst: 3},

		// Tier 4: reads use the default; health and models are unlimited in the matcher
		{Path: "/runs/{id}", Method: "GET", RPS: 5, Burst: 20, Shared: true},
		{Path: "/library/{name}", Method: "GET", RPS: 5, Burst: 20, Shared: true},
	}
}

// ParseIPList parses a comma-separated list of client addresses into a set.
func ParseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
