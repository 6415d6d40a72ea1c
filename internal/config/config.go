// Package config provides the agent's configuration, loaded from environment
// variables. A Config is a plain value: copy it freely between tasks.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/yoinker/internal/strategy"
)

// --------------------------------------------------------------------------
// Game constants
// --------------------------------------------------------------------------

const (
	DefaultYoinkBaseURL  = "https://yoink.terminally.online"
	DefaultNeynarBaseURL = "https://api.neynar.com"

	// DefaultCooldown is the game's minimum interval between yoinks.
	DefaultCooldown = 10 * time.Minute
)

// Version is stamped into the user agent.
var Version = "0.1.0"

// UserAgent identifies the agent to upstream services.
func UserAgent() string { return "yoinker/" + Version }

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// Error is a configuration problem that prevents startup.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// --------------------------------------------------------------------------
// Config struct: populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Identity and credentials
	UserID           string
	CastHash         string
	NeynarAPIKey     string
	NeynarSignerUUID string

	// Strategy
	Strategy            strategy.Kind
	MomentumK           int
	FallbackK           int
	FreeloaderThreshold uint64
	NiceProbability     float64
	ExcludedIDs         []string

	// Timing
	Cooldown          time.Duration
	WindowSize        int
	StatsTTL          time.Duration
	FetchInterval     time.Duration
	ReceiveTimeout    time.Duration
	ErrorBackoff      time.Duration
	ActionMinInterval time.Duration

	// Upstreams
	YoinkBaseURL  string
	NeynarBaseURL string

	// Logging
	LogLevel  string
	LogFormat string // text, json

	// Status server (empty address disables it)
	StatusAddr        string
	CORSAllowOrigins  []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A numeric key that is set but does not parse is a configuration error.
func Load() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		UserID:           envOr("YOINK_USER_ID", ""),
		CastHash:         envOr("YOINK_CAST_HASH", ""),
		NeynarAPIKey:     envOr("NEYNAR_API_KEY", ""),
		NeynarSignerUUID: envOr("NEYNAR_SIGNER_UUID", ""),

		MomentumK:           env.integer("YOINK_MOMENTUM_K", strategy.DefaultMomentumK),
		FallbackK:           env.integer("YOINK_FALLBACK_K", 0),
		FreeloaderThreshold: env.unsigned("YOINK_FREELOADER_THRESHOLD", strategy.DefaultFreeloaderThreshold),
		NiceProbability:     env.float("YOINK_NICE_PROBABILITY", strategy.DefaultNiceProbability),
		ExcludedIDs:         envList("YOINK_EXCLUDED_IDS", strategy.DefaultExcluded),

		Cooldown:          env.duration("YOINK_COOLDOWN", DefaultCooldown),
		WindowSize:        env.integer("YOINK_WINDOW_SIZE", 12),
		StatsTTL:          env.duration("STATS_TTL", 5*time.Minute),
		FetchInterval:     env.duration("FETCH_INTERVAL", 2*time.Second),
		ReceiveTimeout:    env.duration("RECEIVE_TIMEOUT", 5*time.Second),
		ErrorBackoff:      env.duration("ERROR_BACKOFF", 750*time.Millisecond),
		ActionMinInterval: env.duration("ACTION_MIN_INTERVAL", time.Second),

		YoinkBaseURL:  strings.TrimRight(envOr("YOINK_BASE_URL", DefaultYoinkBaseURL), "/"),
		NeynarBaseURL: strings.TrimRight(envOr("NEYNAR_BASE_URL", DefaultNeynarBaseURL), "/"),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "text"),

		StatusAddr:       envOr("STATUS_ADDR", ""),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"*"}),

		RateLimitEnabled:  env.boolean("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: env.integer("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   env.duration("RATE_LIMIT_WINDOW", time.Minute),
	}
	if env.err != nil {
		return nil, env.err
	}

	kind, err := strategy.ParseKind(envOr("YOINK_STRATEGY", strategy.TargetMomentumLeader.String()))
	if err != nil {
		return nil, &Error{Key: "YOINK_STRATEGY", Reason: err.Error()}
	}
	cfg.Strategy = kind

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{"YOINK_USER_ID", c.UserID},
		{"YOINK_CAST_HASH", c.CastHash},
		{"NEYNAR_API_KEY", c.NeynarAPIKey},
		{"NEYNAR_SIGNER_UUID", c.NeynarSignerUUID},
	}
	for _, r := range required {
		if r.value == "" {
			return &Error{Key: r.key, Reason: "must be set"}
		}
	}

	switch {
	case c.Cooldown <= 0:
		return &Error{Key: "YOINK_COOLDOWN", Reason: "must be positive"}
	case c.WindowSize < 1:
		return &Error{Key: "YOINK_WINDOW_SIZE", Reason: "must be at least 1"}
	case c.MomentumK < 1:
		return &Error{Key: "YOINK_MOMENTUM_K", Reason: "must be at least 1"}
	case c.FallbackK < 0:
		return &Error{Key: "YOINK_FALLBACK_K", Reason: "must not be negative"}
	case c.FallbackK > 0 && c.FallbackK < c.MomentumK:
		return &Error{Key: "YOINK_FALLBACK_K", Reason: fmt.Sprintf("must be at least YOINK_MOMENTUM_K (%d)", c.MomentumK)}
	case c.NiceProbability < 0 || c.NiceProbability > 1:
		return &Error{Key: "YOINK_NICE_PROBABILITY", Reason: "must be within [0,1]"}
	case c.ReceiveTimeout <= 0:
		return &Error{Key: "RECEIVE_TIMEOUT", Reason: "must be positive"}
	case c.FetchInterval <= 0:
		return &Error{Key: "FETCH_INTERVAL", Reason: "must be positive"}
	case c.RateLimitEnabled && (c.RateLimitRequests < 1 || c.RateLimitWindow <= 0):
		return &Error{Key: "RATE_LIMIT_REQUESTS", Reason: "rate limit needs a positive request count and window"}
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return &Error{Key: "LOG_FORMAT", Reason: fmt.Sprintf("invalid log format %q", c.LogFormat)}
	}
	return nil
}

// StrategyParams returns the tunables for the configured strategy. An unset
// fallback K widens to max(DefaultFallbackK, K).
func (c *Config) StrategyParams() strategy.Params {
	fallbackK := c.FallbackK
	if fallbackK == 0 {
		fallbackK = max(strategy.DefaultFallbackK, c.MomentumK)
	}
	return strategy.Params{
		K:                   c.MomentumK,
		FallbackK:           fallbackK,
		FreeloaderThreshold: c.FreeloaderThreshold,
		NiceProbability:     c.NiceProbability,
		Excluded:            c.ExcludedIDs,
	}
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envReader parses typed keys and keeps the first malformed one.
type envReader struct {
	err *Error
}

func (r *envReader) fail(key, kind, v string) {
	if r.err == nil {
		r.err = &Error{Key: key, Reason: fmt.Sprintf("invalid %s %q", kind, v)}
	}
}

func (r *envReader) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, "integer", v)
		return fallback
	}
	return n
}

func (r *envReader) unsigned(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.fail(key, "non-negative integer", v)
		return fallback
	}
	return n
}

func (r *envReader) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, "boolean", v)
		return fallback
	}
	return b
}

func (r *envReader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, "number", v)
		return fallback
	}
	return f
}

// duration accepts Go durations ("90s", "10m") or bare milliseconds.
func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	r.fail(key, "duration", v)
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
