package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Scraper    ScraperConfig
	Relay      RelayConfig
	Completion CompletionConfig
	Chat       ChatConfig
	Store      StoreConfig
	Workflow   WorkflowConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxWorkers is the pool concurrency ceiling (max concurrent
	// browsing contexts across all sessions).
	MaxWorkers int // default: 10

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the proxy URL for all browsing contexts.
	DefaultProxy string
}

// ScraperConfig controls navigation and frame collection.
type ScraperConfig struct {
	// NavigationTimeout is the deadline for one navigation attempt.
	NavigationTimeout time.Duration // default: 60s

	// NavigationAttempts is the number of navigation tries per task.
	NavigationAttempts int // default: 3

	// NavigationRetryDelay is the fixed wait between navigation attempts.
	NavigationRetryDelay time.Duration // default: 5s

	// FrameReadyTimeout bounds the best-effort wait for the content frame's
	// readiness markers. Expiry is tolerated, not fatal.
	FrameReadyTimeout time.Duration // default: 10s

	// BlockedResourceTypes lists resource types to block during navigation.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// RelayConfig controls the command relay handshake with the remote agent.
type RelayConfig struct {
	// AgentWait is the total time to wait for the agent's data push after
	// posting a command.
	AgentWait time.Duration // default: 15s

	// PollInterval is how often the pushed data is checked for during AgentWait.
	PollInterval time.Duration // default: 1s
}

// CompletionConfig controls the external answer-generation service.
type CompletionConfig struct {
	// BaseURL is the OpenAI-compatible API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey authenticates against the completion service.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string // default: "gpt-4o-mini"

	// Attempts is the number of tries per completion call.
	Attempts int // default: 3

	// RetryDelay is the fixed wait between completion attempts.
	RetryDelay time.Duration // default: 2s
}

// ChatConfig controls outbound delivery to the chat front-end.
type ChatConfig struct {
	// WebhookURL is the chat front-end's inbound endpoint.
	WebhookURL string

	// Secret signs outbound payloads with HMAC-SHA256 when non-empty.
	Secret string

	// BatchSize is the number of questions per outbound message.
	BatchSize int // default: 5

	// Attempts is the number of tries per send/edit.
	Attempts int // default: 3

	// RetryDelay is the fixed wait between send/edit attempts.
	RetryDelay time.Duration // default: 2s
}

// StoreConfig controls the persistent session store.
type StoreConfig struct {
	// Path is the Badger database directory.
	Path string // default: "./data/quizflow"
}

// WorkflowConfig controls the session workflow.
type WorkflowConfig struct {
	// AllowedURLPrefixes filters agent-pushed tab URLs; tabs whose URL does
	// not start with one of these prefixes are ignored.
	AllowedURLPrefixes []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("QUIZFLOW_HOST", "0.0.0.0"),
			Port: envIntOr("QUIZFLOW_PORT", 8080),
			Mode: envOr("QUIZFLOW_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("QUIZFLOW_HEADLESS", true),
			MaxWorkers:   envIntOr("QUIZFLOW_MAX_WORKERS", 10),
			NoSandbox:    envBoolOr("QUIZFLOW_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("QUIZFLOW_BROWSER_BIN"),
			DefaultProxy: os.Getenv("QUIZFLOW_PROXY"),
		},
		Scraper: ScraperConfig{
			NavigationTimeout:    envDurationOr("QUIZFLOW_NAV_TIMEOUT", 60*time.Second),
			NavigationAttempts:   envIntOr("QUIZFLOW_NAV_ATTEMPTS", 3),
			NavigationRetryDelay: envDurationOr("QUIZFLOW_NAV_RETRY_DELAY", 5*time.Second),
			FrameReadyTimeout:    envDurationOr("QUIZFLOW_FRAME_READY_TIMEOUT", 10*time.Second),
			BlockedResourceTypes: envSliceOr("QUIZFLOW_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Relay: RelayConfig{
			AgentWait:    envDurationOr("QUIZFLOW_AGENT_WAIT", 15*time.Second),
			PollInterval: envDurationOr("QUIZFLOW_AGENT_POLL_INTERVAL", time.Second),
		},
		Completion: CompletionConfig{
			BaseURL:    envOr("QUIZFLOW_COMPLETION_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     os.Getenv("QUIZFLOW_COMPLETION_API_KEY"),
			Model:      envOr("QUIZFLOW_COMPLETION_MODEL", "gpt-4o-mini"),
			Attempts:   envIntOr("QUIZFLOW_COMPLETION_ATTEMPTS", 3),
			RetryDelay: envDurationOr("QUIZFLOW_COMPLETION_RETRY_DELAY", 2*time.Second),
		},
		Chat: ChatConfig{
			WebhookURL: os.Getenv("QUIZFLOW_CHAT_WEBHOOK_URL"),
			Secret:     os.Getenv("QUIZFLOW_CHAT_SECRET"),
			BatchSize:  envIntOr("QUIZFLOW_CHAT_BATCH_SIZE", 5),
			Attempts:   envIntOr("QUIZFLOW_CHAT_ATTEMPTS", 3),
			RetryDelay: envDurationOr("QUIZFLOW_CHAT_RETRY_DELAY", 2*time.Second),
		},
		Store: StoreConfig{
			Path: envOr("QUIZFLOW_STORE_PATH", "./data/quizflow"),
		},
		Workflow: WorkflowConfig{
			AllowedURLPrefixes: envSliceOr("QUIZFLOW_ALLOWED_URL_PREFIXES", []string{
				"https://www.coursera.org/learn/",
			}),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("QUIZFLOW_AUTH_ENABLED", true),
			APIKeys: envSliceOr("QUIZFLOW_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("QUIZFLOW_RATE_RPS", 5.0),
			Burst:             envIntOr("QUIZFLOW_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("QUIZFLOW_LOG_LEVEL", "info"),
			Format: envOr("QUIZFLOW_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
