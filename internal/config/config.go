package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the postgres-ai service. It is built
// once at startup and passed into each component that needs it; nothing
// reads the environment after Load returns.
type Config struct {
	Port       int
	Version    string
	LLM        LLMConfig
	Prometheus PrometheusConfig
	History    HistoryConfig
	Agent      AgentConfig
	Telemetry  TelemetryConfig
}

// LLMConfig configures the language-model collaborator.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// PrometheusConfig configures the time-series gateway.
type PrometheusConfig struct {
	URL      string
	CacheTTL time.Duration
}

// HistoryConfig configures conversation persistence.
type HistoryConfig struct {
	// DataDir is where per-conversation JSON documents are written.
	DataDir string
	// PostgresDSN, when set, switches the store to PostgreSQL.
	PostgresDSN string
	// MaxMessages is the retained history length, excluding the leading
	// system message.
	MaxMessages int
	// Retention is how long idle conversations are kept. Zero disables
	// pruning.
	Retention time.Duration
}

// AgentConfig configures the orchestration loop.
type AgentConfig struct {
	// MaxIterations is the hard ceiling on model turns per analysis.
	MaxIterations int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("PGAI_PORT", 8000),
		Version: envStr("PGAI_VERSION", "1.0.0"),
		LLM: LLMConfig{
			APIKey:  envStr("OPENAI_API_KEY", ""),
			Model:   envStr("OPENAI_MODEL", "gpt-4o"),
			BaseURL: envStr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		},
		Prometheus: PrometheusConfig{
			URL:      envStr("PROMETHEUS_URL", "http://prometheus:9090"),
			CacheTTL: envDuration("PGAI_CACHE_TTL", 30*time.Second),
		},
		History: HistoryConfig{
			DataDir:     envStr("PGAI_DATA_DIR", "conversations"),
			PostgresDSN: envStr("PGAI_HISTORY_DSN", ""),
			MaxMessages: envInt("PGAI_MAX_HISTORY", 20),
			Retention:   envDuration("PGAI_RETENTION", 30*24*time.Hour),
		},
		Agent: AgentConfig{
			MaxIterations: envInt("PGAI_MAX_ITERATIONS", 6),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "postgres-ai"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
