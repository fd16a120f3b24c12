// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (COMPLAI_* prefix)
//  2. Config file (~/.complai/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive fields (HMAC secret, Postgres password, admin password) are
// masked in MarshalJSON. Validation lives in validation.go with sentinel
// errors checked via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for conversational memory and generation.
const (
	// DefaultWindowSize is the number of human/assistant message pairs
	// retained per session; history is bounded to 2*DefaultWindowSize entries.
	DefaultWindowSize = 10

	// DefaultSessionTimeout is how long an idle session stays reachable.
	DefaultSessionTimeout = 7200 * time.Second

	// DefaultMaxSessions is the session store capacity; creating beyond it
	// evicts the least recently active session.
	DefaultMaxSessions = 1000

	// DefaultTemperature is the model sampling temperature.
	DefaultTemperature float32 = 0.3

	// DefaultMaxTokens is the model output token cap per response.
	DefaultMaxTokens = 1000

	// DefaultRetrievalK is the number of knowledge documents fetched per query.
	DefaultRetrievalK = 3

	// DefaultContextCharBudget caps the concatenated retrieval context length.
	DefaultContextCharBudget = 4000

	// DefaultRequestTimeout bounds total wall-clock time per chat request.
	DefaultRequestTimeout = 60 * time.Second
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON; update it when adding
// passwords, API keys, or tokens.
type Config struct {
	// Model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	GeminiAPIKey  string  `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON

	// Conversational memory
	WindowSize     int           `mapstructure:"window_size" json:"window_size"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout"`
	MaxSessions    int           `mapstructure:"max_sessions" json:"max_sessions"`

	// Retrieval
	RetrievalK        int    `mapstructure:"retrieval_k" json:"retrieval_k"`
	ContextCharBudget int    `mapstructure:"context_char_budget" json:"context_char_budget"`
	PromptDir         string `mapstructure:"prompt_dir" json:"prompt_dir"`
	PromptName        string `mapstructure:"prompt_name" json:"prompt_name"`

	// Request handling
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`
	StrictPersist  bool          `mapstructure:"strict_persist" json:"strict_persist"`

	// Storage (knowledge index)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server
	Addr       string `mapstructure:"addr" json:"addr"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Security
	HMACSecret    string `mapstructure:"hmac_secret" json:"hmac_secret"` // SENSITIVE: masked in MarshalJSON
	AdminUsername string `mapstructure:"admin_username" json:"admin_username"`
	AdminPassword string `mapstructure:"admin_password" json:"admin_password"` // SENSITIVE: masked in MarshalJSON

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".complai")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("COMPLAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key commonly arrives via the provider's own variable.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		v.SetDefault("gemini_api_key", key)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("temperature", DefaultTemperature)
	v.SetDefault("max_tokens", DefaultMaxTokens)

	v.SetDefault("window_size", DefaultWindowSize)
	v.SetDefault("session_timeout", DefaultSessionTimeout)
	v.SetDefault("max_sessions", DefaultMaxSessions)

	v.SetDefault("retrieval_k", DefaultRetrievalK)
	v.SetDefault("context_char_budget", DefaultContextCharBudget)
	v.SetDefault("prompt_dir", "prompts")
	v.SetDefault("prompt_name", "compliance")

	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("strict_persist", false)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "complai")
	v.SetDefault("postgres_db_name", "complai")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("addr", ":8080")
	v.SetDefault("rate_burst", 60)
	v.SetDefault("trust_proxy", false)

	v.SetDefault("admin_username", "admin")

	v.SetDefault("environment", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// DatabaseURL builds the pgx connection string from the Postgres fields.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode,
	)
}

// MarshalJSON masks sensitive fields so the config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "********"
	}
	if masked.HMACSecret != "" {
		masked.HMACSecret = "********"
	}
	if masked.AdminPassword != "" {
		masked.AdminPassword = "********"
	}
	if masked.GeminiAPIKey != "" {
		masked.GeminiAPIKey = "********"
	}
	return json.Marshal(masked)
}
