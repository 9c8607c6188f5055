package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel     OTelConfig
	X        XConfig
	TextLLM  LLMConfig
	ImageLLM ImageConfig
	Agent    AgentConfig
	Redis    RedisConfig
	Env      string
	Port     string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
}

// XConfig holds OAuth 1.0a user-context credentials for the X API.
type XConfig struct {
	APIKey       string
	APIKeySecret string
	AccessToken  string
	AccessSecret string
	BaseURL      string
	UploadURL    string
}

type LLMConfig struct {
	Provider    string // "openai" (any OpenAI-compatible endpoint, e.g. Groq) or "anthropic"
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxRetries  int
}

type ImageConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
}

type RedisConfig struct {
	URL          string
	LeaseKey     string
	LeaseTTL     time.Duration
	StatusStream string
	StatusMaxLen int64
}

type AgentConfig struct {
	NodeID            int64
	Interval          time.Duration
	CycleTimeout      time.Duration
	CallTimeout       time.Duration
	RunOnce           bool
	Seed              int64
	EngageProbability float64
	FollowProbability float64
	ImageProbability  float64
	MentionReplyLimit int
	EngageReplyLimit  int
	FollowCap         int
	FollowDelay       time.Duration
	ThreadDelay       time.Duration
	ReplyDelay        time.Duration
	Topics            []string
	FollowTerms       []string
	BioKeywords       []string
}

// Load loads configuration from environment variables.
// In development it reads .env.agent first and falls back to .env.
func Load() (Config, error) {
	if getEnv("AGENT_ENV", "development") == "development" {
		if err := godotenv.Load(".env.agent"); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("AGENT_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "else-agent"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		X: XConfig{
			APIKey:       getEnv("X_API_KEY", ""),
			APIKeySecret: getEnv("X_API_KEY_SECRET", ""),
			AccessToken:  getEnv("X_ACCESS_TOKEN", ""),
			AccessSecret: getEnv("X_ACCESS_SECRET", ""),
			BaseURL:      getEnv("X_BASE_URL", "https://api.twitter.com/2"),
			UploadURL:    getEnv("X_UPLOAD_URL", "https://upload.twitter.com/1.1/media/upload.json"),
		},
		TextLLM: LLMConfig{
			Provider:    getEnv("TEXT_LLM_PROVIDER", "openai"),
			APIKey:      getEnv("TEXT_LLM_API_KEY", getEnv("GROQ_API_KEY", "")),
			BaseURL:     getEnv("TEXT_LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:       getEnv("TEXT_LLM_MODEL", "llama-3.1-8b-instant"),
			MaxTokens:   getEnvInt("TEXT_LLM_MAX_TOKENS", 280),
			Temperature: getEnvFloat("TEXT_LLM_TEMPERATURE", 0.8),
			TopP:        getEnvFloat("TEXT_LLM_TOP_P", 0.9),
			MaxRetries:  getEnvInt("TEXT_LLM_MAX_RETRIES", 2),
		},
		ImageLLM: ImageConfig{
			APIKey:  getEnv("IMAGE_LLM_API_KEY", ""),
			BaseURL: getEnv("IMAGE_LLM_BASE_URL", ""),
			Model:   getEnv("IMAGE_LLM_MODEL", "dall-e-3"),
			Size:    getEnv("IMAGE_LLM_SIZE", "1024x1024"),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			LeaseKey:     getEnv("REDIS_LEASE_KEY", "else:cycle-lease"),
			LeaseTTL:     getEnvDuration("REDIS_LEASE_TTL", 30*time.Minute),
			StatusStream: getEnv("REDIS_STATUS_STREAM", "else:cycle-status"),
			StatusMaxLen: int64(getEnvInt("REDIS_STATUS_MAXLEN", 1000)),
		},
		Agent: AgentConfig{
			NodeID:            int64(getEnvInt("AGENT_NODE_ID", 1)),
			Interval:          getEnvDuration("AGENT_INTERVAL", 3*time.Hour),
			CycleTimeout:      getEnvDuration("AGENT_CYCLE_TIMEOUT", 20*time.Minute),
			CallTimeout:       getEnvDuration("AGENT_CALL_TIMEOUT", 45*time.Second),
			RunOnce:           getEnvBool("AGENT_RUN_ONCE", false),
			Seed:              int64(getEnvInt("AGENT_SEED", 0)),
			EngageProbability: getEnvFloat("AGENT_ENGAGE_PROBABILITY", 0.5),
			FollowProbability: getEnvFloat("AGENT_FOLLOW_PROBABILITY", 0.5),
			ImageProbability:  getEnvFloat("AGENT_IMAGE_PROBABILITY", 0.2),
			MentionReplyLimit: getEnvInt("AGENT_MENTION_REPLY_LIMIT", 3),
			EngageReplyLimit:  getEnvInt("AGENT_ENGAGE_REPLY_LIMIT", 1),
			FollowCap:         getEnvInt("AGENT_FOLLOW_CAP", 5),
			FollowDelay:       getEnvDuration("AGENT_FOLLOW_DELAY", 30*time.Second),
			ThreadDelay:       getEnvDuration("AGENT_THREAD_DELAY", 5*time.Second),
			ReplyDelay:        getEnvDuration("AGENT_REPLY_DELAY", 10*time.Second),
			Topics:            getEnvList("AGENT_TOPICS", []string{"emergence", "complex systems", "philosophy of mind", "pattern recognition", "artificial intelligence"}),
			FollowTerms:       getEnvList("AGENT_FOLLOW_TERMS", nil),
			BioKeywords:       getEnvList("AGENT_BIO_KEYWORDS", nil),
		},
	}

	if !cfg.X.Enabled() {
		return Config{}, fmt.Errorf("X_API_KEY, X_API_KEY_SECRET, X_ACCESS_TOKEN and X_ACCESS_SECRET are required")
	}

	if !cfg.TextLLM.Enabled() {
		return Config{}, fmt.Errorf("TEXT_LLM_API_KEY (or GROQ_API_KEY) is required and TEXT_LLM_PROVIDER must be openai or anthropic")
	}

	if err := cfg.Agent.validate(); err != nil {
		return Config{}, err
	}

	if cfg.Redis.Enabled() && cfg.Redis.LeaseTTL <= cfg.Agent.CycleTimeout {
		return Config{}, fmt.Errorf("REDIS_LEASE_TTL (%s) must exceed AGENT_CYCLE_TIMEOUT (%s)", cfg.Redis.LeaseTTL, cfg.Agent.CycleTimeout)
	}

	return cfg, nil
}

func (a AgentConfig) validate() error {
	if a.Interval <= 0 {
		return fmt.Errorf("AGENT_INTERVAL must be positive")
	}
	for name, p := range map[string]float64{
		"AGENT_ENGAGE_PROBABILITY": a.EngageProbability,
		"AGENT_FOLLOW_PROBABILITY": a.FollowProbability,
		"AGENT_IMAGE_PROBABILITY":  a.ImageProbability,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, p)
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c XConfig) Enabled() bool {
	return c.APIKey != "" && c.APIKeySecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c ImageConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
