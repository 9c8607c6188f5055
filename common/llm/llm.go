package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// FallbackText is returned when a provider answers successfully but with no
// content.
const FallbackText = "Pattern persists."

const defaultMaxTokens = 280

// Config holds text generation client configuration.
type Config struct {
	Provider    string   // "openai" (any OpenAI-compatible endpoint) or "anthropic"
	APIKey      string   // Required
	BaseURL     string   // Optional: custom API endpoint, e.g. Groq
	Model       string
	MaxTokens   int      // default when a call passes 0
	Temperature *float64 // nil = model default
	TopP        *float64 // nil = model default; ignored by anthropic

	CallTimeout time.Duration // per attempt
	MaxRetries  int           // retries for rate limits, 5xx and network errors
}

// TextGenerator produces a single piece of text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Model() string
}

// SegmentGenerator produces an ordered list of short texts using structured
// output. Generators that support it are used for threads.
type SegmentGenerator interface {
	GenerateSegments(ctx context.Context, prompt string, maxTokens int) ([]string, error)
}

// ImageGenerator returns encoded image bytes for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// NewTextGenerator selects the provider from cfg.Provider. Defaults to OpenAI.
func NewTextGenerator(cfg Config) (TextGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIText(cfg)
	case ProviderAnthropic:
		return NewAnthropicText(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// Segments is the structured output shape for thread generation.
type Segments struct {
	Segments []string `json:"segments" jsonschema:"description=Ordered thread posts from first to last"`
}

func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

func resolveMaxTokens(requested, configured int) int {
	if requested > 0 {
		return requested
	}
	if configured > 0 {
		return configured
	}
	return defaultMaxTokens
}

func withTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
