package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/banabets/else/common/guard"
)

// OpenAIText talks to any OpenAI-compatible chat completions endpoint. With
// the default config that is Groq.
type OpenAIText struct {
	client openai.Client
	cfg    Config
}

var (
	_ TextGenerator    = (*OpenAIText)(nil)
	_ SegmentGenerator = (*OpenAIText)(nil)
)

func NewOpenAIText(cfg Config, extra ...option.RequestOption) (*OpenAIText, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(withTrailingSlash(cfg.BaseURL)))
	}
	opts = append(opts, extra...)

	if cfg.Model == "" {
		cfg.Model = "llama-3.1-8b-instant"
	}

	return &OpenAIText{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

func (c *OpenAIText) Model() string {
	return c.cfg.Model
}

func (c *OpenAIText) params(prompt string, maxTokens int) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:     c.cfg.Model,
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxTokens: openai.Int(int64(resolveMaxTokens(maxTokens, c.cfg.MaxTokens))),
	}
	if c.cfg.Temperature != nil {
		params.Temperature = openai.Float(*c.cfg.Temperature)
	}
	if c.cfg.TopP != nil {
		params.TopP = openai.Float(*c.cfg.TopP)
	}
	return params
}

func (c *OpenAIText) complete(ctx context.Context, op string, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	start := time.Now()
	resp, err := guard.DoWithRetry(ctx, c.cfg.CallTimeout, retryOptions(ctx, c.cfg.MaxRetries),
		func(ctx context.Context) (*openai.ChatCompletion, error) {
			return c.client.Chat.Completions.New(ctx, params)
		})
	if err != nil {
		return nil, newServiceError(ProviderOpenAI, op, err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.cfg.Model,
		"op", op,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp, nil
}

// Generate returns the trimmed first choice, or FallbackText when the model
// answered with nothing.
func (c *OpenAIText) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.complete(ctx, "generate", c.params(prompt, maxTokens))
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return FallbackText, nil
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return FallbackText, nil
	}
	return content, nil
}

// GenerateSegments asks for a strict JSON schema response holding the thread
// segments.
func (c *OpenAIText) GenerateSegments(ctx context.Context, prompt string, maxTokens int) ([]string, error) {
	params := c.params(prompt, maxTokens)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        "thread_segments",
				Description: openai.String("Ordered posts of a short thread"),
				Schema:      GenerateSchema[Segments](),
				Strict:      openai.Bool(true),
			},
		},
	}

	resp, err := c.complete(ctx, "generate_segments", params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, newServiceError(ProviderOpenAI, "generate_segments", fmt.Errorf("no choices in response"))
	}

	var out Segments
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, newServiceError(ProviderOpenAI, "generate_segments", fmt.Errorf("unmarshal response: %w", err))
	}
	return out.Segments, nil
}
