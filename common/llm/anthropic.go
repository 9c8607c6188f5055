package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/banabets/else/common/guard"
)

type AnthropicText struct {
	client anthropic.Client
	cfg    Config
}

var _ TextGenerator = (*AnthropicText)(nil)

func NewAnthropicText(cfg Config, extra ...option.RequestOption) (*AnthropicText, error) {
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
		cfg.Model = "claude-3-5-haiku-latest"
	}

	return &AnthropicText{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

func (c *AnthropicText) Model() string {
	return c.cfg.Model
}

func (c *AnthropicText) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(resolveMaxTokens(maxTokens, c.cfg.MaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*c.cfg.Temperature)
	}

	start := time.Now()
	resp, err := guard.DoWithRetry(ctx, c.cfg.CallTimeout, retryOptions(ctx, c.cfg.MaxRetries),
		func(ctx context.Context) (*anthropic.Message, error) {
			return c.client.Messages.New(ctx, params)
		})
	if err != nil {
		return "", newServiceError(ProviderAnthropic, "generate", err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.cfg.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	content := strings.TrimSpace(b.String())
	if content == "" {
		return FallbackText, nil
	}
	return content, nil
}
