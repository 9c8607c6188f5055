package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/banabets/else/common/guard"
)

type ImageConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Size        string
	CallTimeout time.Duration
}

// OpenAIImage generates images through the OpenAI images endpoint and returns
// the decoded bytes.
type OpenAIImage struct {
	client openai.Client
	cfg    ImageConfig
}

var _ ImageGenerator = (*OpenAIImage)(nil)

func NewOpenAIImage(cfg ImageConfig, extra ...option.RequestOption) (*OpenAIImage, error) {
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
		cfg.Model = "dall-e-3"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}

	return &OpenAIImage{client: openai.NewClient(opts...), cfg: cfg}, nil
}

func (c *OpenAIImage) Generate(ctx context.Context, prompt string) ([]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          c.cfg.Model,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(c.cfg.Size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}

	start := time.Now()
	resp, err := guard.Do(ctx, c.cfg.CallTimeout, func(ctx context.Context) (*openai.ImagesResponse, error) {
		return c.client.Images.Generate(ctx, params)
	})
	if err != nil {
		return nil, newServiceError(ProviderOpenAI, "generate_image", err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, newServiceError(ProviderOpenAI, "generate_image", fmt.Errorf("no image data in response"))
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, newServiceError(ProviderOpenAI, "generate_image", fmt.Errorf("decode image: %w", err))
	}

	slog.DebugContext(ctx, "image generated",
		"model", c.cfg.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"bytes", len(data))

	return data, nil
}
