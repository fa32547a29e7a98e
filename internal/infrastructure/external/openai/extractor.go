package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds the settings for the vision extraction client
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	ImageDetail string
}

// Extractor implements port.ExtractionService using the OpenAI vision API
type Extractor struct {
	client  *openai.Client
	prompts *PromptConfig
	cfg     Config
	logger  *zap.Logger
}

// NewExtractor creates a new OpenAI extractor
func NewExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, &entity.ConfigError{Key: "openai.api_key", Reason: "is required"}
	}
	if prompts == nil {
		return nil, &entity.ConfigError{Key: "openai.prompts_path", Reason: "prompts not loaded"}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Extractor{
		client:  openai.NewClientWithConfig(clientCfg),
		prompts: prompts,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Extract sends one image to the vision model and returns the raw reply
func (e *Extractor) Extract(ctx context.Context, req port.ExtractionRequest) (*port.ExtractionResponse, error) {
	if len(req.ImageData) == 0 {
		return nil, fmt.Errorf("empty image for %s: %w", req.AssetPath, entity.ErrUnsupportedAsset)
	}

	prompt, err := e.prompts.RenderUser(req.TaxonomyText)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	e.logger.Debug("Extracting receipt with Vision API",
		zap.String("asset_path", req.AssetPath),
		zap.String("mime_type", req.MimeType),
		zap.Int("image_bytes", len(req.ImageData)))

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: e.prompts.ReceiptExtraction.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", req.MimeType, base64.StdEncoding.EncodeToString(req.ImageData)),
							Detail: e.imageDetail(),
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	duration := time.Since(start)

	if err != nil {
		return &port.ExtractionResponse{Model: e.cfg.Model, Prompt: prompt, Duration: duration}, toServiceError(err)
	}

	out := &port.ExtractionResponse{
		Model:            resp.Model,
		Prompt:           prompt,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Duration:         duration,
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return out, fmt.Errorf("no content from Vision API: %w", entity.ErrEmptyResponse)
	}
	out.Content = resp.Choices[0].Message.Content

	e.logger.Debug("Vision API call completed",
		zap.String("asset_path", req.AssetPath),
		zap.Int("completion_tokens", out.CompletionTokens),
		zap.Duration("duration", duration))

	return out, nil
}

func (e *Extractor) imageDetail() openai.ImageURLDetail {
	switch strings.ToLower(e.cfg.ImageDetail) {
	case "low":
		return openai.ImageURLDetailLow
	case "auto":
		return openai.ImageURLDetailAuto
	default:
		return openai.ImageURLDetailHigh
	}
}

// toServiceError keeps the HTTP status of API failures so callers can decide on retries
func toServiceError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &port.ServiceError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &port.ServiceError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &port.ServiceError{Message: err.Error(), Err: err}
}
